package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// PrintOnce writes a single status snapshot to w: JSON if asJSON, else a
// short human-readable table. Used by `agentx-client status` without
// `--watch`.
func PrintOnce(w io.Writer, baseURL string, asJSON bool) error {
	status, err := Fetch(baseURL)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintf(w, "client id:   %s\n", status.ClientID)
	fmt.Fprintf(w, "connected:   %t\n", status.ConnectedToServer)
	fmt.Fprintf(w, "uptime:      %s\n", time.Duration(status.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(w, "sessions:    %d total\n", status.TotalSessions)
	for _, k := range []string{"running", "completed", "failed", "cancelled"} {
		fmt.Fprintf(w, "  %-10s %d\n", k, status.SessionCounts[k])
	}
	return nil
}

//go:build darwin

package deviceid

import (
	"os/exec"
	"strings"
)

// darwinMachineID best-effort reads the hardware UUID via ioreg. It never
// fails loudly — an empty string just means this entropy source is
// unavailable and Derive() falls through to its other sources.
func darwinMachineID() string {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		fields := strings.Split(line, "\"")
		if len(fields) >= 4 {
			return fields[3]
		}
	}
	return ""
}

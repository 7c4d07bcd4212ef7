// Package deviceid derives a stable client identifier from machine
// entropy when the operator does not pass --client-id explicitly.
package deviceid

import (
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// namespace is a fixed UUID used as the v5 namespace for device-derived
// client ids. Any constant works as long as it never changes between
// releases; reusing the DNS namespace from RFC 4122 keeps it recognizable.
var namespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Derive builds a stable client id from hostname, machine-id, current
// user, and OS/arch. When every source is empty it falls back to a
// random UUID v4.
func Derive() string {
	parts := []string{
		hostname(),
		machineID(),
		currentUser(),
		runtime.GOOS,
		runtime.GOARCH,
	}
	name := strings.Join(parts, "|")
	if strings.Trim(name, "|") == "" {
		return randomFallback()
	}
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// randomFallback returns a random UUID v4, used when no entropy source
// produced anything.
func randomFallback() string {
	return uuid.New().String()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return darwinMachineID()
}

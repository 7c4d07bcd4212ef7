//go:build !darwin

package deviceid

// darwinMachineID has no equivalent lookup outside Darwin; /etc/machine-id
// already covers Linux, and Windows entropy comes from hostname/user/arch.
func darwinMachineID() string {
	return ""
}

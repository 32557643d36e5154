// ABOUTME: Version and product identity constants
// ABOUTME: Reported to the gateway during the link join handshake
package version

const (
	Product      = "Timing Beacon"
	Manufacturer = "esp-timing-tests"
	Version      = "0.1.0"
)

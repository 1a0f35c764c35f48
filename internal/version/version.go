// ABOUTME: Version and product identification constants
// ABOUTME: Reported in handshake messages and CLI output
package version

const (
	// Version is the linkclock release
	Version = "0.3.0"

	// Product is the product name sent in device info
	Product = "linkclock"

	// Manufacturer is the vendor sent in device info
	Manufacturer = "Resonate Protocol"

	// ProtocolVersion is the wire protocol revision
	ProtocolVersion = 1
)

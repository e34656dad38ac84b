// ABOUTME: Version and product identification constants
// ABOUTME: Reported to timeline servers in client/hello device info
package version

const (
	// Version is the software version
	Version = "0.1.0"

	// Product is the product name
	Product = "Multitrack Player"

	// Manufacturer is the software manufacturer
	Manufacturer = "Sendspin"
)

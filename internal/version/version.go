// ABOUTME: Version constants for LANScout
// ABOUTME: Single source of truth for product identification
package version

const (
	// Version is the current release version.
	Version = "0.1.0"

	// Product is the product name.
	Product = "LANScout"

	// Manufacturer identifies the project.
	Manufacturer = "LANScout Project"
)

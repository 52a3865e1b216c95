// Package build holds build-time information.
package build

// These variables default to development values and are overwritten by linker flags.
var (
	// Version is the application version.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "none"
	// Date is the build date.
	Date = "unknown"
)

package version

// Version is the version of the tradlet host.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-tradlet/internal/version.Version=1.2.3"
// The value "main" indicates a development build.
var Version = "v0.3.0"

// GetVersion returns the current version of the host.
func GetVersion() string {
	return Version
}

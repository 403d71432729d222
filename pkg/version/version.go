package version

// Set at build time with -ldflags "-X github.com/dmdmdm-nz/devdwatch/pkg/version.Version=...".
var (
	// Version contains the current version of devdwatch
	Version = "dev"

	// CommitHash contains the git commit devdwatch was built from
	CommitHash = "unknown"

	// BuildTime contains the time of build
	BuildTime = "unknown"
)

package voting

// Build information, injected with -ldflags at release time.
var (
	CurrentVersion = "dev"
	CurrentBranch  = "unknown"
	CurrentCommit  = "unknown"
	BuildDate      = "unknown"
	Platform       = "unknown"
	GoVersion      = "unknown"
)

package errand

// Version is the release reported by the CLI and the health endpoint.
// Release builds override it with -ldflags "-X github.com/aretw0/errand.Version=...".
var Version = "0.4.0-dev"

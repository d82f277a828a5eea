// Package version carries build identification, overridden at link time:
//
//	go build -ldflags "-X github.com/kilnproject/kiln/lib/version.Version=v1.2.3"
package version

var (
	Version = "dev"
	Commit  = "unknown"
)

// Package buildinfo exposes version metadata stamped into the binary.
//
// Version, BuildTime, GitTag, GitCommit and GitDirty are set with -ldflags:
//
//	go build -ldflags "-X github.com/sensillum/sensillum/server/internal/buildinfo.Version=0.2.0 \
//	  -X github.com/sensillum/sensillum/server/internal/buildinfo.BuildTime=2026-02-18T12:00:00Z"
//
// When a value is not stamped, the VCS settings recorded by the Go toolchain
// are used instead.
package buildinfo

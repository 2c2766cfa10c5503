//go:build !profiler
// +build !profiler

package stationd

import "context"

// startProfiler is a no-op in non-profiler builds.
func startProfiler(ctx context.Context) func() { return nil }

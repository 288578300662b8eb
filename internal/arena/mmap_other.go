//go:build !linux

package arena

// extraMapFlags is a no-op outside Linux; populate, stack and huge-page
// hints are silently dropped.
func extraMapFlags(Options) int { return 0 }

//go:build linux

package arena

import "golang.org/x/sys/unix"

// extraMapFlags translates the Linux-only mapping options. MAP_POPULATE
// prefaults the mapping, MAP_STACK marks it suitable for a stack, and
// MAP_HUGETLB selects huge pages with an optional explicit page-size
// exponent encoded at MAP_HUGE_SHIFT.
func extraMapFlags(opts Options) int {
	var flags int
	if opts.Populate {
		flags |= unix.MAP_POPULATE
	}
	if opts.Stack {
		flags |= unix.MAP_STACK
	}
	if opts.Huge > 0 {
		flags |= unix.MAP_HUGETLB | int(opts.Huge)<<unix.MAP_HUGE_SHIFT
	}
	return flags
}

// Package identity validates player handles.
//
// A handle is a client-chosen display name such as "@Andrei". The server
// accepts it as-is or not at all: no trimming, no case folding.
package identity

import "strings"

// Prefix is the sentinel every handle must start with.
const Prefix = "@"

// Valid reports whether handle is an acceptable player handle: it must
// begin with Prefix and contain at least one character after it.
func Valid(handle string) bool {
	return strings.HasPrefix(handle, Prefix) && len(handle) > 1
}

// Package branchname validates cvc branch names. Mined from
// modules/plumbing/validate.go's git refname grammar (itself ported from
// git's check_refname_component), trimmed to the single-component case
// cvc needs: branch names have no "/"-separated hierarchy the way git
// refs do.
package branchname

import "bytes"

// disposition classifies each byte for the refname grammar:
// 0 acceptable, 1 end-of-component, 2 '.', 3 '{', 4 bad character.
var disposition = [256]byte{
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 4,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 4, 0, 4, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 4, 4,
}

// Valid reports whether name is a legal cvc branch name: non-empty, not
// starting with '-' or '.', containing no ASCII control characters,
// ":?[\^~", space or tab, no "..", no "@{", and not ending in ".lock" or
// ".".
func Valid(name string) bool {
	if len(name) == 0 || name[0] == '-' || name[0] == '.' {
		return false
	}
	if bytes.HasSuffix([]byte(name), []byte(".lock")) {
		return false
	}
	if name[len(name)-1] == '.' {
		return false
	}
	last := byte(0)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch disposition[ch] {
		case 2:
			if last == '.' {
				return false
			}
		case 3:
			if last == '@' {
				return false
			}
		case 4:
			return false
		}
		last = ch
	}
	return true
}

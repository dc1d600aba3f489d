package armature

import (
	"fmt"
	"regexp"
)

var suffixPattern = regexp.MustCompile(`\.\d+$`)

// StripSuffix removes a trailing numeric disambiguator such as ".003".
func StripSuffix(name string) string {
	return suffixPattern.ReplaceAllString(name, "")
}

// UniqueName returns base, or base.NNN with the first free index.
func UniqueName(base string, exists func(string) bool) string {
	if !exists(base) {
		return base
	}
	for i := 1; ; i++ {
		n := fmt.Sprintf("%s.%03d", base, i)
		if !exists(n) {
			return n
		}
	}
}

package partition

import (
	"strings"
	"unicode"
)

// maxPartitionNameLen bounds partition names so they stay usable as
// database identifiers and filenames everywhere.
const maxPartitionNameLen = 63

// NameFromSlug derives a deterministic partition name from a workspace
// slug: lowercase, runs of non-alphanumeric characters collapsed to a
// single underscore, leading and trailing separators trimmed. A slug that
// reduces to digits only gets a "ws_" prefix so the name never starts
// with a digit.
func NameFromSlug(slug string) string {
	var b strings.Builder
	b.Grow(len(slug))

	pendingSep := false
	for _, r := range strings.ToLower(slug) {
		if unicode.IsLower(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	name := b.String()
	if name == "" {
		return "ws_workspace"
	}
	if isAllDigits(name) {
		name = "ws_" + name
	}
	if len(name) > maxPartitionNameLen {
		name = strings.TrimRight(name[:maxPartitionNameLen], "_")
	}
	return name
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package diff provides lightweight inspection of unified diff patches.
package diff

import "strings"

// Stats summarizes the changed lines of a unified diff patch.
type Stats struct {
	Additions int
	Deletions int
}

// Changed returns the total number of changed lines.
func (s Stats) Changed() int {
	return s.Additions + s.Deletions
}

// Count tallies added and deleted lines in a unified diff patch,
// ignoring file headers and hunk markers.
func Count(patch string) Stats {
	var stats Stats
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// file headers, not content
		case strings.HasPrefix(line, "+"):
			stats.Additions++
		case strings.HasPrefix(line, "-"):
			stats.Deletions++
		}
	}
	return stats
}

// IsBinary checks if a patch represents a binary file. Git marks binary
// content with "Binary files ... differ" or "GIT binary patch".
func IsBinary(patch string) bool {
	return strings.Contains(patch, "Binary files") ||
		strings.Contains(patch, "GIT binary patch")
}

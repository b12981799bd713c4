package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentFingerprint returns a stable hash of normalized source text,
// scoped by filename. Line endings are normalized and surrounding
// whitespace stripped so a trailing newline does not defeat the cache.
func ContentFingerprint(filename, sourceText string) string {
	normalized := strings.ReplaceAll(sourceText, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	sum := sha256.Sum256([]byte(filename + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// PRCacheKey identifies a pull-request review by its head commit.
// A new commit on the source branch produces a new key; earlier entries
// are superseded, never mutated.
func PRCacheKey(repo string, prNumber int, headCommit string) string {
	return fmt.Sprintf("%s#%d@%s", repo, prNumber, headCommit)
}

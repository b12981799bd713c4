package diff_test

import (
	"testing"

	"github.com/bkyoung/review-engine/internal/diff"
	"github.com/stretchr/testify/assert"
)

const samplePatch = `diff --git a/main.go b/main.go
index 1234567..89abcde 100644
--- a/main.go
+++ b/main.go
@@ -1,5 +1,6 @@
 package main

-func main() {
+func main() { // entry
+	setup()
 	run()
 }
`

func TestCount(t *testing.T) {
	stats := diff.Count(samplePatch)

	assert.Equal(t, 2, stats.Additions)
	assert.Equal(t, 1, stats.Deletions)
	assert.Equal(t, 3, stats.Changed())
}

func TestCount_EmptyPatch(t *testing.T) {
	assert.Equal(t, 0, diff.Count("").Changed())
}

func TestCount_IgnoresFileHeaders(t *testing.T) {
	patch := "--- a/x.go\n+++ b/x.go\n"
	assert.Equal(t, 0, diff.Count(patch).Changed())
}

func TestIsBinary(t *testing.T) {
	assert.True(t, diff.IsBinary("Binary files a/img.png and b/img.png differ"))
	assert.False(t, diff.IsBinary(samplePatch))
}

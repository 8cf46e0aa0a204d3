package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfscribe/internal/config"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHashFileDeterministic(t *testing.T) {
	data := []byte(strings.Repeat("pdfscribe", 1000))
	p1 := writeFile(t, "a.pdf", data)
	p2 := writeFile(t, "b.pdf", data)

	for _, mode := range []string{config.HashModeFull, config.HashModeFastWindow} {
		t.Run(mode, func(t *testing.T) {
			h1, err := HashFile(p1, mode, 64)
			require.NoError(t, err)
			h2, err := HashFile(p2, mode, 64)
			require.NoError(t, err)
			assert.Equal(t, h1, h2, "same bytes must hash identically")
			assert.Len(t, h1, 64)
		})
	}
}

func TestHashFileModesDiffer(t *testing.T) {
	p := writeFile(t, "a.pdf", []byte(strings.Repeat("x", 4096)))

	full, err := HashFile(p, config.HashModeFull, 64)
	require.NoError(t, err)
	fast, err := HashFile(p, config.HashModeFastWindow, 64)
	require.NoError(t, err)
	assert.NotEqual(t, full, fast)
}

func TestHashFileContentSensitivity(t *testing.T) {
	p1 := writeFile(t, "a.pdf", []byte("hello world"))
	p2 := writeFile(t, "b.pdf", []byte("hello worle"))

	h1, err := HashFile(p1, config.HashModeFull, 0)
	require.NoError(t, err)
	h2, err := HashFile(p2, config.HashModeFull, 0)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestFastWindowSeesHeadTailAndLength(t *testing.T) {
	// Middle-only changes are invisible to the windowed mode; that is the
	// documented trade-off, not a bug.
	head := strings.Repeat("h", 16)
	tail := strings.Repeat("t", 16)
	p1 := writeFile(t, "a.pdf", []byte(head+"AAAA"+tail))
	p2 := writeFile(t, "b.pdf", []byte(head+"BBBB"+tail))
	p3 := writeFile(t, "c.pdf", []byte(head+"AAAAA"+tail))

	h1, err := HashFile(p1, config.HashModeFastWindow, 16)
	require.NoError(t, err)
	h2, err := HashFile(p2, config.HashModeFastWindow, 16)
	require.NoError(t, err)
	h3, err := HashFile(p3, config.HashModeFastWindow, 16)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "same head, tail, and length collide by design")
	assert.NotEqual(t, h1, h3, "length change must change the digest")
}

func TestFastWindowSmallFile(t *testing.T) {
	p := writeFile(t, "small.pdf", []byte("tiny"))
	h, err := HashFile(p, config.HashModeFastWindow, 1<<20)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestFastWindowEmptyFile(t *testing.T) {
	p := writeFile(t, "empty.pdf", nil)
	h, err := HashFile(p, config.HashModeFastWindow, 1<<20)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestHashFileUnknownMode(t *testing.T) {
	p := writeFile(t, "a.pdf", []byte("x"))
	_, err := HashFile(p, "md5_but_fast", 0)
	assert.Error(t, err)
}

func TestJobIDCombinesBothDigests(t *testing.T) {
	a := JobID("cfg1", "input1")
	assert.Equal(t, a, JobID("cfg1", "input1"))
	assert.NotEqual(t, a, JobID("cfg2", "input1"))
	assert.NotEqual(t, a, JobID("cfg1", "input2"))
}

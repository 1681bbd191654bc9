package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.flac", "same bytes")
	writeFile(t, dir, "b.flac", "same bytes")
	writeFile(t, dir, "c.flac", "different bytes")

	digestA, err := Digest(filepath.Join(dir, "a.flac"))
	require.NoError(t, err)
	digestB, err := Digest(filepath.Join(dir, "b.flac"))
	require.NoError(t, err)
	digestC, err := Digest(filepath.Join(dir, "c.flac"))
	require.NoError(t, err)

	assert.Len(t, digestA, 64)
	assert.Equal(t, digestA, digestB)
	assert.NotEqual(t, digestA, digestC)
}

func TestDigest_MissingFile(t *testing.T) {
	_, err := Digest(filepath.Join(t.TempDir(), "missing.flac"))
	require.Error(t, err)
}

func TestResolver_DeletesDuplicatesKeepsFirstName(t *testing.T) {
	dir := t.TempDir()
	// Three byte-identical files plus one distinct file
	writeFile(t, dir, "b-copy.flac", "identical")
	writeFile(t, dir, "a-original.flac", "identical")
	writeFile(t, dir, "c-copy.flac", "identical")
	writeFile(t, dir, "distinct.flac", "one of a kind")

	resolver := NewResolver(zap.NewNop())
	report, err := resolver.Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 2, report.Kept)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, []string{"b-copy.flac", "c-copy.flac"}, report.DeletedFiles)

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(remaining))
	for _, entry := range remaining {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"a-original.flac", "distinct.flac"}, names)
}

func TestResolver_SingletonsUntouched(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.flac", "alpha")
	writeFile(t, dir, "two.flac", "beta")

	resolver := NewResolver(zap.NewNop())
	report, err := resolver.Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Kept)
	assert.Zero(t, report.Deleted)
}

func TestResolver_SameContentDifferentTitlesIsDuplicate(t *testing.T) {
	dir := t.TempDir()
	// Content equality is the sole criterion, even across declared titles
	writeFile(t, dir, "Take Five - Dave Brubeck.flac", "encoded bytes")
	writeFile(t, dir, "So What - Miles Davis.flac", "encoded bytes")

	resolver := NewResolver(zap.NewNop())
	report, err := resolver.Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, []string{"Take Five - Dave Brubeck.flac"}, report.DeletedFiles)
}

func TestResolver_MissingDirectory(t *testing.T) {
	resolver := NewResolver(zap.NewNop())
	report, err := resolver.Resolve(filepath.Join(t.TempDir(), "nope"))

	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestResolver_SkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	writeFile(t, dir, "track.flac", "bytes")

	resolver := NewResolver(zap.NewNop())
	report, err := resolver.Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
}

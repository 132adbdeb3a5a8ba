package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	tempDir := t.TempDir()
	fs, err := NewFileSystem(tempDir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple key", "outline", false},
		{"camel case key", "forbiddenPhrases", false},
		{"dot key", ".hidden", false},
		{"empty key", "", true},
		{"nested key", "dir/file", true},
		{"parent directory", "../outline", true},
		{"sneaky parent", "a/../../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"windows separator", `a\b`, true},
		{"double dot", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.sanitizePath(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fs.baseDir, filepath.Dir(got))
		})
	}
}

func TestFileSystemRejectsTraversal(t *testing.T) {
	tempDir := t.TempDir()
	base := filepath.Join(tempDir, "state")
	fs, err := NewFileSystem(base)
	require.NoError(t, err)
	ctx := context.Background()

	err = fs.Put(ctx, "../escape", []byte("x"))
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)

	_, statErr := os.Stat(filepath.Join(tempDir, "escape.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileSystemClearIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSystem(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.json"), []byte(`"old run"`), 0644))
	require.NoError(t, fs.Put(ctx, "outline", []byte(`{}`)))

	require.NoError(t, fs.Clear(ctx))

	keys, err := fs.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

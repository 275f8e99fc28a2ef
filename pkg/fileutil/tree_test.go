package fileutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAllCreatesParents(t *testing.T) {
	memFs := afero.NewMemMapFs()

	require.NoError(t, WriteFileAll(memFs, "out/assets/images/test50w.png", []byte("data")))

	data, err := afero.ReadFile(memFs, "out/assets/images/test50w.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	exists, err := DirExists(memFs, "out/assets/images")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWriteFileAllReadOnly(t *testing.T) {
	roFs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := WriteFileAll(roFs, "out/file.png", []byte("x"))
	assert.Error(t, err)
}

func TestExistsHelpers(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, WriteFileAll(memFs, "public/test.png", []byte("x")))

	ok, err := FileExists(memFs, "public/test.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = FileExists(memFs, "public")
	require.NoError(t, err)
	assert.False(t, ok, "a directory is not a file")

	ok, err = DirExists(memFs, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFiles(t *testing.T) {
	memFs := afero.NewMemMapFs()
	for _, p := range []string{"public/b.png", "public/a/c.jpg", "public/a/d/e.webp"} {
		require.NoError(t, WriteFileAll(memFs, p, []byte(p)))
	}

	files, err := ListFiles(memFs, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c.jpg", "a/d/e.webp", "b.png"}, files)

	_, err = ListFiles(memFs, "nope")
	assert.Error(t, err)
}

func TestCleanSlash(t *testing.T) {
	assert.Equal(t, "test.png", CleanSlash("/test.png"))
	assert.Equal(t, "a/test.png", CleanSlash("a/./b/../test.png"))
	assert.Equal(t, "", CleanSlash("/"))
}

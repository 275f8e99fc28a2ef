package pipeline

import (
	"context"
	"testing"

	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCollisions(t *testing.T) {
	testutil.UseTestLogger(t)
	w := NewWriter()

	w.Add(1, "a.png", "/x/a50w.png", []byte("group1"))
	w.Add(0, "a.png", "x/a50w.png", []byte("group0"))
	w.Add(0, "b.png", "b50w.png", []byte("b"))
	w.Add(0, "b.jpg", "b50w.png", []byte("b-from-jpg"))
	w.Add(2, "c.png", "c.png", []byte("c"))

	fs := afero.NewMemMapFs()
	written, err := w.Write(fs, "out")
	require.NoError(t, err)
	assert.Equal(t, []string{"b50w.png", "c.png", "x/a50w.png"}, written)

	data, err := afero.ReadFile(fs, "out/x/a50w.png")
	require.NoError(t, err)
	assert.Equal(t, "group1", string(data), "higher group index wins regardless of add order")

	data, err = afero.ReadFile(fs, "out/b50w.png")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data), "within a group the later source path wins")
}

func TestWriterDuplicateSameSourceLogsNothing(t *testing.T) {
	w := NewWriter()
	logs, entries, err := testutil.CaptureJSONLogs(log.LevelDebug, func() {
		w.Add(0, "a.png", "a50w.png", []byte("1"))
		w.Add(0, "a.png", "a50w.png", []byte("2"))
	})
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "WARN", e["level"], logs)
	}
}

func TestCleanup(t *testing.T) {
	testutil.UseTestLogger(t)
	fs := afero.NewMemMapFs()
	for _, f := range []string{"in/test.png", "in/test-abc.png", "in/sub/b.png", "in/keep.png"} {
		require.NoError(t, fileutil.WriteFileAll(fs, f, []byte(f)))
	}

	removed, err := Cleanup(fs, "in", []string{"test.png", "/sub/b.png", "missing.png", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"test.png", "sub/b.png"}, removed)

	files, err := fileutil.ListFiles(fs, "in")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.png", "test-abc.png"}, files, "only tracked paths are removed")
}

func TestRunThenCleanup(t *testing.T) {
	testutil.UseTestLogger(t)
	fs := afero.NewMemMapFs()
	testutil.WritePNG(t, fs, "in/remove/a.png", 16, 16, 1)
	testutil.WritePNG(t, fs, "in/keep/b.png", 16, 16, 2)

	p := newPipeline(t, fs, nil, nil,
		config.Group{Include: []string{"remove/*.png"}, Widths: []int{8}, Formats: []string{"png"}},
		keepSources(config.Group{Include: []string{"keep/*.png"}, Widths: []int{8}, Formats: []string{"png"}}),
	)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"remove/a.png"}, res.Removable)

	_, err = Cleanup(fs, "in", res.Removable)
	require.NoError(t, err)
	files, err := fileutil.ListFiles(fs, "in")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep/b.png"}, files)
}

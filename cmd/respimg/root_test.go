package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucas-albers-lz4/respimg/pkg/cache"
	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
	"github.com/lucas-albers-lz4/respimg/pkg/input"
	"github.com/lucas-albers-lz4/respimg/pkg/pipeline"
	"github.com/lucas-albers-lz4/respimg/pkg/responsive"
	"github.com/lucas-albers-lz4/respimg/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
deviceWidths: [640, 1080]
groups:
  - include: ["keep/**/*.png", "images/*.png"]
    supportedWidths: [100, 50]
    formats: [original]
    removeSource: false
  - include: ["rm/*.png"]
    supportedWidths: [20]
    formats: [png]
`

// executeCommand runs a fresh command tree against args.
func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err != nil {
		err = withExitCode(err)
	}
	return buf.String(), err
}

// setupTree installs an in-memory filesystem with a config file and sources.
func setupTree(t *testing.T) afero.Fs {
	t.Helper()
	testutil.UseTestLogger(t)
	memFs := afero.NewMemMapFs()
	t.Cleanup(SetFs(memFs))

	require.NoError(t, fileutil.WriteFileAll(memFs, "respimg.yaml", []byte(testConfig)))
	testutil.WritePNG(t, memFs, "in/images/test.png", 200, 100, 1)
	testutil.WritePNG(t, memFs, "in/keep/b.png", 40, 40, 2)
	testutil.WritePNG(t, memFs, "in/rm/a.png", 40, 20, 3)
	return memFs
}

func requireExitCode(t *testing.T, want int, err error) {
	t.Helper()
	require.Error(t, err)
	code, ok := exitcodes.IsExitCodeError(err)
	require.True(t, ok, "error %v carries no exit code", err)
	assert.Equal(t, want, code, "error: %v", err)
}

func TestBuildCommand(t *testing.T) {
	memFs := setupTree(t)

	out, err := executeCommand("build", "--config", "respimg.yaml", "--input", "in", "--output", "out", "--metadata", "images.json")
	require.NoError(t, err)
	assert.Contains(t, out, "3 images")

	files, err := fileutil.ListFiles(memFs, "out")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"images.json",
		"images/test100w.png",
		"images/test50w.png",
		"keep/b100w.png",
		"keep/b50w.png",
		"rm/a20w.png",
	}, files)

	data, err := afero.ReadFile(memFs, "out/images.json")
	require.NoError(t, err)
	payload, err := imagemeta.ParsePayload(data)
	require.NoError(t, err)
	assert.Equal(t, []int{640, 1080}, payload.DeviceWidths)
	assert.Equal(t, []int{50, 100}, payload.Images["images/test.png"].Widths)
	assert.InDelta(t, 2.0, payload.Images["images/test.png"].AspectRatio, 1e-9)

	exists, err := afero.Exists(memFs, "in/rm/a.png")
	require.NoError(t, err)
	assert.True(t, exists, "sources are kept without --remove-sources")
}

func TestBuildRemoveSources(t *testing.T) {
	memFs := setupTree(t)

	out, err := executeCommand("build", "--config", "respimg.yaml", "-i", "in", "-o", "out", "--remove-sources")
	require.NoError(t, err)
	assert.Contains(t, out, "1 sources removed")

	files, err := fileutil.ListFiles(memFs, "in")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/test.png", "keep/b.png"}, files)
}

func TestBuildWithDiskCache(t *testing.T) {
	memFs := setupTree(t)
	args := []string{"build", "--config", "respimg.yaml", "-i", "in", "-o", "out", "--cache-dir", ".cache", "--cache-compression", "zstd"}

	out, err := executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "0 cache hits, 5 misses")

	out, err = executeCommand(args...)
	require.NoError(t, err)
	assert.Contains(t, out, "5 cache hits, 0 misses")

	entries, err := fileutil.ListFiles(memFs, ".cache")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestSettingsFromEnvironment(t *testing.T) {
	memFs := setupTree(t)
	t.Setenv("RESPIMG_INPUT", "in")
	t.Setenv("RESPIMG_OUTPUT", "env-out")
	t.Setenv("RESPIMG_CONFIG", "respimg.yaml")

	_, err := executeCommand("build")
	require.NoError(t, err)
	exists, err := afero.Exists(memFs, "env-out/images/test50w.png")
	require.NoError(t, err)
	assert.True(t, exists)

	// flags win over the environment
	_, err = executeCommand("build", "--output", "flag-out")
	require.NoError(t, err)
	exists, err = afero.Exists(memFs, "flag-out/images/test50w.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDefaultConfigFile(t *testing.T) {
	setupTree(t)
	_, err := executeCommand("build", "-i", "in", "-o", "out")
	require.NoError(t, err)
}

func TestBuildErrors(t *testing.T) {
	t.Run("missing input flag", func(t *testing.T) {
		setupTree(t)
		_, err := executeCommand("build", "--output", "out")
		requireExitCode(t, exitcodes.ExitMissingRequiredFlag, err)
	})

	t.Run("missing input root", func(t *testing.T) {
		setupTree(t)
		_, err := executeCommand("build", "--input", "nowhere", "--output", "out")
		requireExitCode(t, exitcodes.ExitSourceTreeNotFound, err)
		assert.ErrorIs(t, err, input.ErrRootNotFound)
	})

	t.Run("group without include", func(t *testing.T) {
		memFs := setupTree(t)
		require.NoError(t, afero.WriteFile(memFs, "bad.yaml", []byte("groups:\n  - supportedWidths: [10]\n"), 0o644))
		_, err := executeCommand("build", "--config", "bad.yaml", "-i", "in", "-o", "out")
		requireExitCode(t, exitcodes.ExitInputConfigurationError, err)
		assert.ErrorIs(t, err, config.ErrMissingInclude)
	})

	t.Run("no config file", func(t *testing.T) {
		memFs := setupTree(t)
		require.NoError(t, memFs.Remove("respimg.yaml"))
		_, err := executeCommand("build", "-i", "in", "-o", "out")
		requireExitCode(t, exitcodes.ExitInputConfigurationError, err)
	})

	t.Run("corrupt source", func(t *testing.T) {
		memFs := setupTree(t)
		require.NoError(t, afero.WriteFile(memFs, "in/images/broken.png", []byte("not a png"), 0o644))
		_, err := executeCommand("build", "-i", "in", "-o", "out")
		requireExitCode(t, exitcodes.ExitImageInputError, err)
		assert.Contains(t, err.Error(), "images/broken.png")

		exists, err := afero.DirExists(memFs, "out")
		require.NoError(t, err)
		assert.False(t, exists, "nothing is written when a source fails")
	})

	t.Run("unknown cache compression", func(t *testing.T) {
		setupTree(t)
		_, err := executeCommand("build", "-i", "in", "-o", "out", "--cache-dir", ".cache", "--cache-compression", "brotli")
		requireExitCode(t, exitcodes.ExitInputConfigurationError, err)
	})
}

func buildWithMetadata(t *testing.T) {
	t.Helper()
	_, err := executeCommand("build", "-i", "in", "-o", "out", "--metadata", "images.json")
	require.NoError(t, err)
}

func TestInspectCommand(t *testing.T) {
	setupTree(t)
	buildWithMetadata(t)

	t.Run("json with selection", func(t *testing.T) {
		out, err := executeCommand("inspect", "--metadata", "out/images.json", "/images/test.png", "--width", "60", "-o", "json")
		require.NoError(t, err)

		var got Inspection
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "images/test.png", got.Name)
		require.Len(t, got.Variants, 2)
		require.NotNil(t, got.Selected)
		assert.Equal(t, imagemeta.Variant{Path: "/images/test100w.png", Width: 100, Height: 50, Format: "png"}, *got.Selected)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := executeCommand("inspect", "--metadata", "out/images.json", "keep/b.png", "-o", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "name: keep/b.png")
		assert.Contains(t, out, "path: /keep/b50w.png")
	})

	t.Run("text", func(t *testing.T) {
		out, err := executeCommand("inspect", "--metadata", "out/images.json", "images/test.png", "--width", "80")
		require.NoError(t, err)
		assert.Contains(t, out, "images/test.png")
		assert.Contains(t, out, "/images/test50w.png")
		assert.Contains(t, out, "→")
	})

	t.Run("list", func(t *testing.T) {
		out, err := executeCommand("inspect", "--metadata", "out/images.json")
		require.NoError(t, err)
		assert.Contains(t, out, "3 images")
		assert.Contains(t, out, "rm/a.png")
	})

	t.Run("unknown image", func(t *testing.T) {
		_, err := executeCommand("inspect", "--metadata", "out/images.json", "missing.png")
		requireExitCode(t, exitcodes.ExitImageLookupError, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := executeCommand("inspect", "--metadata", "out/images.json", "images/test.png", "--type", "webp")
		requireExitCode(t, exitcodes.ExitImageLookupError, err)
	})

	t.Run("missing metadata file", func(t *testing.T) {
		_, err := executeCommand("inspect", "--metadata", "nope.json")
		requireExitCode(t, exitcodes.ExitIOError, err)
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := executeCommand("inspect", "--metadata", "out/images.json", "-o", "xml")
		requireExitCode(t, exitcodes.ExitInputConfigurationError, err)
	})
}

func TestCleanCommand(t *testing.T) {
	memFs := setupTree(t)
	buildWithMetadata(t)
	// added after the build, so never processed
	testutil.WritePNG(t, memFs, "in/rm/new.png", 10, 10, 4)

	out, err := executeCommand("clean", "-i", "in", "--metadata", "out/images.json", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "rm/a.png\n", out)

	out, err = executeCommand("clean", "-i", "in", "--metadata", "out/images.json")
	require.NoError(t, err)
	assert.Contains(t, out, "1 sources removed")

	files, err := fileutil.ListFiles(memFs, "in")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/test.png", "keep/b.png", "rm/new.png"}, files)

	outFiles, err := fileutil.ListFiles(memFs, "out")
	require.NoError(t, err)
	assert.Contains(t, outFiles, "rm/a20w.png", "clean never touches the output tree")
}

func TestVersionCommand(t *testing.T) {
	defer testutil.SuppressLogging()()
	out, err := executeCommand("version")
	require.NoError(t, err)
	assert.Contains(t, out, "respimg ")
}

func TestExitCodeFor(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &config.ValidationError{Group: 0, Err: config.ErrMissingInclude}, exitcodes.ExitInputConfigurationError},
		{"no groups", fmt.Errorf("load: %w", config.ErrNoGroups), exitcodes.ExitInputConfigurationError},
		{"conflicting groups", &pipeline.ConflictError{Name: "a.png", Groups: [2]int{0, 1}, Detail: "destination"}, exitcodes.ExitInputConfigurationError},
		{"root", fmt.Errorf("%w: in", input.ErrRootNotFound), exitcodes.ExitSourceTreeNotFound},
		{"source", &pipeline.SourceError{Source: "a.png", Err: errors.New("bad")}, exitcodes.ExitImageInputError},
		{"decode inside job", &pipeline.JobError{Source: "a.png", Width: 10, Format: "png", Err: &pipeline.SourceError{Source: "a.png", Err: errors.New("bad")}}, exitcodes.ExitImageInputError},
		{"job", &pipeline.JobError{Source: "a.png", Width: 10, Format: "png", Err: errors.New("encode")}, exitcodes.ExitImageProcessingError},
		{"lookup", fmt.Errorf("%w: x", responsive.ErrTypeNotFound), exitcodes.ExitImageLookupError},
		{"io", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}, exitcodes.ExitIOError},
		{"other", errors.New("boom"), exitcodes.ExitInternalError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
			code, ok := exitcodes.IsExitCodeError(withExitCode(tc.err))
			require.True(t, ok)
			assert.Equal(t, tc.want, code)
		})
	}

	wrapped := exitcodes.Wrap(exitcodes.ExitIOError, errors.New("boom"))
	assert.Same(t, wrapped, withExitCode(wrapped), "an existing exit code is kept")
}

func TestRebuildEvictsStaleCacheEntries(t *testing.T) {
	memFs := setupTree(t)
	cfg, err := config.Load(memFs, "respimg.yaml")
	require.NoError(t, err)
	store := cache.NewMemoryStore()
	p := pipeline.New(cfg, pipeline.Options{Fs: memFs, InputRoot: "in", OutputRoot: "out", Cache: cache.New(store)})

	var out bytes.Buffer
	rebuild := newRebuild(&out, p)
	rebuild(context.Background(), nil)
	assert.Contains(t, out.String(), "0 cache hits, 5 misses")
	assert.Equal(t, 5, store.Len())

	require.NoError(t, memFs.Remove("in/keep/b.png"))
	rebuild(context.Background(), []string{"in/keep/b.png"})
	assert.Contains(t, out.String(), "3 cache hits, 0 misses")
	assert.Equal(t, 3, store.Len(), "entries of the deleted source are evicted")
}

func TestDebounce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string)
	calls := make(chan []string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		debounce(ctx, changes, 50*time.Millisecond, func(_ context.Context, changed []string) {
			calls <- changed
		})
	}()

	for _, p := range []string{"b.png", "a.png", "b.png"} {
		changes <- p
	}
	select {
	case got := <-calls:
		assert.Equal(t, []string{"a.png", "b.png"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after a burst of changes")
	}

	changes <- "c.png"
	close(changes)
	select {
	case got := <-calls:
		assert.Equal(t, []string{"c.png"}, got, "pending changes are flushed on close")
	case <-time.After(5 * time.Second):
		t.Fatal("pending change was not flushed")
	}
	<-done
	assert.Empty(t, calls)
}

func TestWithin(t *testing.T) {
	root := filepath.Join("site", "public")
	assert.True(t, within(root, root))
	assert.True(t, within(root, filepath.Join(root, "images", "a.png")))
	assert.False(t, within(root, filepath.Join("site", "public-old", "a.png")))
	assert.False(t, within(root, filepath.Join("site", "static", "a.png")))
}

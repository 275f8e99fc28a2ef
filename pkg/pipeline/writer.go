package pipeline

import (
	"slices"
	"strings"
	"sync"

	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/spf13/afero"
)

type output struct {
	groupIndex int
	source     string
	data       []byte
}

// Writer buffers generated files and writes them as one output tree. When two
// files claim one path the higher group index wins; within a group the later
// source in path order wins.
type Writer struct {
	mu    sync.Mutex
	files map[string]output
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{files: make(map[string]output)}
}

// Add queues data for the slash-separated path below the output root.
func (w *Writer) Add(groupIndex int, source, p string, data []byte) {
	p = fileutil.CleanSlash(p)

	w.mu.Lock()
	defer w.mu.Unlock()

	prev, exists := w.files[p]
	next := output{groupIndex: groupIndex, source: source, data: data}
	if !exists {
		w.files[p] = next
		return
	}
	switch {
	case groupIndex > prev.groupIndex:
		log.Debug("Later group overwrites output", "path", p, "group", groupIndex, "previousGroup", prev.groupIndex)
		w.files[p] = next
	case groupIndex < prev.groupIndex:
		log.Debug("Output already claimed by a later group", "path", p, "group", groupIndex, "laterGroup", prev.groupIndex)
	default:
		if prev.source != source {
			log.Warn("Two sources of one group produce the same output", "path", p, "group", groupIndex, "source", source, "otherSource", prev.source)
		}
		if strings.Compare(source, prev.source) >= 0 {
			w.files[p] = next
		}
	}
}

// Paths returns the queued output paths, sorted.
func (w *Writer) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Write writes every queued file below root and returns the written paths.
func (w *Writer) Write(fs afero.Fs, root string) ([]string, error) {
	paths := w.Paths()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		if err := fileutil.WriteFileAll(fs, fileutil.JoinSlash(root, p), w.files[p].data); err != nil {
			return nil, err
		}
	}
	log.Debug("Wrote output tree", "root", root, "files", len(paths))
	return paths, nil
}

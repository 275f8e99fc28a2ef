// Package metadata aggregates per-image variant records into the published
// metadata table and runs metadata extension hooks over it.
package metadata

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
)

// Extension rewrites the metadata of one image before publication.
type Extension interface {
	Extend(name string, meta imagemeta.ImageMeta, group config.Group) (imagemeta.ImageMeta, error)
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(name string, meta imagemeta.ImageMeta, group config.Group) (imagemeta.ImageMeta, error)

// Extend implements Extension.
func (f ExtensionFunc) Extend(name string, meta imagemeta.ImageMeta, group config.Group) (imagemeta.ImageMeta, error) {
	return f(name, meta, group)
}

// ExtensionError names the image and hook that failed.
type ExtensionError struct {
	Name  string
	Index int
	Err   error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("metadata extension %d failed for %s: %v", e.Index, e.Name, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	return e.Err
}

type groupRecord struct {
	group       config.Group
	widths      []int
	formats     []string
	aspectRatio float64
	fingerprint string
}

// Aggregator collects variant records. Record may be called concurrently and in
// any order; the published table only depends on the set of records.
type Aggregator struct {
	mu         sync.Mutex
	records    map[string]map[int]*groupRecord
	extensions []Extension

	once      sync.Once
	published imagemeta.Table
	err       error
}

// NewAggregator returns an aggregator applying extensions in order.
func NewAggregator(extensions ...Extension) *Aggregator {
	return &Aggregator{
		records:    make(map[string]map[int]*groupRecord),
		extensions: extensions,
	}
}

// Record adds one generated variant of the logical image name, produced by the
// configuration group at groupIndex.
func (a *Aggregator) Record(name string, groupIndex int, group config.Group, v imagemeta.Variant, aspectRatio float64) {
	name = imagemeta.NormalizeName(name)

	a.mu.Lock()
	defer a.mu.Unlock()

	byGroup, ok := a.records[name]
	if !ok {
		byGroup = make(map[int]*groupRecord)
		a.records[name] = byGroup
	}
	rec, ok := byGroup[groupIndex]
	if !ok {
		rec = &groupRecord{group: group}
		byGroup[groupIndex] = rec
	}
	if !slices.Contains(rec.widths, v.Width) {
		rec.widths = append(rec.widths, v.Width)
	}
	if !slices.Contains(rec.formats, v.Format) {
		rec.formats = append(rec.formats, v.Format)
	}
	rec.aspectRatio = aspectRatio
	if v.Fingerprint != "" {
		rec.fingerprint = v.Fingerprint
	}
}

// Publish merges the records of every image across groups in group order and
// applies the extensions. The first call computes the table; later calls return
// the same result without re-running extensions.
func (a *Aggregator) Publish() (imagemeta.Table, error) {
	a.once.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.published, a.err = a.publish()
	})
	return a.published, a.err
}

func (a *Aggregator) publish() (imagemeta.Table, error) {
	table := make(imagemeta.Table, len(a.records))
	names := make([]string, 0, len(a.records))
	for name := range a.records {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		meta, last := merge(a.records[name])
		for i, ext := range a.extensions {
			next, err := ext.Extend(name, meta.Clone(), last)
			if err != nil {
				return nil, &ExtensionError{Name: name, Index: i, Err: err}
			}
			meta = next
		}
		table[name] = meta
	}
	log.Debug("Published image metadata", "images", len(table), "extensions", len(a.extensions))
	return table, nil
}

// merge folds the per-group records of one image, lowest group index first.
// Widths and formats are unioned; the later group wins for scalar fields.
func merge(byGroup map[int]*groupRecord) (imagemeta.ImageMeta, config.Group) {
	indexes := make([]int, 0, len(byGroup))
	for i := range byGroup {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	var (
		meta imagemeta.ImageMeta
		last config.Group
	)
	for _, i := range indexes {
		rec := byGroup[i]
		for _, w := range rec.widths {
			if !slices.Contains(meta.Widths, w) {
				meta.Widths = append(meta.Widths, w)
			}
		}
		formats := slices.Clone(rec.formats)
		slices.Sort(formats)
		for _, f := range orderFormats(rec.group.Formats, formats) {
			if !slices.Contains(meta.Formats, f) {
				meta.Formats = append(meta.Formats, f)
			}
		}
		meta.AspectRatio = rec.aspectRatio
		meta.Fingerprint = rec.fingerprint
		meta.Destination = rec.group.Destination()
		last = rec.group
	}
	slices.Sort(meta.Widths)
	return meta, last
}

// orderFormats returns the recorded formats in configuration order, so the
// result does not depend on completion order. Formats the configuration does not
// list by name, such as a resolved "original", keep their sorted position at
// the front.
func orderFormats(configured, recorded []string) []string {
	out := make([]string, 0, len(recorded))
	for _, f := range recorded {
		if !slices.Contains(configured, f) {
			out = append(out, f)
		}
	}
	for _, f := range configured {
		if slices.Contains(recorded, f) {
			out = append(out, f)
		}
	}
	return out
}

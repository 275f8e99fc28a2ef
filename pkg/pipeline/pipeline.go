package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"slices"

	"github.com/lucas-albers-lz4/respimg/pkg/cache"
	"github.com/lucas-albers-lz4/respimg/pkg/codec"
	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
	"github.com/lucas-albers-lz4/respimg/pkg/input"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/metadata"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Options configures where a pipeline reads and writes.
type Options struct {
	// Fs holds both the input and the output tree
	Fs         afero.Fs
	InputRoot  string
	OutputRoot string
	// MetadataPath, when set, receives the serialized payload below OutputRoot
	MetadataPath string
	// Cache is reused across runs; nil means a fresh in-memory cache per pipeline
	Cache *cache.Cache
	// Codec defaults to codec.New()
	Codec codec.Codec
	// Workers bounds concurrent jobs; zero means runtime.NumCPU()
	Workers int
}

// Pipeline turns an input tree into responsive variants according to a normalized
// configuration file. A Pipeline may be run repeatedly; hooks must be registered
// before the first run.
type Pipeline struct {
	cfg        config.File
	opts       Options
	hooks      hooks
	extensions []metadata.Extension
}

// Result describes one successful build.
type Result struct {
	Table   imagemeta.Table
	Payload imagemeta.Payload
	// Written lists the output files, slash-separated and relative to OutputRoot
	Written []string
	// Removable lists sources processed by groups with RemoveSource set
	Removable []string
	Jobs      int
	Stats     cache.Stats
}

// New returns a pipeline for cfg. cfg is normalized here and validated by Run.
func New(cfg config.File, opts Options) *Pipeline {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(nil)
	}
	if opts.Codec == nil {
		opts.Codec = codec.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Pipeline{cfg: cfg.Normalize(), opts: opts}
}

// AddImagePreProcessor appends a pre-processing hook.
func (p *Pipeline) AddImagePreProcessor(h PreProcessor) {
	p.hooks.pre = append(p.hooks.pre, h)
}

// AddImagePostProcessor appends a post-processing hook.
func (p *Pipeline) AddImagePostProcessor(h PostProcessor) {
	p.hooks.post = append(p.hooks.post, h)
}

// AddMetadataExtension appends a metadata extension hook.
func (p *Pipeline) AddMetadataExtension(e metadata.Extension) {
	p.extensions = append(p.extensions, e)
}

// PruneCache evicts in-memory cache entries that no Run used since the previous
// PruneCache and returns how many were evicted. Long-lived callers such as a
// watcher call it after each successful Run.
func (p *Pipeline) PruneCache() int {
	return p.opts.Cache.Prune()
}

type jobResult struct {
	job         Job
	entry       *cache.Entry
	aspectRatio float64
}

// Run executes one build. Either every variant is produced and written, or an
// error is returned and the output tree is left untouched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	before := p.opts.Cache.Stats()

	selections, err := p.selectSources()
	if err != nil {
		return nil, err
	}

	sources, err := p.loadSources(ctx, selections)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	var removable []string
	for i, group := range p.cfg.Groups {
		for _, rel := range selections[i] {
			jobs = append(jobs, Plan(rel, sources[rel].info, group, i)...)
			if group.RemovesSource() && !slices.Contains(removable, rel) {
				removable = append(removable, rel)
			}
		}
	}
	slices.Sort(removable)

	results, err := p.execute(ctx, jobs, sources)
	if err != nil {
		return nil, err
	}

	agg := metadata.NewAggregator(p.extensions...)
	writer := NewWriter()
	if err := p.assemble(results, agg, writer); err != nil {
		return nil, err
	}

	table, err := agg.Publish()
	if err != nil {
		return nil, err
	}
	payload := imagemeta.Payload{Images: table, DeviceWidths: p.cfg.DeviceWidths, Prepend: p.cfg.Prepend}

	if p.opts.MetadataPath != "" {
		embedded, err := payload.Embed()
		if err != nil {
			return nil, err
		}
		writer.Add(len(p.cfg.Groups), "", p.opts.MetadataPath, []byte(embedded))
	}

	written, err := writer.Write(p.opts.Fs, p.opts.OutputRoot)
	if err != nil {
		return nil, err
	}

	after := p.opts.Cache.Stats()
	res := &Result{
		Table:     table,
		Payload:   payload,
		Written:   written,
		Removable: removable,
		Jobs:      len(jobs),
		Stats:     cache.Stats{Hits: after.Hits - before.Hits, Misses: after.Misses - before.Misses},
	}
	log.Info("Build finished",
		"images", len(table),
		"jobs", res.Jobs,
		"files", len(written),
		"hits", res.Stats.Hits,
		"misses", res.Stats.Misses)
	return res, nil
}

func (p *Pipeline) selectSources() ([][]string, error) {
	selections := make([][]string, len(p.cfg.Groups))
	for i, group := range p.cfg.Groups {
		selected, err := input.Select(p.opts.Fs, p.opts.InputRoot, group)
		if err != nil {
			return nil, err
		}
		log.Debug("Group selection", "group", i, "sources", len(selected))
		selections[i] = selected
	}
	return selections, nil
}

// loadSources reads, hashes and probes every selected source once.
func (p *Pipeline) loadSources(ctx context.Context, selections [][]string) (map[string]*source, error) {
	var unique []string
	for _, sel := range selections {
		for _, rel := range sel {
			if !slices.Contains(unique, rel) {
				unique = append(unique, rel)
			}
		}
	}

	loaded := make([]*source, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, rel := range unique {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s, err := p.loadSource(rel)
			if err != nil {
				return err
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources := make(map[string]*source, len(unique))
	for _, s := range loaded {
		sources[s.path] = s
	}
	return sources, nil
}

func (p *Pipeline) loadSource(rel string) (*source, error) {
	data, err := afero.ReadFile(p.opts.Fs, fileutil.JoinSlash(p.opts.InputRoot, rel))
	if err != nil {
		return nil, &SourceError{Source: rel, Err: err}
	}
	info, err := p.opts.Codec.Probe(data)
	if err != nil {
		return nil, &SourceError{Source: rel, Err: err}
	}
	return &source{path: rel, data: data, hash: cache.HashSource(data), info: info}, nil
}

// execute runs every job on a bounded worker pool. The first failure cancels the
// remaining jobs.
func (p *Pipeline) execute(ctx context.Context, jobs []Job, sources map[string]*source) ([]jobResult, error) {
	for _, j := range jobs {
		if src := sources[j.SourcePath]; !j.PassThrough || src.orientable() {
			src.retain()
		}
	}

	preChain, preCacheable := chainSignature(p.hooks.pre)
	postChain, postCacheable := chainSignature(p.hooks.post)
	cacheable := preCacheable && postCacheable
	if !cacheable {
		log.Debug("Hook without a signature registered, variants are not cached")
	}

	results := make([]jobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			src := sources[j.SourcePath]
			if j.PassThrough {
				res, err := p.passThrough(j, src)
				if err != nil {
					return newJobError(j, err)
				}
				results[i] = res
				return nil
			}
			defer src.release()

			if !cacheable {
				res, err := p.processUncached(gctx, j, src)
				if err != nil {
					return newJobError(j, err)
				}
				results[i] = res
				return nil
			}
			res, err := p.process(gctx, j, src, hookSignature(preChain, j.Group), hookSignature(postChain, j.Group))
			if err != nil {
				return newJobError(j, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a cancellation before any job failed still aborts the build
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// passThrough records the source bytes unchanged. Sources that may carry an
// orientation are decoded so their dimensions match the resized variants.
func (p *Pipeline) passThrough(j Job, src *source) (jobResult, error) {
	width, height := src.info.Width, src.info.Height
	if src.orientable() {
		defer src.release()
		img, err := src.decode(p.opts.Codec)
		if err != nil {
			return jobResult{}, err
		}
		width, height = img.Bounds().Dx(), img.Bounds().Dy()
	}
	entry := &cache.Entry{
		Data:         src.data,
		Digest:       cache.Digest(src.data),
		Format:       src.info.Format,
		Width:        width,
		Height:       height,
		SourceWidth:  width,
		SourceHeight: height,
	}
	return jobResult{job: j, entry: entry, aspectRatio: entry.AspectRatio()}, nil
}

func (p *Pipeline) process(ctx context.Context, j Job, src *source, preSig, postSig string) (jobResult, error) {
	key := cache.Key{
		SourceHash:    src.hash,
		Width:         j.Width,
		Format:        j.Format,
		Quality:       j.Group.QualityValue(),
		PreSignature:  preSig,
		PostSignature: postSig,
	}.String()

	entry, hit, err := p.opts.Cache.Do(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		return p.render(ctx, j, src)
	})
	if err != nil {
		return jobResult{}, err
	}
	log.Debug("Processed variant", "source", j.SourcePath, "width", j.Width, "format", j.Format, "key", key, "hit", hit)
	return jobResult{job: j, entry: entry, aspectRatio: entry.AspectRatio()}, nil
}

func (p *Pipeline) processUncached(ctx context.Context, j Job, src *source) (jobResult, error) {
	entry, err := p.opts.Cache.Compute(ctx, func(ctx context.Context) (*cache.Entry, error) {
		return p.render(ctx, j, src)
	})
	if err != nil {
		return jobResult{}, err
	}
	log.Debug("Processed variant without cache", "source", j.SourcePath, "width", j.Width, "format", j.Format)
	return jobResult{job: j, entry: entry, aspectRatio: entry.AspectRatio()}, nil
}

// render decodes (once per source), runs the hooks, resizes and encodes.
func (p *Pipeline) render(ctx context.Context, j Job, src *source) (*cache.Entry, error) {
	img, err := src.decode(p.opts.Codec)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, &SourceError{Source: src.path, Err: errors.New("image has no pixels")}
	}
	height := imagemeta.HeightFor(j.Width, float64(srcW)/float64(srcH))

	img, err = p.hooks.runPre(ctx, img, j)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := p.opts.Codec.Resize(img, j.Width, height)
	var buf bytes.Buffer
	if err := p.opts.Codec.Encode(&buf, resized, j.Format, j.Group.QualityValue()); err != nil {
		return nil, err
	}

	data, err := p.hooks.runPost(ctx, buf.Bytes(), j)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{
		Data:         data,
		Digest:       cache.Digest(data),
		Format:       j.Format,
		Width:        j.Width,
		Height:       height,
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}, nil
}

// imageGroups collects the results of one logical image, in group order.
type imageGroups struct {
	groups  []int
	results map[int][]jobResult
}

// assemble names every result, queues it for writing and records it. One
// fingerprint is derived per logical image from the digests of all its variants
// across groups, so the runtime can rebuild every variant name from the merged
// metadata. Groups sharing an image must agree on its destination and on
// fingerprinting.
func (p *Pipeline) assemble(results []jobResult, agg *metadata.Aggregator, writer *Writer) error {
	images := make(map[string]*imageGroups)
	var names []string
	for _, r := range results {
		img, ok := images[r.job.LogicalName]
		if !ok {
			img = &imageGroups{results: make(map[int][]jobResult)}
			images[r.job.LogicalName] = img
			names = append(names, r.job.LogicalName)
		}
		if _, ok := img.results[r.job.GroupIndex]; !ok {
			img.groups = append(img.groups, r.job.GroupIndex)
		}
		img.results[r.job.GroupIndex] = append(img.results[r.job.GroupIndex], r)
	}
	slices.Sort(names)

	for _, name := range names {
		img := images[name]
		slices.Sort(img.groups)
		if err := checkGroups(name, img, p.cfg.Groups); err != nil {
			return err
		}
		if err := checkCoverage(name, img); err != nil {
			return err
		}

		fingerprint := ""
		if p.cfg.Groups[img.groups[0]].Fingerprinted() {
			var digests []string
			for _, gi := range img.groups {
				for _, r := range img.results[gi] {
					digests = append(digests, r.entry.Digest)
				}
			}
			fingerprint = cache.Fingerprint(digests)
		}

		for _, gi := range img.groups {
			group := p.cfg.Groups[gi]
			for _, r := range img.results[gi] {
				file := imagemeta.FileName(name, r.entry.Width, fingerprint, r.entry.Format)
				out := fileutil.CleanSlash(path.Join(group.OutputDir, file))
				writer.Add(gi, r.job.SourcePath, out, r.entry.Data)
				agg.Record(name, gi, group, imagemeta.Variant{
					Path:        out,
					Width:       r.entry.Width,
					Height:      r.entry.Height,
					Format:      r.entry.Format,
					Fingerprint: fingerprint,
				}, r.aspectRatio)
			}
		}
	}
	return nil
}

// checkGroups rejects groups that would publish variants of one image under
// different URL directories or naming schemes, since the merged metadata holds a
// single destination and fingerprint per image.
func checkGroups(name string, img *imageGroups, groups []config.Group) error {
	first := groups[img.groups[0]]
	for _, gi := range img.groups[1:] {
		g := groups[gi]
		switch {
		case g.Destination() != first.Destination():
			return &ConflictError{
				Name:   name,
				Groups: [2]int{img.groups[0], gi},
				Detail: fmt.Sprintf("destination %s differs from %s", g.Destination(), first.Destination()),
			}
		case g.Fingerprinted() != first.Fingerprinted():
			return &ConflictError{
				Name:   name,
				Groups: [2]int{img.groups[0], gi},
				Detail: "only one of them fingerprints filenames",
			}
		}
	}
	return nil
}

// checkCoverage rejects layered groups whose merged widths and formats name a
// variant no group produced. The runtime offers every width in every format.
func checkCoverage(name string, img *imageGroups) error {
	type variantKey struct {
		width  int
		format string
	}
	produced := make(map[variantKey]struct{})
	var widths []int
	var formats []string
	for _, gi := range img.groups {
		for _, r := range img.results[gi] {
			produced[variantKey{r.entry.Width, r.entry.Format}] = struct{}{}
			if !slices.Contains(widths, r.entry.Width) {
				widths = append(widths, r.entry.Width)
			}
			if !slices.Contains(formats, r.entry.Format) {
				formats = append(formats, r.entry.Format)
			}
		}
	}
	if len(img.groups) < 2 || len(produced) == len(widths)*len(formats) {
		return nil
	}
	slices.Sort(widths)
	slices.Sort(formats)
	for _, w := range widths {
		for _, f := range formats {
			if _, ok := produced[variantKey{w, f}]; ok {
				continue
			}
			return &ConflictError{
				Name:   name,
				Groups: [2]int{img.groups[0], img.groups[len(img.groups)-1]},
				Detail: fmt.Sprintf("no group produces %s at %dw", f, w),
			}
		}
	}
	return nil
}

// String summarizes a result for logs and the CLI.
func (r *Result) String() string {
	return fmt.Sprintf("%d images, %d files written, %d cache hits, %d misses", len(r.Table), len(r.Written), r.Stats.Hits, r.Stats.Misses)
}

// Package pipeline plans, executes and writes responsive image variants for a set
// of configuration groups.
package pipeline

import (
	"fmt"
	"slices"

	"github.com/lucas-albers-lz4/respimg/pkg/codec"
	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
)

// Job is one unit of work: one source image rendered at one width in one format.
type Job struct {
	// SourcePath is the slash-separated path of the source below the input root
	SourcePath string
	// LogicalName identifies every variant of the source in the metadata table
	LogicalName string
	Width       int
	Format      string
	Group       config.Group
	GroupIndex  int
	// PassThrough copies the source bytes without resizing or re-encoding
	PassThrough bool
}

func (j Job) String() string {
	return fmt.Sprintf("%s at %dw as %s", j.SourcePath, j.Width, j.Format)
}

// Plan expands one source image into its jobs for a group. info is the probed
// source header; its format resolves "original" and its width is the only width
// of a pass-through job. Widths above the natural width are kept.
func Plan(source string, info codec.Info, group config.Group, groupIndex int) []Job {
	name := imagemeta.NormalizeName(source)
	base := Job{
		SourcePath:  source,
		LogicalName: name,
		Group:       group,
		GroupIndex:  groupIndex,
	}

	if group.JustCopy {
		j := base
		j.Width = info.Width
		j.Format = info.Format
		j.PassThrough = true
		return []Job{j}
	}

	formats := make([]string, 0, len(group.Formats))
	for _, f := range group.Formats {
		if f == config.FormatOriginal {
			f = info.Format
		}
		if f != "" && !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}

	jobs := make([]Job, 0, len(group.Widths)*len(formats))
	for _, w := range group.Widths {
		for _, f := range formats {
			j := base
			j.Width = w
			j.Format = f
			jobs = append(jobs, j)
		}
	}
	return jobs
}

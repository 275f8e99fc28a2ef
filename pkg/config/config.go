// Package config models respimg configuration groups: one include/exclude-scoped
// set of resizing rules each. A build may have several groups, merged at output time.
package config

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// FormatOriginal stands for "the source image's own format" in Group.Formats.
const FormatOriginal = "original"

// Default values applied by Normalize to fields left empty.
var (
	DefaultQuality      = 80
	DefaultWidths       = []int{2048, 1536, 1080, 750, 640}
	DefaultFormats      = []string{FormatOriginal, "webp"}
	DefaultOutputDir    = "/"
	DefaultDeviceWidths = []int{640, 750, 828, 1080, 1200, 1920, 2048, 3840}
)

// Group is one configuration group.
type Group struct {
	// Include lists glob patterns selecting source images (required)
	Include []string `json:"include" yaml:"include" toml:"include"`
	// Exclude lists glob patterns removed from the selection
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude"`
	// Quality is the encoder quality, 0-100
	Quality *int `json:"quality,omitempty" yaml:"quality,omitempty" toml:"quality"`
	// Widths are the target widths, normalized ascending and unique
	Widths []int `json:"supportedWidths,omitempty" yaml:"supportedWidths,omitempty" toml:"supportedWidths"`
	// Formats are the output formats; "original" keeps the source format
	Formats []string `json:"formats,omitempty" yaml:"formats,omitempty" toml:"formats"`
	// RemoveSource marks processed sources for deletion by the cleanup step
	RemoveSource *bool `json:"removeSource,omitempty" yaml:"removeSource,omitempty" toml:"removeSource"`
	// JustCopy copies sources unmodified instead of resizing
	JustCopy bool `json:"justCopy,omitempty" yaml:"justCopy,omitempty" toml:"justCopy"`
	// OutputDir is the directory, relative to the output root, receiving variants
	OutputDir string `json:"destinationDir,omitempty" yaml:"destinationDir,omitempty" toml:"destinationDir"`
	// URLPrefix is the root URL the output tree is served under
	URLPrefix string `json:"rootURL,omitempty" yaml:"rootURL,omitempty" toml:"rootURL"`
	// FingerprintPrefix enables fingerprinted filenames when non-empty
	FingerprintPrefix string `json:"fingerprintPrefix,omitempty" yaml:"fingerprintPrefix,omitempty" toml:"fingerprintPrefix"`
}

// File is the top-level configuration document.
type File struct {
	// Prepend is published with the metadata and prefixed to every variant URL
	Prepend string `json:"prepend,omitempty" yaml:"prepend,omitempty" toml:"prepend"`
	// DeviceWidths is the default-size hint published for the runtime
	DeviceWidths []int `json:"deviceWidths,omitempty" yaml:"deviceWidths,omitempty" toml:"deviceWidths"`
	// Groups are the configuration groups, processed in order
	Groups []Group `json:"groups" yaml:"groups" toml:"groups"`
}

// QualityValue returns the configured quality.
func (g Group) QualityValue() int {
	if g.Quality == nil {
		return DefaultQuality
	}
	return *g.Quality
}

// RemovesSource reports whether the cleanup step should delete this group's sources.
func (g Group) RemovesSource() bool {
	return g.RemoveSource == nil || *g.RemoveSource
}

// Fingerprinted reports whether output filenames carry a fingerprint suffix.
func (g Group) Fingerprinted() bool {
	return g.FingerprintPrefix != ""
}

// Destination is the URL directory variants of this group are served from.
func (g Group) Destination() string {
	return path.Join("/", g.URLPrefix, g.OutputDir)
}

// Normalize fills defaults and canonicalizes list fields. It does not validate.
func (g Group) Normalize() Group {
	out := g
	out.Include = compactPatterns(g.Include)
	out.Exclude = compactPatterns(g.Exclude)
	if out.Quality == nil {
		q := DefaultQuality
		out.Quality = &q
	}
	if out.RemoveSource == nil {
		rs := true
		out.RemoveSource = &rs
	}

	widths := g.Widths
	if len(widths) == 0 {
		widths = DefaultWidths
	}
	out.Widths = slices.Clone(widths)
	slices.Sort(out.Widths)
	out.Widths = slices.Compact(out.Widths)

	formats := g.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	out.Formats = nil
	for _, f := range formats {
		f = NormalizeFormat(f)
		if f != "" && !slices.Contains(out.Formats, f) {
			out.Formats = append(out.Formats, f)
		}
	}

	if out.OutputDir == "" {
		out.OutputDir = DefaultOutputDir
	}
	return out
}

// Normalize returns a copy of f with every group normalized and top-level defaults applied.
func (f File) Normalize() File {
	out := File{Prepend: f.Prepend}
	for _, g := range f.Groups {
		out.Groups = append(out.Groups, g.Normalize())
	}
	out.DeviceWidths = slices.Clone(f.DeviceWidths)
	if len(out.DeviceWidths) == 0 {
		out.DeviceWidths = slices.Clone(DefaultDeviceWidths)
	}
	slices.Sort(out.DeviceWidths)
	out.DeviceWidths = slices.Compact(out.DeviceWidths)
	if out.Prepend == "" {
		for _, g := range out.Groups {
			if g.FingerprintPrefix != "" {
				out.Prepend = g.FingerprintPrefix
				break
			}
		}
	}
	return out
}

// NormalizeFormat lowercases a format name and maps aliases to canonical names.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	switch f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return f
}

func compactPatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String renders a short description of the group for logs.
func (g Group) String() string {
	return fmt.Sprintf("include=%v exclude=%v widths=%v formats=%v", g.Include, g.Exclude, g.Widths, g.Formats)
}

// Package imagemeta defines the metadata contract shared by the build pipeline and
// the runtime selector, together with the variant naming convention.
package imagemeta

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

// ImageMeta describes every generated variant of one logical image.
type ImageMeta struct {
	Widths      []int    `json:"widths" yaml:"widths"`
	Formats     []string `json:"formats" yaml:"formats"`
	AspectRatio float64  `json:"aspectRatio" yaml:"aspectRatio"`
	Fingerprint string   `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Destination string   `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// Variant is one concrete generated file.
type Variant struct {
	Path        string `json:"path" yaml:"path"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	Format      string `json:"type" yaml:"type"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
}

// Table maps logical image names to their metadata.
type Table map[string]ImageMeta

// Payload is the published build→runtime document.
type Payload struct {
	Images       Table  `json:"images" yaml:"images"`
	DeviceWidths []int  `json:"deviceWidths" yaml:"deviceWidths"`
	Prepend      string `json:"prepend" yaml:"prepend"`
}

// Clone returns a deep copy of m.
func (m ImageMeta) Clone() ImageMeta {
	out := m
	out.Widths = slices.Clone(m.Widths)
	out.Formats = slices.Clone(m.Formats)
	return out
}

// HasFormat reports whether the image has variants in format.
func (m ImageMeta) HasFormat(format string) bool {
	return slices.Contains(m.Formats, format)
}

// Height returns the height of the variant of the given width.
func (m ImageMeta) Height(width int) int {
	return HeightFor(width, m.AspectRatio)
}

// HeightFor computes round(width / aspectRatio).
func HeightFor(width int, aspectRatio float64) int {
	if aspectRatio <= 0 {
		return width
	}
	h := int(float64(width)/aspectRatio + 0.5)
	return max(h, 1)
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, m := range t {
		out[name] = m.Clone()
	}
	return out
}

// Names returns the logical names in t, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Embed serializes the payload as a JSON string suitable for inlining into a page.
func (p Payload) Embed() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to serialize image metadata: %w", err)
	}
	return string(data), nil
}

// ParsePayload decodes a payload produced by Embed or json.Marshal.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to parse image metadata: %w", err)
	}
	if p.Images == nil {
		p.Images = Table{}
	}
	return p, nil
}

// Extension returns the file extension, without the dot, used for format.
func Extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// NormalizeName turns a logical name into its lookup form: slash-separated, with
// no leading separator.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(path.Clean("/"+name), "/")
}

// FileName builds the variant filename {stem}{width}w[-{fingerprint}].{ext} for the
// logical name, keeping the name's directory. An empty fingerprint omits the suffix.
func FileName(name string, width int, fingerprint, format string) string {
	name = NormalizeName(name)
	dir, base := path.Split(name)
	stem := strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	b.WriteString(dir)
	b.WriteString(stem)
	b.WriteString(strconv.Itoa(width))
	b.WriteByte('w')
	if fingerprint != "" {
		b.WriteByte('-')
		b.WriteString(fingerprint)
	}
	b.WriteByte('.')
	b.WriteString(Extension(format))
	return b.String()
}

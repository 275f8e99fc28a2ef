// Package responsive selects the best-fitting generated image variant at runtime
// from a published metadata payload.
package responsive

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lucas-albers-lz4/respimg/pkg/imagemeta"
)

// Lookup errors.
var (
	ErrImageNotFound = errors.New("no such image")
	ErrTypeNotFound  = errors.New("no such type for image")
)

// DefaultPhysicalWidth is used when the payload carries no device widths.
const DefaultPhysicalWidth = 1920

// Service answers variant queries against an immutable metadata payload. It is
// safe for concurrent use; only the physical width hint is mutable.
type Service struct {
	payload       imagemeta.Payload
	physicalWidth atomic.Int64
}

// New returns a Service over payload. The physical width starts at the largest
// device width.
func New(payload imagemeta.Payload) *Service {
	s := &Service{payload: payload}
	if s.payload.Images == nil {
		s.payload.Images = imagemeta.Table{}
	}
	w := DefaultPhysicalWidth
	if len(payload.DeviceWidths) > 0 {
		w = slices.Max(payload.DeviceWidths)
	}
	s.physicalWidth.Store(int64(w))
	return s
}

// FromJSON parses a serialized payload and returns a Service over it.
func FromJSON(data []byte) (*Service, error) {
	p, err := imagemeta.ParsePayload(data)
	if err != nil {
		return nil, err
	}
	return New(p), nil
}

// SetPhysicalWidth sets the rendering width, in device pixels, used when a caller
// does not request a size.
func (s *Service) SetPhysicalWidth(width int) {
	s.physicalWidth.Store(int64(width))
}

// PhysicalWidth returns the current rendering width hint.
func (s *Service) PhysicalWidth() int {
	return int(s.physicalWidth.Load())
}

// Payload returns the payload the service was built from.
func (s *Service) Payload() imagemeta.Payload {
	return s.payload
}

// GetImageMeta returns the metadata of the logical image name.
func (s *Service) GetImageMeta(name string) (imagemeta.ImageMeta, error) {
	key := imagemeta.NormalizeName(name)
	meta, ok := s.payload.Images[key]
	if !ok {
		return imagemeta.ImageMeta{}, fmt.Errorf("%w: %s", ErrImageNotFound, key)
	}
	return meta, nil
}

// GetImages returns every variant of name, ascending by width and in recorded
// format order within one width. A non-empty typ keeps only that format.
func (s *Service) GetImages(name, typ string) ([]imagemeta.Variant, error) {
	key := imagemeta.NormalizeName(name)
	meta, err := s.GetImageMeta(key)
	if err != nil {
		return nil, err
	}

	formats := meta.Formats
	if typ != "" {
		if !meta.HasFormat(typ) {
			return nil, fmt.Errorf("%w: %s has no %s variants", ErrTypeNotFound, key, typ)
		}
		formats = []string{typ}
	}

	widths := slices.Clone(meta.Widths)
	slices.Sort(widths)

	variants := make([]imagemeta.Variant, 0, len(widths)*len(formats))
	for _, w := range widths {
		for _, f := range formats {
			variants = append(variants, s.variant(key, meta, w, f))
		}
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: %s has no variants", ErrTypeNotFound, key)
	}
	return variants, nil
}

// GetAvailableTypes returns the formats recorded for name.
func (s *Service) GetAvailableTypes(name string) ([]string, error) {
	meta, err := s.GetImageMeta(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(meta.Formats), nil
}

// GetImageMetaBySize returns the variant with the smallest width not below width,
// or the largest variant when none is wide enough. A width of zero or less uses
// the physical width hint.
func (s *Service) GetImageMetaBySize(name string, width int, typ string) (imagemeta.Variant, error) {
	if width <= 0 {
		width = s.PhysicalWidth()
	}
	variants, err := s.GetImages(name, typ)
	if err != nil {
		return imagemeta.Variant{}, err
	}
	for _, v := range variants {
		if v.Width >= width {
			return v, nil
		}
	}
	// variants is ascending by width; return the first of the widest
	widest := variants[len(variants)-1].Width
	for _, v := range variants {
		if v.Width == widest {
			return v, nil
		}
	}
	return variants[len(variants)-1], nil
}

// DestinationWidthBySize converts a viewport share in percent (vw) to device
// pixels using the physical width hint. Zero or less means the full viewport.
func (s *Service) DestinationWidthBySize(vw int) int {
	if vw <= 0 {
		vw = 100
	}
	return s.PhysicalWidth() * vw / 100
}

// SrcSet renders the variants of name as an HTML srcset attribute value.
func (s *Service) SrcSet(name, typ string) (string, error) {
	variants, err := s.GetImages(name, typ)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(variants))
	for _, v := range variants {
		parts = append(parts, v.Path+" "+strconv.Itoa(v.Width)+"w")
	}
	return strings.Join(parts, ", "), nil
}

func (s *Service) variant(name string, meta imagemeta.ImageMeta, width int, format string) imagemeta.Variant {
	dest := meta.Destination
	if dest == "" {
		dest = "/"
	}
	file := path.Base(imagemeta.FileName(name, width, meta.Fingerprint, format))
	url := strings.TrimRight(s.payload.Prepend, "/") + path.Join("/", dest, path.Dir(name), file)
	return imagemeta.Variant{
		Path:        url,
		Width:       width,
		Height:      meta.Height(width),
		Format:      format,
		Fingerprint: meta.Fingerprint,
	}
}

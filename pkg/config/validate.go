package config

import (
	"errors"
	"fmt"

	"github.com/gobwas/glob"
)

// Sentinel configuration errors.
var (
	ErrNoGroups          = errors.New("no configuration groups given")
	ErrMissingInclude    = errors.New("include pattern must be given for responsive image config")
	ErrInvalidPattern    = errors.New("invalid glob pattern")
	ErrInvalidQuality    = errors.New("quality must be between 0 and 100")
	ErrInvalidWidth      = errors.New("widths must be strictly positive")
	ErrMissingFormats    = errors.New("at least one output format is required")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrUnsupportedConfig = errors.New("unsupported config file extension")
)

// ValidationError names the configuration group a validation failure belongs to.
type ValidationError struct {
	Group int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration group %d: %v", e.Group, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SupportedFormats are the output formats the codec can encode.
var SupportedFormats = []string{FormatOriginal, "jpeg", "png", "gif", "tiff", "bmp", "webp"}

// Validate checks a normalized group.
func (g Group) Validate() error {
	if len(g.Include) == 0 {
		return ErrMissingInclude
	}
	for _, p := range append(append([]string{}, g.Include...), g.Exclude...) {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidPattern, p, err)
		}
	}
	if q := g.QualityValue(); q < 0 || q > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuality, q)
	}
	for _, w := range g.Widths {
		if w <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidWidth, w)
		}
	}
	if len(g.Formats) == 0 {
		return ErrMissingFormats
	}
	for _, f := range g.Formats {
		if !isSupported(f) {
			return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
	}
	return nil
}

// Validate checks every group of a normalized file.
func (f File) Validate() error {
	if len(f.Groups) == 0 {
		return ErrNoGroups
	}
	for i, g := range f.Groups {
		if err := g.Validate(); err != nil {
			return &ValidationError{Group: i, Err: err}
		}
	}
	for _, w := range f.DeviceWidths {
		if w <= 0 {
			return fmt.Errorf("deviceWidths: %w: got %d", ErrInvalidWidth, w)
		}
	}
	return nil
}

func isSupported(format string) bool {
	for _, s := range SupportedFormats {
		if s == format {
			return true
		}
	}
	return false
}

package pipeline

import (
	"errors"
	"fmt"
)

// ErrConflictingGroups is returned when groups selecting the same image disagree
// on how its variants are addressed.
var ErrConflictingGroups = errors.New("groups publish one image under different URLs")

// SourceError reports a source image that could not be read or decoded.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// JobError reports a failed job with its source, width and format.
type JobError struct {
	Source string
	Width  int
	Format string
	Err    error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("processing %s at %dw as %s: %v", e.Source, e.Width, e.Format, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func newJobError(j Job, err error) *JobError {
	return &JobError{Source: j.SourcePath, Width: j.Width, Format: j.Format, Err: err}
}

// ConflictError names the image and the two groups that disagree on its
// destination or on fingerprinting.
type ConflictError struct {
	Name   string
	Groups [2]int
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: groups %d and %d: %s: %v", e.Name, e.Groups[0], e.Groups[1], e.Detail, ErrConflictingGroups)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflictingGroups
}

package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/lucas-albers-lz4/respimg/pkg/config"
)

// PreProcessor transforms the decoded image before it is resized. The input image
// is shared by every job of the source and must not be modified in place.
type PreProcessor interface {
	PreProcess(ctx context.Context, img image.Image, job Job) (image.Image, error)
}

// PostProcessor transforms the encoded variant bytes.
type PostProcessor interface {
	PostProcess(ctx context.Context, data []byte, job Job) ([]byte, error)
}

// Signer identifies what a hook does. The signature becomes part of the cache
// key, so changing it invalidates cached variants. Variants produced by a chain
// containing any hook without a signature are never cached.
type Signer interface {
	Signature() string
}

// PreProcessorFunc adapts a function to PreProcessor.
type PreProcessorFunc func(ctx context.Context, img image.Image, job Job) (image.Image, error)

// PreProcess implements PreProcessor.
func (f PreProcessorFunc) PreProcess(ctx context.Context, img image.Image, job Job) (image.Image, error) {
	return f(ctx, img, job)
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, data []byte, job Job) ([]byte, error)

// PostProcess implements PostProcessor.
func (f PostProcessorFunc) PostProcess(ctx context.Context, data []byte, job Job) ([]byte, error) {
	return f(ctx, data, job)
}

// SignedPreProcessor pairs a function with the signature identifying its
// behavior, so its output can be cached. Change the signature whenever the
// function changes.
func SignedPreProcessor(signature string, f PreProcessorFunc) PreProcessor {
	return signedPre{PreProcessorFunc: f, signature: signature}
}

// SignedPostProcessor is SignedPreProcessor for post-processing hooks.
func SignedPostProcessor(signature string, f PostProcessorFunc) PostProcessor {
	return signedPost{PostProcessorFunc: f, signature: signature}
}

type signedPre struct {
	PreProcessorFunc
	signature string
}

func (s signedPre) Signature() string { return s.signature }

type signedPost struct {
	PostProcessorFunc
	signature string
}

func (s signedPost) Signature() string { return s.signature }

// hooks is the ordered hook registry of one pipeline.
type hooks struct {
	pre  []PreProcessor
	post []PostProcessor
}

func (h *hooks) runPre(ctx context.Context, img image.Image, job Job) (image.Image, error) {
	for i, p := range h.pre {
		next, err := p.PreProcess(ctx, img, job)
		if err != nil {
			return nil, fmt.Errorf("pre-processor %d: %w", i, err)
		}
		if next != nil {
			img = next
		}
	}
	return img, nil
}

func (h *hooks) runPost(ctx context.Context, data []byte, job Job) ([]byte, error) {
	for i, p := range h.post {
		next, err := p.PostProcess(ctx, data, job)
		if err != nil {
			return nil, fmt.Errorf("post-processor %d: %w", i, err)
		}
		if next != nil {
			data = next
		}
	}
	return data, nil
}

// chainSignature identifies an ordered hook chain. cacheable is false when any
// hook lacks a Signature, since the output of such a chain cannot be keyed.
func chainSignature[T any](chain []T) (sig string, cacheable bool) {
	parts := make([]string, 0, len(chain))
	for i, h := range chain {
		s, ok := any(h).(Signer)
		if !ok {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%d:%s", i, s.Signature()))
	}
	return strings.Join(parts, ";"), true
}

// hookSignature scopes a non-empty chain signature to the group, since hooks see
// the group configuration and may depend on it.
func hookSignature(chain string, g config.Group) string {
	if chain == "" {
		return ""
	}
	return fmt.Sprintf("%s|%v|%v|%d|%s|%s|%s", chain, g.Include, g.Exclude, g.QualityValue(), g.OutputDir, g.URLPrefix, g.FingerprintPrefix)
}

package pipeline

import (
	"context"
	"errors"
	"image"
	"strconv"
	"testing"

	"github.com/lucas-albers-lz4/respimg/pkg/codec"
	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	pngInfo := codec.Info{Width: 200, Height: 100, Format: "png"}

	t.Run("widths times formats with original resolved", func(t *testing.T) {
		g := config.Group{Include: []string{"**"}, Widths: []int{100, 50}, Formats: []string{"original", "webp", "png"}}.Normalize()
		jobs := Plan("/images/test.png", pngInfo, g, 2)

		var got []string
		for _, j := range jobs {
			assert.Equal(t, "images/test.png", j.LogicalName)
			assert.Equal(t, 2, j.GroupIndex)
			assert.False(t, j.PassThrough)
			got = append(got, j.Format+"@"+strconv.Itoa(j.Width))
		}
		assert.Equal(t, []string{"png@50", "webp@50", "png@100", "webp@100"}, got)
	})

	t.Run("upscaling is kept", func(t *testing.T) {
		g := config.Group{Include: []string{"**"}, Widths: []int{400}, Formats: []string{"jpeg"}}.Normalize()
		jobs := Plan("test.png", pngInfo, g, 0)
		require.Len(t, jobs, 1)
		assert.Equal(t, 400, jobs[0].Width)
	})

	t.Run("just copy", func(t *testing.T) {
		g := config.Group{Include: []string{"**"}, Widths: []int{50, 100}, JustCopy: true}.Normalize()
		jobs := Plan("test.png", pngInfo, g, 0)
		require.Len(t, jobs, 1)
		assert.True(t, jobs[0].PassThrough)
		assert.Equal(t, 200, jobs[0].Width)
		assert.Equal(t, "png", jobs[0].Format)
	})
}

func TestJobString(t *testing.T) {
	assert.Equal(t, "a.png at 50w as webp", Job{SourcePath: "a.png", Width: 50, Format: "webp"}.String())
}

type signedHook struct{ sig string }

func (s signedHook) PostProcess(_ context.Context, data []byte, _ Job) ([]byte, error) {
	return data, nil
}

func (s signedHook) Signature() string {
	return s.sig
}

func TestChainSignature(t *testing.T) {
	empty, ok := chainSignature([]PostProcessor(nil))
	assert.True(t, ok)
	assert.Equal(t, "", empty)

	a, ok := chainSignature([]PostProcessor{signedHook{"v1"}})
	require.True(t, ok)
	b, _ := chainSignature([]PostProcessor{signedHook{"v2"}})
	assert.NotEqual(t, a, b)

	ab, _ := chainSignature([]PostProcessor{signedHook{"x"}, signedHook{"y"}})
	ba, _ := chainSignature([]PostProcessor{signedHook{"y"}, signedHook{"x"}})
	assert.NotEqual(t, ab, ba, "order matters")

	fn := PostProcessorFunc(func(_ context.Context, data []byte, _ Job) ([]byte, error) { return data, nil })
	_, ok = chainSignature([]PostProcessor{signedHook{"x"}, fn})
	assert.False(t, ok, "a function hook has no stable identity")

	signed, ok := chainSignature([]PostProcessor{SignedPostProcessor("strip-v1", fn)})
	assert.True(t, ok)
	assert.Equal(t, "0:strip-v1", signed)

	g1 := config.Group{Include: []string{"a"}}.Normalize()
	g2 := config.Group{Include: []string{"b"}}.Normalize()
	assert.Equal(t, "", hookSignature("", g1))
	assert.NotEqual(t, hookSignature(a, g1), hookSignature(a, g2))
}

func TestHooksRunInOrder(t *testing.T) {
	var h hooks
	var order []string
	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	replacement := image.NewNRGBA(image.Rect(0, 0, 2, 2))

	h.pre = append(h.pre,
		PreProcessorFunc(func(_ context.Context, img image.Image, _ Job) (image.Image, error) {
			order = append(order, "first")
			assert.Same(t, base, img)
			return replacement, nil
		}),
		PreProcessorFunc(func(_ context.Context, img image.Image, _ Job) (image.Image, error) {
			order = append(order, "second")
			assert.Same(t, replacement, img)
			return nil, nil
		}),
	)
	out, err := h.runPre(context.Background(), base, Job{})
	require.NoError(t, err)
	assert.Same(t, replacement, out, "a nil result keeps the previous image")
	assert.Equal(t, []string{"first", "second"}, order)

	h.post = append(h.post,
		PostProcessorFunc(func(_ context.Context, data []byte, _ Job) ([]byte, error) { return append(data, 'A'), nil }),
		PostProcessorFunc(func(_ context.Context, data []byte, _ Job) ([]byte, error) { return append(data, 'B'), nil }),
	)
	data, err := h.runPost(context.Background(), []byte("x"), Job{})
	require.NoError(t, err)
	assert.Equal(t, "xAB", string(data))

	boom := errors.New("boom")
	h.post = append(h.post, PostProcessorFunc(func(context.Context, []byte, Job) ([]byte, error) { return nil, boom }))
	_, err = h.runPost(context.Background(), []byte("x"), Job{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "post-processor 2")
}

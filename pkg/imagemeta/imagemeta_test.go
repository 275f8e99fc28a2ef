package imagemeta

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name        string
		logical     string
		width       int
		fingerprint string
		format      string
		want        string
	}{
		{"plain", "test.png", 50, "", "png", "test50w.png"},
		{"other format", "test.png", 100, "", "webp", "test100w.webp"},
		{"fingerprinted", "test.png", 50, "1234567890", "png", "test50w-1234567890.png"},
		{"jpeg extension", "photo.jpeg", 640, "", "jpeg", "photo640w.jpg"},
		{"keeps directory", "assets/images/hero.jpg", 750, "", "webp", "assets/images/hero750w.webp"},
		{"leading slash", "/test.png", 50, "", "png", "test50w.png"},
		{"dotted stem", "my.photo.png", 10, "", "png", "my.photo10w.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.logical, tt.width, tt.fingerprint, tt.format))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "test.png", NormalizeName("/test.png"))
	assert.Equal(t, "test.png", NormalizeName("test.png"))
	assert.Equal(t, "a/b.png", NormalizeName("a//./b.png"))
	assert.Equal(t, "a/b.png", NormalizeName(`a\b.png`))
}

func TestHeightFor(t *testing.T) {
	assert.Equal(t, 50, HeightFor(50, 1))
	assert.Equal(t, 75, HeightFor(100, 4.0/3.0))
	assert.Equal(t, 33, HeightFor(50, 1.5), "33.33 rounds down")
	assert.Equal(t, 34, HeightFor(101, 3), "33.67 rounds up")
	assert.Equal(t, 1, HeightFor(1, 1000), "never collapses to zero")
	assert.Equal(t, 20, HeightFor(20, 0), "unknown ratio keeps square")
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		Images: Table{
			"test.png": {
				Widths:      []int{50, 100},
				Formats:     []string{"png", "webp"},
				AspectRatio: 1.3333333333333333,
				Fingerprint: "1234567890",
				Destination: "/assets",
			},
			"b.jpg": {Widths: []int{640}, Formats: []string{"jpeg"}, AspectRatio: 0.5},
		},
		DeviceWidths: []int{640, 1080},
		Prepend:      "https://cdn.example.com/",
	}

	s, err := p.Embed()
	require.NoError(t, err)
	assert.Contains(t, s, `"deviceWidths":[640,1080]`)
	assert.NotContains(t, s, `"fingerprint":""`)

	got, err := ParsePayload([]byte(s))
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("payload changed across JSON (-want +got):\n%s", diff)
	}
}

func TestParsePayloadEmpty(t *testing.T) {
	p, err := ParsePayload([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, p.Images)

	_, err = ParsePayload([]byte(`{`))
	assert.Error(t, err)
}

func TestTableCloneIsDeep(t *testing.T) {
	orig := Table{"a.png": {Widths: []int{1, 2}, Formats: []string{"png"}}}
	c := orig.Clone()
	c["a.png"].Widths[0] = 99
	assert.Equal(t, 1, orig["a.png"].Widths[0])
	assert.Equal(t, []string{"a.png"}, c.Names())
}

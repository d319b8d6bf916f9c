package images

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/avif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// webpChunk returns the fourcc of the first chunk after the RIFF header:
// "VP8L" for lossless, "VP8 " for lossy.
func webpChunk(t *testing.T, data []byte) string {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 16)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WEBP", string(data[8:12]))
	return string(data[12:16])
}

func decodeConfig(t *testing.T, f Format, data []byte) image.Config {
	t.Helper()
	var (
		cfg image.Config
		err error
	)
	if f == FormatAVIF {
		cfg, err = avif.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	require.NoError(t, err)
	return cfg
}

func TestEncode(t *testing.T) {
	src := fixture(40, 20)

	tests := []struct {
		name      string
		format    Format
		settings  EncodeSettings
		webpChunk string
	}{
		{name: "avif lossless", format: FormatAVIF, settings: EncodeSettings{Lossless: true}},
		{name: "avif quality 50", format: FormatAVIF, settings: EncodeSettings{Quality: 50}},
		{name: "webp lossless", format: FormatWebP, settings: EncodeSettings{Lossless: true}, webpChunk: "VP8L"},
		{name: "webp quality 80", format: FormatWebP, settings: EncodeSettings{Quality: 80}, webpChunk: "VP8 "},
		{name: "jpeg quality 80", format: FormatJPEG, settings: EncodeSettings{Quality: 80}},
		{name: "png", format: FormatPNG, settings: EncodeSettings{Lossless: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, src, tt.format, tt.settings))
			require.NotZero(t, buf.Len())

			cfg := decodeConfig(t, tt.format, buf.Bytes())
			assert.Equal(t, 40, cfg.Width)
			assert.Equal(t, 20, cfg.Height)

			if tt.webpChunk != "" {
				assert.Equal(t, tt.webpChunk, webpChunk(t, buf.Bytes()))
			}
		})
	}
}

func TestEncodeLosslessWebPKeepsPixels(t *testing.T) {
	src := fixture(16, 8)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, FormatWebP, EncodeSettings{Lossless: true}))

	got, _, err := image.Decode(&buf)
	require.NoError(t, err)
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			wr, wg, wb, wa := src.At(x, y).RGBA()
			gr, gg, gb, ga := got.At(x, y).RGBA()
			require.Equal(t, [4]uint32{wr, wg, wb, wa}, [4]uint32{gr, gg, gb, ga}, "pixel %d,%d", x, y)
		}
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, fixture(4, 4), Format("bmp"), EncodeSettings{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMaterializerModernFormats(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		format    Format
		webpChunk string
	}{
		{name: "jpeg source is lossy", source: "photo.jpg", format: FormatJPEG, webpChunk: "VP8 "},
		{name: "png source is lossless", source: "chart.png", format: FormatPNG, webpChunk: "VP8L"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			source := filepath.Join(dir, tt.source)
			if tt.format == FormatJPEG {
				writeJPEG(t, source, 64, 32)
			} else {
				writePNG(t, source, 64, 32)
			}

			md := Stats(source, image.Point{X: 64, Y: 32}, Options{
				OutputDir: filepath.Join(dir, "out"),
				Widths:    []int{32},
				Formats:   OutputFormats([]string{"avif", "webp"}, tt.format),
			})
			m := NewMaterializer(2, zap.NewNop())
			m.Enqueue(Job{Source: source, Metadata: md, Policy: PolicyFor(tt.format, nil)})

			report, err := m.Wait(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Report{Written: 6}, report)

			for _, d := range md.Descriptors() {
				data, err := os.ReadFile(d.OutputPath)
				require.NoError(t, err, d.OutputPath)

				cfg := decodeConfig(t, d.Format, data)
				assert.Equal(t, d.Width, cfg.Width, d.Filename)
				assert.Equal(t, d.Height, cfg.Height, d.Filename)

				if d.Format == FormatWebP {
					assert.Equal(t, tt.webpChunk, webpChunk(t, data), d.Filename)
				}
			}
		})
	}
}

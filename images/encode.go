package images

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

const (
	avifSpeed  = 6
	webpMethod = 4
)

// Encode writes img to w in format f with the given settings
func Encode(w io.Writer, img image.Image, f Format, s EncodeSettings) error {
	switch f {
	case FormatAVIF:
		opts := avif.Options{
			Quality:           s.Quality,
			QualityAlpha:      s.Quality,
			Speed:             avifSpeed,
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		}
		if s.Lossless {
			opts.Quality = 100
			opts.QualityAlpha = 100
			opts.ChromaSubsampling = image.YCbCrSubsampleRatio444
		}
		return avif.Encode(w, img, opts)
	case FormatWebP:
		return webp.Encode(w, img, webp.Options{
			Quality:  s.Quality,
			Lossless: s.Lossless,
			Method:   webpMethod,
		})
	case FormatJPEG:
		q := s.Quality
		if q <= 0 {
			q = 80
		}
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	default:
		return fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, f)
	}
}

// Resize scales img to width keeping its aspect ratio. The native width
// returns img unchanged.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

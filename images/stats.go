package images

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"
)

// Options describe how one source image is resized. They are built per
// image and never shared.
type Options struct {
	// URLPath prefixes the URL of every generated file.
	URLPath string
	// OutputDir receives the generated files.
	OutputDir string
	// Widths are the requested breakpoints, native width included.
	Widths  []int
	Formats []Format
	Policy  Policy
	// AllowUpscale keeps widths larger than the source.
	AllowUpscale bool
}

// Descriptor is one file a resize run will produce
type Descriptor struct {
	Format     Format
	Width      int
	Height     int
	Filename   string
	OutputPath string
	URL        string
	SourceType string
	Srcset     string
}

// Metadata lists the generated files per format, each list in ascending width
type Metadata struct {
	Formats []Format
	Entries map[Format][]Descriptor
}

// Srcset joins the srcset fragments of every width of f
func (m Metadata) Srcset(f Format) string {
	parts := make([]string, 0, len(m.Entries[f]))
	for _, d := range m.Entries[f] {
		parts = append(parts, d.Srcset)
	}
	return strings.Join(parts, ", ")
}

// Descriptors returns every descriptor in format then width order
func (m Metadata) Descriptors() []Descriptor {
	all := make([]Descriptor, 0)
	for _, f := range m.Formats {
		all = append(all, m.Entries[f]...)
	}
	return all
}

// Filename names a generated file {base-name}-{width}.{format}
func Filename(src string, width int, f Format) string {
	base := filepath.Base(src)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return name + "-" + strconv.Itoa(width) + "." + string(f)
}

// Probe reads the native dimensions of an image without decoding pixels
func Probe(sourcePath string) (image.Point, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to read image header %s: %w", sourcePath, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Point{}, fmt.Errorf("image %s has no size", sourcePath)
	}
	return image.Point{X: cfg.Width, Y: cfg.Height}, nil
}

// ValidWidths deduplicates and sorts widths. Unless upscaling is allowed,
// widths above native are dropped; native itself is always kept.
func ValidWidths(widths []int, native int, allowUpscale bool) []int {
	seen := make(map[int]bool, len(widths)+1)
	valid := make([]int, 0, len(widths)+1)
	for _, w := range append(append([]int(nil), widths...), native) {
		if w <= 0 || seen[w] || !allowUpscale && w > native {
			continue
		}
		seen[w] = true
		valid = append(valid, w)
	}
	sort.Ints(valid)
	return valid
}

// Stats computes what resizing sourcePath with opts will produce, from the
// native dimensions alone. Nothing is written.
func Stats(sourcePath string, native image.Point, opts Options) Metadata {
	widths := ValidWidths(opts.Widths, native.X, opts.AllowUpscale)

	md := Metadata{
		Formats: append([]Format(nil), opts.Formats...),
		Entries: make(map[Format][]Descriptor, len(opts.Formats)),
	}
	for _, f := range opts.Formats {
		list := make([]Descriptor, 0, len(widths))
		for _, w := range widths {
			name := Filename(sourcePath, w, f)
			u := escapeURL(path.Join(opts.URLPath, name))
			list = append(list, Descriptor{
				Format:     f,
				Width:      w,
				Height:     scaledHeight(native, w),
				Filename:   name,
				OutputPath: filepath.Join(opts.OutputDir, name),
				URL:        u,
				SourceType: f.MimeType(),
				Srcset:     u + " " + strconv.Itoa(w) + "w",
			})
		}
		md.Entries[f] = list
	}
	return md
}

func scaledHeight(native image.Point, width int) int {
	if width == native.X {
		return native.Y
	}
	h := int(math.Round(float64(native.Y) * float64(width) / float64(native.X)))
	if h < 1 {
		h = 1
	}
	return h
}

func escapeURL(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

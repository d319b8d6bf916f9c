package images

import "strings"

// Format is an output image encoding, named by its canonical file extension
type Format string

const (
	FormatAVIF Format = "avif"
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

var mimeTypes = map[Format]string{
	FormatAVIF: "image/avif",
	FormatWebP: "image/webp",
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
}

// MimeType returns the type attribute value for f, or "" when unknown
func (f Format) MimeType() string {
	return mimeTypes[f]
}

// CanonicalFormat normalizes an extension (with or without dot) to a Format.
// jpg and jpeg map to the same format.
func CanonicalFormat(ext string) Format {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpg" {
		return FormatJPEG
	}
	return Format(ext)
}

// EncodeSettings controls how one output format is encoded
type EncodeSettings struct {
	Lossless bool
	Quality  int
}

// Policy is the encoding table for one kind of source image
type Policy map[Format]EncodeSettings

var (
	lossless = EncodeSettings{Lossless: true}

	defaultPolicy = Policy{
		FormatAVIF: lossless,
		FormatWebP: lossless,
		FormatPNG:  lossless,
		FormatGIF:  lossless,
		FormatJPEG: {Quality: 80},
	}

	// Re-encoding a JPEG losslessly only inflates it.
	jpegPolicy = Policy{
		FormatAVIF: {Quality: 50},
		FormatWebP: {Quality: 80},
		FormatJPEG: {Quality: 80},
		FormatPNG:  lossless,
		FormatGIF:  lossless,
	}

	policies = map[Format]Policy{
		FormatJPEG: jpegPolicy,
		FormatPNG:  defaultPolicy,
	}
)

// PolicyFor returns a fresh policy for the given source format. overrides
// replaces the quality of individual output formats for JPEG sources.
func PolicyFor(source Format, overrides map[string]int) Policy {
	base, ok := policies[source]
	if !ok {
		base = defaultPolicy
	}

	p := make(Policy, len(base))
	for f, s := range base {
		p[f] = s
	}

	if source == FormatJPEG {
		for name, q := range overrides {
			f := CanonicalFormat(name)
			if _, known := p[f]; known && q > 0 {
				p[f] = EncodeSettings{Quality: q}
			}
		}
	}
	return p
}

// OutputFormats returns the configured formats followed by the source format,
// without duplicates. The source format is always last so it serves as the
// fallback for browsers without support for the others.
func OutputFormats(configured []string, source Format) []Format {
	formats := make([]Format, 0, len(configured)+1)
	seen := make(map[Format]bool, len(configured)+1)
	for _, name := range configured {
		f := CanonicalFormat(name)
		if f == source || seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return append(formats, source)
}

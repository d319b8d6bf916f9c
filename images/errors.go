package images

import "errors"

var (
	// ErrSourceMissing means the referenced image file does not exist.
	ErrSourceMissing = errors.New("image source does not exist")
	// ErrVariantMissing means a @light/@dark image has no counterpart on disk.
	ErrVariantMissing = errors.New("color-scheme variant does not exist")
	// ErrUnsupportedFormat means the extension is blacklisted and the image is served as is.
	ErrUnsupportedFormat = errors.New("image format is not processed")
	// ErrNotLocal means the src does not point into the article directory.
	ErrNotLocal = errors.New("image source is not article-relative")
)

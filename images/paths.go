package images

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps a page and an <img> src to the files involved in resizing it.
// Pages are laid out the same way in the source, output and cache trees.
type Resolver struct {
	SourceRoot string
	OutputRoot string
	CacheRoot  string
	Blacklist  []string
}

// Paths are the derived locations for one image
type Paths struct {
	// SourcePath is the original file on disk.
	SourcePath string
	// OutputPrefix is the page directory in the output tree.
	OutputPrefix string
	// URLPath is the directory part of src, used as the URL prefix of generated files.
	URLPath string
	// CacheDir is where generated files are written.
	CacheDir string
	// Ext is the lowercase source extension without the dot.
	Ext string
}

// Resolve derives the paths for src referenced from the page at outputPath.
// It returns ErrUnsupportedFormat for blacklisted extensions, ErrNotLocal for
// remote or root-absolute sources and ErrSourceMissing (with SourcePath set)
// when the original file is absent.
func (r Resolver) Resolve(outputPath, src string) (Paths, error) {
	rel, err := localSource(src)
	if err != nil {
		return Paths{}, err
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
	for _, blocked := range r.Blacklist {
		if strings.EqualFold(blocked, ext) {
			return Paths{Ext: ext}, ErrUnsupportedFormat
		}
	}

	base, err := pageDir(r.OutputRoot, outputPath)
	if err != nil {
		return Paths{}, err
	}

	urlPath := path.Dir(rel)
	if urlPath == "." {
		urlPath = ""
	}

	p := Paths{
		SourcePath:   filepath.Join(r.SourceRoot, base, filepath.FromSlash(rel)),
		OutputPrefix: filepath.Join(r.OutputRoot, base),
		URLPath:      urlPath,
		CacheDir:     filepath.Join(r.CacheRoot, base, filepath.FromSlash(urlPath)),
		Ext:          ext,
	}

	info, err := os.Stat(p.SourcePath)
	if errors.Is(err, fs.ErrNotExist) || err == nil && info.IsDir() {
		return p, ErrSourceMissing
	}
	if err != nil {
		return p, fmt.Errorf("failed to stat %s: %w", p.SourcePath, err)
	}
	return p, nil
}

// pageDir returns the page directory relative to the output root,
// e.g. dist/articles/foo/index.html -> articles/foo
func pageDir(outputRoot, outputPath string) (string, error) {
	rel, err := filepath.Rel(outputRoot, outputPath)
	if err != nil {
		return "", fmt.Errorf("page %s is outside %s: %w", outputPath, outputRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("page %s is outside %s", outputPath, outputRoot)
	}
	return filepath.Dir(rel), nil
}

// localSource strips query and fragment from src and rejects anything that
// does not point into the article directory.
func localSource(src string) (string, error) {
	src = strings.TrimSpace(src)
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if src == "" || strings.HasPrefix(src, "/") || strings.HasPrefix(src, "data:") {
		return "", ErrNotLocal
	}
	if u, err := url.Parse(src); err != nil || u.Scheme != "" || u.Host != "" {
		return "", ErrNotLocal
	}

	unescaped, err := url.PathUnescape(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotLocal, err)
	}
	return path.Clean(unescaped), nil
}

func extOf(p string) string {
	return strings.TrimPrefix(filepath.Ext(p), ".")
}

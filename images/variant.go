package images

import (
	"os"
	"path/filepath"
	"regexp"
)

// Scheme is a color scheme a variant image is drawn for
type Scheme string

const (
	SchemeLight Scheme = "light"
	SchemeDark  Scheme = "dark"
)

// DarkMedia gates dark variant sources
const DarkMedia = "(prefers-color-scheme: dark)"

var variantPattern = regexp.MustCompile(`^(.+)@(light|dark)(\.[^./]+)$`)

// Variant describes an image named with a @light or @dark suffix
type Variant struct {
	Scheme        Scheme
	AltScheme     Scheme
	AltSourcePath string
}

// DetectVariant checks sourcePath for the name@light.ext / name@dark.ext
// convention and returns the counterpart path. ok is false for plain images.
func DetectVariant(sourcePath string) (v Variant, ok bool) {
	dir, name := filepath.Split(sourcePath)
	m := variantPattern.FindStringSubmatch(name)
	if m == nil {
		return Variant{}, false
	}

	v.Scheme = Scheme(m[2])
	v.AltScheme = SchemeDark
	if v.Scheme == SchemeDark {
		v.AltScheme = SchemeLight
	}
	v.AltSourcePath = filepath.Join(dir, m[1]+"@"+string(v.AltScheme)+m[3])
	return v, true
}

// Pair returns the light and dark source paths for a variant found on sourcePath
func (v Variant) Pair(sourcePath string) (light, dark string) {
	if v.Scheme == SchemeLight {
		return sourcePath, v.AltSourcePath
	}
	return v.AltSourcePath, sourcePath
}

// CheckVariant detects a variant and confirms its counterpart exists.
// It returns ErrVariantMissing when the name declares a variant but the
// counterpart file is absent.
func CheckVariant(sourcePath string) (Variant, bool, error) {
	v, ok := DetectVariant(sourcePath)
	if !ok {
		return Variant{}, false, nil
	}
	info, err := os.Stat(v.AltSourcePath)
	if err != nil || info.IsDir() {
		return v, false, ErrVariantMissing
	}
	return v, true, nil
}

package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func newToken() string { return uuid.NewString() }

// sanitizeName reduces an uploaded filename to a safe base name: no path
// separators, no spaces, lowercase extension.
func sanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	ext := filepath.Ext(base)
	if ext != "" {
		base = strings.TrimSuffix(base, ext) + strings.ToLower(ext)
	}
	if base == "" || base == "." {
		base = "file"
	}
	return base
}

// refFileName is the canonical on-disk name for a ref's bytes, used in both
// the staging and permanent zones so a lost path can be recovered by token.
func refFileName(token, originalName string) string {
	return token + "-" + sanitizeName(originalName)
}

// collisionFreeName returns a name not currently present in dir, appending a
// numeric suffix before the extension when needed.
func collisionFreeName(dir, name string) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

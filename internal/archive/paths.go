package archive

import (
	"path"
	"strings"
)

// rejection explains why an entry path was refused.
type rejection string

const (
	rejectNone      rejection = ""
	rejectNUL       rejection = "contains NUL byte"
	rejectAbsolute  rejection = "absolute path"
	rejectDrive     rejection = "drive-letter path"
	rejectUNC       rejection = "UNC path"
	rejectTraversal rejection = "escapes archive root"
	rejectEmpty     rejection = "empty path"
)

// normalizeEntryPath converts a raw header name into a clean, slash-separated
// path relative to the archive root.
func normalizeEntryPath(raw string) (string, rejection) {
	if strings.ContainsRune(raw, 0) {
		return "", rejectNUL
	}
	p := strings.ReplaceAll(raw, `\`, "/")
	switch {
	case strings.HasPrefix(p, "//"):
		return "", rejectUNC
	case strings.HasPrefix(p, "/"):
		return "", rejectAbsolute
	case hasDriveLetter(p):
		return "", rejectDrive
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "" {
		return "", rejectEmpty
	}
	if escapes(cleaned) {
		return "", rejectTraversal
	}
	return cleaned, rejectNone
}

// linkEscapes reports whether a link entry at entryPath pointing at target
// resolves outside the archive root.
func linkEscapes(entryPath, target string) bool {
	if strings.ContainsRune(target, 0) {
		return true
	}
	t := strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(t, "/") || hasDriveLetter(t) {
		return true
	}
	return escapes(path.Join(path.Dir(entryPath), t))
}

func escapes(cleaned string) bool {
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

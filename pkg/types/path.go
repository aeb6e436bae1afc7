package types

import (
	gopath "path"
	"strings"
)

// NormalizePath cleans a caller-supplied path into the canonical form used
// across the access layer: no leading "/", "." and ".." elements resolved,
// directory paths keeping their trailing "/". The root directory normalizes
// to "/".
func NormalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	isDir := strings.HasSuffix(p, "/")
	cleaned := gopath.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "/"
	}
	if isDir {
		cleaned += "/"
	}
	return cleaned
}

// NormalizeRoot cleans a configured root directory into the form "/a/b/":
// always absolute, always "/"-suffixed.
func NormalizeRoot(root string) string {
	if root == "" || root == "/" {
		return "/"
	}
	cleaned := gopath.Clean("/" + root)
	if cleaned == "/" {
		return "/"
	}
	return cleaned + "/"
}

// IsDirPath reports whether the path denotes a directory by convention.
func IsDirPath(p string) bool {
	return p == "/" || strings.HasSuffix(p, "/")
}

// BaseName returns the last element of a normalized path, keeping the
// trailing "/" for directories.
func BaseName(p string) string {
	if p == "/" {
		return "/"
	}
	trimmed := strings.TrimSuffix(p, "/")
	base := gopath.Base(trimmed)
	if IsDirPath(p) {
		return base + "/"
	}
	return base
}

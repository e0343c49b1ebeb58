package dispatch

import (
	"path/filepath"
	"strings"
)

// DefaultMimeType is served for extensions missing from the table.
const DefaultMimeType = "application/octet-stream"

var builtinMimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// MimeTable maps file extensions to media types.
type MimeTable struct {
	types    map[string]string
	fallback string
}

// NewMimeTable returns the built-in table extended by overrides. Keys may be
// given with or without the leading dot.
func NewMimeTable(overrides map[string]string, fallback string) *MimeTable {
	if fallback == "" {
		fallback = DefaultMimeType
	}
	types := make(map[string]string, len(builtinMimeTypes)+len(overrides))
	for ext, mime := range builtinMimeTypes {
		types[ext] = mime
	}
	for ext, mime := range overrides {
		types[normalizeExt(ext)] = mime
	}
	return &MimeTable{types: types, fallback: fallback}
}

// Lookup returns the media type for name's extension.
func (t *MimeTable) Lookup(name string) string {
	if mime, ok := t.types[normalizeExt(filepath.Ext(name))]; ok {
		return mime
	}
	return t.fallback
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

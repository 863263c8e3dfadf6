package media

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// MediaTypeFromFilename returns the MIME type for supported image extensions,
// or "" if the file is not an image.
func MediaTypeFromFilename(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}

// ExtensionFor returns the file extension for an encoder media type.
func ExtensionFor(mediaType string) string {
	switch mediaType {
	case "image/webp":
		return ".webp"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// SniffImageType detects the media type of buf, defaulting to image/jpeg when
// the content does not look like an image.
func SniffImageType(buf []byte) string {
	if ct := http.DetectContentType(buf); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

// headerImageType returns the bare image media type from a Content-Type
// header, or "" if it is missing or not an image.
func headerImageType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}

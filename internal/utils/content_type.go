package utils

import (
	"path/filepath"
	"strings"
)

// GetFileExtensionFromContentType maps a MIME type to the extension used when
// a document has no usable file name.
func GetFileExtensionFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)

	switch {
	case strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg"):
		return "jpg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "wordprocessingml"):
		return "docx"
	case strings.Contains(contentType, "msword"):
		return "doc"
	case strings.Contains(contentType, "spreadsheetml"):
		return "xlsx"
	case strings.Contains(contentType, "excel"):
		return "xls"
	case strings.Contains(contentType, "text/plain"):
		return "txt"
	case strings.Contains(contentType, "html"):
		return "html"
	case strings.Contains(contentType, "zip"):
		return "zip"
	case strings.Contains(contentType, "tif"):
		return "tiff"
	case strings.Contains(contentType, "csv"):
		return "csv"
	case strings.Contains(contentType, "xml"):
		return "xml"
	case strings.Contains(contentType, "rfc822"):
		return "eml"
	case strings.Contains(contentType, "rtf"):
		return "rtf"
	default:
		return "bin"
	}
}

// FileExtension returns the extension of name without the dot, falling back
// to the content type.
func FileExtension(name, contentType string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext != "" {
		return strings.ToLower(ext)
	}
	return GetFileExtensionFromContentType(contentType)
}

package constants

import (
	"slices"
	"strings"
)

// Format is the closed set of document kinds the pipeline can extract text from.
type Format string

const (
	PlainText    Format = "plain-text"
	PDF          Format = "pdf"
	WordDocument Format = "word-document"
	Spreadsheet  Format = "spreadsheet"
	Presentation Format = "presentation"
	Image        Format = "image"
	Unknown      Format = "unknown"
)

// Formats lists every supported format in a stable order (Unknown excluded).
var Formats = []Format{PlainText, PDF, WordDocument, Spreadsheet, Presentation, Image}

// extToFormat maps a normalized extension to its format.
var extToFormat = map[string]Format{
	"txt":  PlainText,
	"text": PlainText,
	"csv":  PlainText,
	"md":   PlainText,
	"rtf":  PlainText,
	"pdf":  PDF,
	"docx": WordDocument,
	"doc":  WordDocument,
	"xlsx": Spreadsheet,
	"xls":  Spreadsheet,
	"pptx": Presentation,
	"ppt":  Presentation,
	"png":  Image,
	"jpg":  Image,
	"jpeg": Image,
	"gif":  Image,
	"bmp":  Image,
	"tif":  Image,
	"tiff": Image,
}

// mimeTypes is the upload MIME table used when forwarding files to external services.
var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"ppt":  "application/vnd.ms-powerpoint",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"rtf":  "application/rtf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
	"gif":  "image/gif",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns the format for a (possibly dotted) extension, Unknown if unmapped.
func MapExtToFormat(ext string) Format {
	if f, ok := extToFormat[NormalizeExt(ext)]; ok {
		return f
	}
	return Unknown
}

// MimeTypeForExt returns the MIME type for ext, or application/octet-stream.
func MimeTypeForExt(ext string) string {
	if mt, ok := mimeTypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// SupportedExtensions returns every extension the detector maps to a known format, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extToFormat))
	for ext := range extToFormat {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// ExtensionsByFormat groups SupportedExtensions by format.
func ExtensionsByFormat() map[Format][]string {
	out := make(map[Format][]string, len(Formats))
	for _, ext := range SupportedExtensions() {
		f := extToFormat[ext]
		out[f] = append(out[f], ext)
	}
	return out
}

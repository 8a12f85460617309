// Package detect classifies an uploaded document into one of the supported formats.
package detect

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/richardlehane/mscfb"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// SniffLen is how much of the payload the text heuristic looks at.
const SniffLen = 4096

var (
	magicPDF   = []byte("%PDF-")
	magicPNG   = []byte("\x89PNG\r\n\x1a\n")
	magicJPEG  = []byte{0xFF, 0xD8, 0xFF}
	magicGIF87 = []byte("GIF87a")
	magicGIF89 = []byte("GIF89a")
	magicBMP   = []byte("BM")
	magicTIFFL = []byte{'I', 'I', 0x2A, 0x00}
	magicTIFFB = []byte{'M', 'M', 0x00, 0x2A}
	magicZIP   = []byte("PK\x03\x04")
	magicOLE   = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	magicRTF   = []byte(`{\rtf`)
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Detect maps filename and payload to a Format. The extension wins when it is
// recognized; otherwise the byte prefix is sniffed. Pure function.
func Detect(filename string, data []byte) constants.Format {
	if f := constants.MapExtToFormat(filepath.Ext(filename)); f != constants.Unknown {
		return f
	}
	return Sniff(data)
}

// Sniff classifies a payload from its leading bytes alone.
func Sniff(data []byte) constants.Format {
	switch {
	case len(data) == 0:
		return constants.Unknown
	case bytes.HasPrefix(data, magicPDF):
		return constants.PDF
	case IsImage(data):
		return constants.Image
	case bytes.HasPrefix(data, magicZIP):
		return sniffZip(data)
	case IsOLE(data):
		return sniffOLE(data)
	case IsRTF(data):
		return constants.PlainText
	case looksLikeText(data):
		return constants.PlainText
	}
	return constants.Unknown
}

// IsImage reports whether data starts with a supported raster image signature.
func IsImage(data []byte) bool {
	for _, m := range [][]byte{magicPNG, magicJPEG, magicGIF87, magicGIF89, magicTIFFL, magicTIFFB} {
		if bytes.HasPrefix(data, m) {
			return true
		}
	}
	// "BM" alone is too weak; require the BMP header's reserved fields to be zero.
	return len(data) >= 14 && bytes.HasPrefix(data, magicBMP) &&
		data[6] == 0 && data[7] == 0 && data[8] == 0 && data[9] == 0
}

// IsZip reports whether data is a ZIP container (OOXML documents are).
func IsZip(data []byte) bool { return bytes.HasPrefix(data, magicZIP) }

// IsOLE reports whether data is an OLE2 compound file (legacy .doc/.xls/.ppt).
func IsOLE(data []byte) bool { return bytes.HasPrefix(data, magicOLE) }

// IsRTF reports whether data is a Rich Text Format document, ignoring a UTF-8 BOM.
func IsRTF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimPrefix(data, bomUTF8), magicRTF)
}

func sniffZip(data []byte) constants.Format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return constants.Unknown
	}
	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return constants.WordDocument
		case strings.HasPrefix(f.Name, "xl/"):
			return constants.Spreadsheet
		case strings.HasPrefix(f.Name, "ppt/"):
			return constants.Presentation
		}
	}
	return constants.Unknown
}

func sniffOLE(data []byte) constants.Format {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return constants.Unknown
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "WordDocument":
			return constants.WordDocument
		case "Workbook", "Book":
			return constants.Spreadsheet
		case "PowerPoint Document":
			return constants.Presentation
		}
	}
	return constants.Unknown
}

// looksLikeText accepts BOM-marked text, or a prefix that is valid UTF-8 with
// no NULs and few control characters.
func looksLikeText(data []byte) bool {
	if bytes.HasPrefix(data, bomUTF8) || bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		return true
	}
	prefix := data
	if len(prefix) > SniffLen {
		prefix = prefix[:SniffLen]
		// don't reject a prefix that splits a multi-byte rune
		for i := 0; i < utf8.UTFMax && !utf8.Valid(prefix); i++ {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if !utf8.Valid(prefix) || bytes.IndexByte(prefix, 0) >= 0 {
		return false
	}
	var ctrl int
	for _, r := range string(prefix) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' && r != '\f' {
			ctrl++
		}
	}
	return ctrl*20 < len(prefix)
}

// MimeType returns the upload MIME type for filename, sniffing data when the extension is unknown.
func MimeType(filename string, data []byte) string {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if constants.MapExtToFormat(ext) != constants.Unknown {
		return constants.MimeTypeForExt(ext)
	}
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return constants.MimeTypeForExt("pdf")
	case bytes.HasPrefix(data, magicPNG):
		return constants.MimeTypeForExt("png")
	case bytes.HasPrefix(data, magicJPEG):
		return constants.MimeTypeForExt("jpg")
	case bytes.HasPrefix(data, magicGIF87), bytes.HasPrefix(data, magicGIF89):
		return constants.MimeTypeForExt("gif")
	case bytes.HasPrefix(data, magicTIFFL), bytes.HasPrefix(data, magicTIFFB):
		return constants.MimeTypeForExt("tiff")
	}
	return constants.MimeTypeForExt(ext)
}

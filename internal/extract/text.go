package extract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/detect"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// TextExtractor handles plain text, CSV and RTF as a single fragment.
type TextExtractor struct {
	base
}

func (e *TextExtractor) Extract(_ context.Context, doc entity.Document) (Result, error) {
	res := Result{Units: 1, Method: "text"}
	var text string
	if detect.IsRTF(doc.Data) {
		res.Method = "rtf"
		text = rtfToText(doc.Data)
	} else {
		decoded, name, err := decodeText(doc.Data)
		if err != nil {
			return res, err
		}
		if name != "utf-8" {
			e.logger.Debug("extract.text.decoded", "encoding", name)
		}
		text = decoded
	}
	res.add(entity.NativeFragment(text, entity.Locator{Kind: entity.LocatorDocument, Index: 1}))
	return res, nil
}

// decodeText converts data to UTF-8 using BOMs and content sniffing.
func decodeText(data []byte) (string, string, error) {
	enc, name, _ := charset.DetermineEncoding(data, "text/plain")
	r := enc.NewDecoder().Reader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return "", name, err
	}
	return strings.TrimPrefix(string(out), "\ufeff"), name, nil
}

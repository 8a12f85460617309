package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxZipEntry bounds how much of a single archive member is read.
const maxZipEntry = 64 << 20

type zipArchive struct {
	files map[string]*zip.File
	order []string
}

func openZip(data []byte) (*zipArchive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	a := &zipArchive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[f.Name] = f
		a.order = append(a.order, f.Name)
	}
	return a, nil
}

func (a *zipArchive) has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *zipArchive) read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxZipEntry))
}

// withPrefix lists member names under prefix in archive order.
func (a *zipArchive) withPrefix(prefix string) []string {
	var out []string
	for _, n := range a.order {
		if strings.HasPrefix(n, prefix) && !strings.HasSuffix(n, "/") {
			out = append(out, n)
		}
	}
	return out
}

// xmlText collects the text runs (w:t, a:t) of a WordprocessingML or
// DrawingML part, breaking lines at paragraphs and w:br, tabs at w:tab.
func xmlText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return strings.TrimSpace(b.String()), err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// imageTargets resolves the image relationships of an OOXML part to archive
// paths, e.g. ppt/slides/slide1.xml -> ppt/media/image1.png.
func (a *zipArchive) imageTargets(part string) []string {
	dir, file := path.Split(part)
	raw, err := a.read(dir + "_rels/" + file + ".rels")
	if err != nil {
		return nil
	}
	var rels struct {
		Items []relationship `xml:"Relationship"`
	}
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return nil
	}
	var out []string
	for _, r := range rels.Items {
		if !strings.HasSuffix(r.Type, "/image") {
			continue
		}
		target := path.Clean(path.Join(dir, r.Target))
		if strings.HasPrefix(r.Target, "/") {
			target = strings.TrimPrefix(r.Target, "/")
		}
		if a.has(target) {
			out = append(out, target)
		}
	}
	return out
}

// ocrableImage filters out vector and metafile media tesseract cannot read.
func ocrableImage(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

package extract

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// maxOLEStream bounds how much of a single compound-file stream is read.
const maxOLEStream = 64 << 20

// oleStreams reads the named top-level streams of a compound file.
func oleStreams(data []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	out := make(map[string][]byte, len(names))
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !slices.Contains(names, entry.Name) || len(entry.Path) > 0 {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(entry, maxOLEStream))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name, err)
		}
		out[entry.Name] = b
	}
	return out, nil
}

var (
	cp1252  = charmap.Windows1252.NewDecoder()
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
)

func decode1252(b []byte) string {
	s, err := cp1252.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func decodeUTF16LE(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	s, err := utf16le.Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

// --- Word 97-2003 ---

// extractLegacyWord reads the document text through the piece table (CLX) of a
// Word 97+ binary. When the piece table cannot be used it falls back to
// scraping UTF-16 runs from the WordDocument stream.
func extractLegacyWord(data []byte) (Result, error) {
	res := Result{Units: 1, Method: "doc"}
	streams, err := oleStreams(data, "WordDocument", "0Table", "1Table")
	if err != nil {
		return res, err
	}
	wd := streams["WordDocument"]
	if len(wd) == 0 {
		return res, fmt.Errorf("compound file has no WordDocument stream")
	}
	text, err := wordPieceText(wd, streams)
	if err != nil {
		res.note("piece table unusable (%v); text recovered heuristically", err)
		res.Method = "doc-scrape"
		text = scrapeUTF16(wd)
	}
	res.add(entity.NativeFragment(cleanWordText(text), entity.Locator{Kind: entity.LocatorDocument, Index: 1}))
	return res, nil
}

func wordPieceText(wd []byte, streams map[string][]byte) (string, error) {
	if len(wd) < 0x01AA {
		return "", fmt.Errorf("FIB truncated")
	}
	if binary.LittleEndian.Uint16(wd) != 0xA5EC {
		return "", fmt.Errorf("bad FIB magic")
	}
	flags := binary.LittleEndian.Uint16(wd[0x0A:])
	if flags&0x0100 != 0 {
		return "", fmt.Errorf("document is encrypted")
	}
	tableName := "0Table"
	if flags&0x0200 != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]
	fcClx := binary.LittleEndian.Uint32(wd[0x01A2:])
	lcbClx := binary.LittleEndian.Uint32(wd[0x01A6:])
	if lcbClx == 0 || uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return "", fmt.Errorf("CLX out of range")
	}
	clx := table[fcClx : fcClx+lcbClx]

	// skip Prc entries, find the Pcdt
	i := 0
	for i < len(clx) && clx[i] == 0x01 {
		if i+3 > len(clx) {
			return "", fmt.Errorf("truncated Prc")
		}
		i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
	}
	if i+5 > len(clx) || clx[i] != 0x02 {
		return "", fmt.Errorf("Pcdt not found")
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb > len(plc) || (lcb-4)%12 != 0 {
		return "", fmt.Errorf("bad PlcPcd size")
	}
	n := (lcb - 4) / 12
	cps := make([]uint32, n+1)
	for k := range cps {
		cps[k] = binary.LittleEndian.Uint32(plc[4*k:])
	}
	pcds := plc[4*(n+1):]

	var b strings.Builder
	for k := 0; k < n; k++ {
		chars := int(cps[k+1]) - int(cps[k])
		if chars <= 0 {
			continue
		}
		fc := binary.LittleEndian.Uint32(pcds[8*k+2:])
		if fc&0x40000000 != 0 {
			off := int((fc &^ 0x40000000) / 2)
			if off+chars > len(wd) {
				return "", fmt.Errorf("piece %d out of range", k)
			}
			b.WriteString(decode1252(wd[off : off+chars]))
		} else {
			off := int(fc)
			if off+2*chars > len(wd) {
				return "", fmt.Errorf("piece %d out of range", k)
			}
			b.WriteString(decodeUTF16LE(wd[off : off+2*chars]))
		}
	}
	return b.String(), nil
}

// cleanWordText maps Word's control characters to plain text and drops field codes.
func cleanWordText(s string) string {
	var b strings.Builder
	fieldDepth := 0
	inCode := false
	for _, r := range s {
		switch r {
		case 0x13: // field begin
			fieldDepth++
			inCode = true
			continue
		case 0x14: // field separator: result follows
			inCode = false
			continue
		case 0x15: // field end
			if fieldDepth > 0 {
				fieldDepth--
			}
			inCode = false
			continue
		}
		if inCode {
			continue
		}
		switch r {
		case '\r', 0x0B, 0x0C:
			b.WriteByte('\n')
		case 0x07:
			b.WriteByte('\t')
		case 0x01, 0x08:
			// picture and drawn-object anchors
		default:
			if r >= 0x20 || r == '\t' || r == '\n' {
				b.WriteRune(r)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// scrapeUTF16 recovers runs of printable UTF-16LE characters of at least minRun length.
func scrapeUTF16(b []byte) string {
	const minRun = 4
	var out strings.Builder
	var run []uint16
	flush := func() {
		if len(run) >= minRun {
			out.WriteString(string(utf16.Decode(run)))
			out.WriteByte('\n')
		}
		run = run[:0]
	}
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if (u >= 0x20 && u < 0xD800) || u == '\t' || (u >= 0xE000 && u < 0xFFFE) {
			run = append(run, u)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}

// --- Excel 97-2003 (BIFF8) ---

const (
	biffBOF        = 0x0809
	biffEOF        = 0x000A
	biffBoundSheet = 0x0085
	biffSST        = 0x00FC
	biffContinue   = 0x003C
	biffLabelSST   = 0x00FD
	biffLabel      = 0x0204
	biffNumber     = 0x0203
	biffRK         = 0x027E
	biffMulRK      = 0x00BD
	biffFilePass   = 0x002F
)

type biffRecord struct {
	typ  uint16
	data []byte
}

func biffRecords(b []byte) []biffRecord {
	var out []biffRecord
	for i := 0; i+4 <= len(b); {
		typ := binary.LittleEndian.Uint16(b[i:])
		n := int(binary.LittleEndian.Uint16(b[i+2:]))
		if i+4+n > len(b) {
			break
		}
		out = append(out, biffRecord{typ: typ, data: b[i+4 : i+4+n]})
		i += 4 + n
	}
	return out
}

type cell struct {
	row, col int
	val      string
}

// extractLegacyWorkbook reads cell values of a BIFF8 workbook, one fragment per worksheet.
func extractLegacyWorkbook(data []byte) (Result, error) {
	res := Result{Method: "xls"}
	streams, err := oleStreams(data, "Workbook", "Book")
	if err != nil {
		return res, err
	}
	wb := streams["Workbook"]
	if wb == nil {
		wb = streams["Book"]
	}
	if len(wb) == 0 {
		return res, fmt.Errorf("compound file has no Workbook stream")
	}
	recs := biffRecords(wb)

	var (
		sheetNames []string
		sst        []string
		sheets     [][]cell
		cur        = -1 // index into sheets; -1 while in the workbook globals
		depth      int
	)
	for i := 0; i < len(recs); i++ {
		r := recs[i]
		switch r.typ {
		case biffFilePass:
			return res, fmt.Errorf("workbook is encrypted")
		case biffBOF:
			depth++
			if depth == 1 && len(r.data) >= 4 && binary.LittleEndian.Uint16(r.data[2:]) == 0x0010 {
				sheets = append(sheets, nil)
				cur = len(sheets) - 1
			} else if depth == 1 {
				cur = -1
			}
		case biffEOF:
			if depth > 0 {
				depth--
			}
		case biffBoundSheet:
			if len(r.data) > 8 {
				name, _ := readBIFFString(r.data[6:], true)
				sheetNames = append(sheetNames, name)
			}
		case biffSST:
			segs := [][]byte{r.data}
			for i+1 < len(recs) && recs[i+1].typ == biffContinue {
				i++
				segs = append(segs, recs[i].data)
			}
			sst = parseSST(segs)
		case biffLabelSST:
			if cur >= 0 && len(r.data) >= 10 {
				idx := int(binary.LittleEndian.Uint32(r.data[6:]))
				if idx < len(sst) {
					sheets[cur] = append(sheets[cur], cellAt(r.data, sst[idx]))
				}
			}
		case biffLabel:
			if cur >= 0 && len(r.data) > 8 {
				s, _ := readBIFFString(r.data[6:], false)
				sheets[cur] = append(sheets[cur], cellAt(r.data, s))
			}
		case biffNumber:
			if cur >= 0 && len(r.data) >= 14 {
				f := math.Float64frombits(binary.LittleEndian.Uint64(r.data[6:]))
				sheets[cur] = append(sheets[cur], cellAt(r.data, formatNumber(f)))
			}
		case biffRK:
			if cur >= 0 && len(r.data) >= 10 {
				f := decodeRK(binary.LittleEndian.Uint32(r.data[6:]))
				sheets[cur] = append(sheets[cur], cellAt(r.data, formatNumber(f)))
			}
		case biffMulRK:
			if cur >= 0 && len(r.data) >= 6 {
				row := int(binary.LittleEndian.Uint16(r.data))
				col := int(binary.LittleEndian.Uint16(r.data[2:]))
				for off := 4; off+6 <= len(r.data)-2; off += 6 {
					f := decodeRK(binary.LittleEndian.Uint32(r.data[off+2:]))
					sheets[cur] = append(sheets[cur], cell{row: row, col: col, val: formatNumber(f)})
					col++
				}
			}
		}
	}

	res.Units = len(sheets)
	for i, cells := range sheets {
		name := fmt.Sprintf("Sheet%d", i+1)
		if i < len(sheetNames) {
			name = sheetNames[i]
		}
		text := joinRows(cellsToRows(cells))
		if text == "" {
			continue
		}
		res.add(entity.NativeFragment(text, entity.Locator{Kind: entity.LocatorSheet, Index: i, Name: name}))
	}
	return res, nil
}

func cellAt(rec []byte, val string) cell {
	return cell{row: int(binary.LittleEndian.Uint16(rec)), col: int(binary.LittleEndian.Uint16(rec[2:])), val: val}
}

func cellsToRows(cells []cell) [][]string {
	if len(cells) == 0 {
		return nil
	}
	slices.SortStableFunc(cells, func(a, b cell) int {
		if a.row != b.row {
			return a.row - b.row
		}
		return a.col - b.col
	})
	var rows [][]string
	lastRow := -1
	for _, c := range cells {
		if c.row != lastRow {
			rows = append(rows, nil)
			lastRow = c.row
		}
		r := &rows[len(rows)-1]
		for len(*r) < c.col {
			*r = append(*r, "")
		}
		*r = append(*r, c.val)
	}
	return rows
}

func decodeRK(rk uint32) float64 {
	var f float64
	if rk&0x02 != 0 {
		f = float64(int32(rk) >> 2)
	} else {
		f = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		f /= 100
	}
	return f
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// readBIFFString reads a BIFF8 string (length, option flags, chars).
// shortLen selects an 8-bit character count (sheet names) over 16-bit.
func readBIFFString(b []byte, shortLen bool) (string, int) {
	var n, off int
	if shortLen {
		if len(b) < 2 {
			return "", len(b)
		}
		n, off = int(b[0]), 1
	} else {
		if len(b) < 3 {
			return "", len(b)
		}
		n, off = int(binary.LittleEndian.Uint16(b)), 2
	}
	wide := b[off]&0x01 != 0
	off++
	if wide {
		end := min(off+2*n, len(b))
		return decodeUTF16LE(b[off:end]), end
	}
	end := min(off+n, len(b))
	return decode1252(b[off:end]), end
}

// sstReader walks the shared string table across CONTINUE boundaries. A
// string's character data that crosses a boundary restarts with a fresh
// option byte.
type sstReader struct {
	segs [][]byte
	seg  int
	pos  int
}

func (r *sstReader) avail() int {
	for r.seg < len(r.segs) && r.pos >= len(r.segs[r.seg]) {
		r.seg++
		r.pos = 0
	}
	if r.seg >= len(r.segs) {
		return 0
	}
	return len(r.segs[r.seg]) - r.pos
}

func (r *sstReader) bytes(n int) ([]byte, bool) {
	var out []byte
	for n > 0 {
		a := r.avail()
		if a == 0 {
			return out, false
		}
		k := min(a, n)
		out = append(out, r.segs[r.seg][r.pos:r.pos+k]...)
		r.pos += k
		n -= k
	}
	return out, true
}

func (r *sstReader) u8() (byte, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *sstReader) u16() (int, bool) {
	b, ok := r.bytes(2)
	if !ok {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(b)), true
}

func (r *sstReader) u32() (int, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(b)), true
}

func (r *sstReader) chars(n int, wide bool) (string, bool) {
	var out strings.Builder
	for n > 0 {
		a := r.avail()
		if a == 0 {
			return out.String(), false
		}
		width := 1
		if wide {
			width = 2
		}
		k := min(n, a/width)
		if k == 0 {
			return out.String(), false
		}
		b, _ := r.bytes(k * width)
		if wide {
			out.WriteString(decodeUTF16LE(b))
		} else {
			out.WriteString(decode1252(b))
		}
		n -= k
		if n > 0 {
			// crossing into a CONTINUE record: a new option byte precedes the rest
			r.seg++
			r.pos = 0
			flag, ok := r.u8()
			if !ok {
				return out.String(), false
			}
			wide = flag&0x01 != 0
		}
	}
	return out.String(), true
}

func parseSST(segs [][]byte) []string {
	r := &sstReader{segs: segs}
	if _, ok := r.u32(); !ok { // total refs
		return nil
	}
	unique, ok := r.u32()
	if !ok {
		return nil
	}
	out := make([]string, 0, min(unique, 1<<16))
	for i := 0; i < unique; i++ {
		n, ok := r.u16()
		if !ok {
			break
		}
		flags, ok := r.u8()
		if !ok {
			break
		}
		var runs, ext int
		if flags&0x08 != 0 {
			runs, _ = r.u16()
		}
		if flags&0x04 != 0 {
			ext, _ = r.u32()
		}
		s, ok := r.chars(n, flags&0x01 != 0)
		out = append(out, s)
		if !ok {
			break
		}
		if _, ok := r.bytes(4*runs + ext); !ok {
			break
		}
	}
	return out
}

// --- PowerPoint 97-2003 ---

const (
	pptSlideContainer   = 0x03EE
	pptMainMaster       = 0x03F8
	pptNotes            = 0x03F0
	pptSlideListWithTxt = 0x0FF0
	pptSlidePersistAtom = 0x03F3
	pptTextCharsAtom    = 0x0FA0
	pptTextBytesAtom    = 0x0FA8
	pptCString          = 0x0FBA
)

// extractLegacyPresentation groups text atoms by slide: each SlidePersistAtom
// in the slide list, or each Slide container, starts a new slide.
func extractLegacyPresentation(data []byte) (Result, error) {
	res := Result{Method: "ppt"}
	streams, err := oleStreams(data, "PowerPoint Document")
	if err != nil {
		return res, err
	}
	doc := streams["PowerPoint Document"]
	if len(doc) == 0 {
		return res, fmt.Errorf("compound file has no PowerPoint Document stream")
	}

	var slides [][]string
	var walk func(b []byte, listInstance int)
	walk = func(b []byte, listInstance int) {
		for i := 0; i+8 <= len(b); {
			verInst := binary.LittleEndian.Uint16(b[i:])
			typ := binary.LittleEndian.Uint16(b[i+2:])
			n := int(binary.LittleEndian.Uint32(b[i+4:]))
			body := b[i+8 : min(i+8+n, len(b))]
			i += 8 + n
			switch {
			case typ == pptMainMaster || typ == pptNotes:
				continue
			case typ == pptSlideListWithTxt:
				// instance 0 lists slides; 1 masters, 2 notes
				if inst := int(verInst >> 4); inst == 0 {
					walk(body, inst)
				}
				continue
			case typ == pptSlidePersistAtom && listInstance == 0:
				slides = append(slides, nil)
			case typ == pptSlideContainer:
				slides = append(slides, nil)
			case typ == pptTextCharsAtom || typ == pptTextBytesAtom:
				var s string
				if typ == pptTextCharsAtom {
					s = decodeUTF16LE(body)
				} else {
					s = decode1252(body)
				}
				s = strings.TrimSpace(strings.NewReplacer("\r", "\n", "\v", "\n").Replace(s))
				if s == "" {
					continue
				}
				if len(slides) == 0 {
					slides = append(slides, nil)
				}
				last := &slides[len(slides)-1]
				if !slices.Contains(*last, s) {
					*last = append(*last, s)
				}
			}
			if verInst&0x000F == 0x000F {
				walk(body, listInstance)
			}
		}
	}
	walk(doc, -1)

	res.Units = len(slides)
	idx := 0
	for _, texts := range slides {
		if len(texts) == 0 {
			continue
		}
		idx++
		res.add(entity.NativeFragment(strings.Join(texts, "\n"), entity.Locator{Kind: entity.LocatorSlide, Index: idx}))
	}
	return res, nil
}

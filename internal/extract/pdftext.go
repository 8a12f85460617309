package extract

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// contentStreamText pulls shown text out of a PDF page content stream. It
// understands the text-showing operators (Tj TJ ' ") and treats positioning
// operators (Td TD T* Tm ET) as word or line breaks. Strings are decoded as
// Windows-1252, which covers simple fonts; CID fonts come out garbled and are
// caught by textQuality.
func contentStreamText(data []byte) string {
	var (
		b        bytes.Buffer
		operands []string // decoded string operands since the last operator
		inArray  bool
	)
	dec := charmap.Windows1252.NewDecoder()
	decode := func(raw []byte) string {
		s, err := dec.Bytes(raw)
		if err != nil {
			return string(raw)
		}
		return string(s)
	}
	last := func() byte {
		if b.Len() == 0 {
			return '\n'
		}
		return b.Bytes()[b.Len()-1]
	}
	newline := func() {
		if last() != '\n' {
			b.WriteByte('\n')
		}
	}
	space := func() {
		if l := last(); l != ' ' && l != '\n' {
			b.WriteByte(' ')
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, next := readLiteralString(data, i)
			operands = append(operands, decode(raw))
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2 // dictionary open, operands inside are ignored
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			raw, next := readHexString(data, i)
			operands = append(operands, decode(raw))
			i = next
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case inArray && (c == '-' || c == '.' || isDigit(c)):
			// a large negative kerning inside TJ is a visual word gap
			j := i + 1
			for j < len(data) && (data[j] == '.' || isDigit(data[j])) {
				j++
			}
			if c == '-' && j-i > 3 {
				operands = append(operands, " ")
			}
			i = j
		case isOperatorByte(c):
			j := i
			for j < len(data) && isOperatorByte(data[j]) {
				j++
			}
			switch op := string(data[i:j]); op {
			case "Tj", "TJ":
				for _, s := range operands {
					b.WriteString(s)
				}
			case "'", "\"":
				newline()
				for _, s := range operands {
					b.WriteString(s)
				}
			case "T*", "ET":
				newline()
			case "Td", "TD", "Tm":
				space()
			}
			if !inArray {
				operands = operands[:0]
			}
			i = j
		default:
			i++
		}
	}
	return b.String()
}

func isOperatorByte(c byte) bool {
	return isASCIILetter(c) || c == '*' || c == '\'' || c == '"'
}

// readLiteralString reads a balanced (...) string starting at data[start]
// and returns its unescaped bytes and the index just past it.
func readLiteralString(data []byte, start int) ([]byte, int) {
	var out []byte
	depth := 0
	i := start
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return out, i + 1
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(data[i]-'0')
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return out, i
}

// readHexString reads a <...> string starting at data[start].
func readHexString(data []byte, start int) ([]byte, int) {
	var out []byte
	var hi byte
	half := false
	i := start + 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v, ok := hexVal(data[i])
		if !ok {
			continue
		}
		if !half {
			hi, half = v, true
			continue
		}
		out = append(out, hi<<4|v)
		half = false
	}
	if half {
		out = append(out, hi<<4)
	}
	return out, i + 1
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// textQuality is the share of non-space runes that are letters, digits or
// ordinary punctuation. Garbled CID-font output scores low.
func textQuality(s string) float32 {
	var good, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || strings.ContainsRune("+<=>$%°", r) {
			good++
		}
	}
	if total == 0 {
		return 0
	}
	return float32(good) / float32(total)
}

package extract

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// destinations whose content is never document text
var rtfSkipDest = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "object": true, "header": true, "footer": true,
	"headerl": true, "headerr": true, "footerl": true, "footerr": true,
	"xmlnstbl": true, "listtable": true, "listoverridetable": true,
	"rsidtbl": true, "generator": true, "themedata": true, "colorschememapping": true,
	"datastore": true, "latentstyles": true, "fldinst": true,
}

type rtfGroup struct {
	skip bool
	uc   int // chars to skip after \uN
}

// rtfToText strips RTF control words and groups, decoding \'hh via
// Windows-1252 and \uN escapes.
func rtfToText(data []byte) string {
	dec := charmap.Windows1252.NewDecoder()
	var (
		b       strings.Builder
		stack   = []rtfGroup{{uc: 1}}
		pending int // fallback chars still to skip after \uN
	)
	cur := func() *rtfGroup { return &stack[len(stack)-1] }
	emit := func(s string) {
		if cur().skip {
			return
		}
		if pending > 0 {
			pending--
			return
		}
		b.WriteString(s)
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch c {
		case '{':
			stack = append(stack, *cur())
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			n := data[i+1]
			switch {
			case n == '\\' || n == '{' || n == '}':
				emit(string(n))
				i++
			case n == '\'':
				if i+3 < len(data) {
					if v, err := strconv.ParseUint(string(data[i+2:i+4]), 16, 8); err == nil {
						s, _ := dec.String(string([]byte{byte(v)}))
						emit(s)
					}
				}
				i += 3
			case n == '*':
				cur().skip = true
				i++
			case n == '~':
				emit(" ")
				i++
			case n == '-' || n == '_':
				i++
			case n == '\n' || n == '\r':
				emit("\n")
				i++
			case isASCIILetter(n):
				j := i + 1
				for j < len(data) && isASCIILetter(data[j]) {
					j++
				}
				word := string(data[i+1 : j])
				k := j
				if k < len(data) && (data[k] == '-' || isDigit(data[k])) {
					k++
					for k < len(data) && isDigit(data[k]) {
						k++
					}
				}
				param := string(data[j:k])
				if k < len(data) && data[k] == ' ' {
					k++ // delimiter space belongs to the control word
				}
				i = k - 1
				switch word {
				case "par", "line", "row", "sect", "page":
					emit("\n")
				case "tab", "cell":
					emit("\t")
				case "u":
					if v, err := strconv.Atoi(param); err == nil {
						if v < 0 {
							v += 65536
						}
						emit(string(rune(v)))
						pending = cur().uc
					}
				case "uc":
					if v, err := strconv.Atoi(param); err == nil {
						cur().uc = v
					}
				default:
					if rtfSkipDest[word] {
						cur().skip = true
					}
				}
			default:
				i++
			}
		case '\r', '\n':
			// raw line breaks are formatting only
		default:
			emit(string(c))
		}
	}
	return strings.TrimSpace(b.String())
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

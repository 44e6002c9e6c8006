package extract

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
)

// pdfcpu exposes decoded content streams but has no text layer, so the
// text-showing operators are interpreted here. Strings are decoded as
// UTF-16BE when they carry a byte order mark and as Latin-1 otherwise;
// fonts with two-byte CID encodings are not mapped through their ToUnicode
// tables.

// tjSpace is the TJ displacement, in thousandths of an em, that reads as a
// word break.
const tjSpace = -200

type pdfName string

type contentScanner struct {
	src []byte
	pos int
}

// contentText returns the text shown by a page content stream.
func contentText(stream []byte) string {
	s := &contentScanner{src: stream}
	var (
		out      strings.Builder
		operands []any
	)
	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}
	show := func(v any) {
		if str, ok := v.([]byte); ok {
			out.WriteString(decodePDFString(str))
		}
	}
	last := func() any {
		if len(operands) == 0 {
			return nil
		}
		return operands[len(operands)-1]
	}

	for {
		tok, op, ok := s.next()
		if !ok {
			break
		}
		if !op {
			operands = append(operands, tok)
			continue
		}
		switch tok.(string) {
		case "Tj":
			show(last())
		case "'", `"`:
			newline()
			show(last())
		case "TJ":
			if arr, ok := last().([]any); ok {
				for _, el := range arr {
					if n, ok := el.(float64); ok && n <= tjSpace {
						out.WriteByte(' ')
						continue
					}
					show(el)
				}
			}
		case "Td", "TD":
			if len(operands) >= 2 {
				if ty, ok := operands[len(operands)-1].(float64); ok && ty == 0 {
					out.WriteByte(' ')
					break
				}
			}
			newline()
		case "T*", "Tm", "ET":
			newline()
		case "ID":
			s.skipInlineImage()
		}
		operands = operands[:0]
	}
	return strings.TrimSpace(out.String())
}

// next returns the next token. op reports whether it is an operator, in
// which case tok is its string form.
func (s *contentScanner) next() (tok any, op, ok bool) {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return nil, false, false
	}
	switch c := s.src[s.pos]; {
	case c == '(':
		return s.literal(), false, true
	case c == '<' && s.peek(1) == '<':
		s.pos += 2
		return pdfName("<<"), false, true
	case c == '>' && s.peek(1) == '>':
		s.pos += 2
		return pdfName(">>"), false, true
	case c == '<':
		return s.hex(), false, true
	case c == '[':
		s.pos++
		var arr []any
		for {
			s.skipSpace()
			if s.pos >= len(s.src) {
				return arr, false, true
			}
			if s.src[s.pos] == ']' {
				s.pos++
				return arr, false, true
			}
			el, _, ok := s.next()
			if !ok {
				return arr, false, true
			}
			arr = append(arr, el)
		}
	case c == ']' || c == '{' || c == '}' || c == ')' || c == '>':
		s.pos++
		return pdfName(string(c)), false, true
	case c == '/':
		s.pos++
		return pdfName(s.word()), false, true
	default:
		w := s.word()
		if w == "" {
			s.pos++
			return pdfName(""), false, true
		}
		if n, err := strconv.ParseFloat(w, 64); err == nil {
			return n, false, true
		}
		if w == "true" || w == "false" || w == "null" {
			return pdfName(w), false, true
		}
		return w, true, true
	}
}

func (s *contentScanner) peek(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

func (s *contentScanner) skipSpace() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
				s.pos++
			}
		default:
			return
		}
	}
}

func (s *contentScanner) word() string {
	start := s.pos
	for s.pos < len(s.src) && !isPDFSpace(s.src[s.pos]) && !isPDFDelim(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *contentScanner) literal() []byte {
	s.pos++ // (
	var (
		out   []byte
		depth = 1
	)
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			if s.pos >= len(s.src) {
				return out
			}
			e := s.src[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.peek(0) == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.src) && s.src[s.pos] >= '0' && s.src[s.pos] <= '7'; i++ {
						v = v*8 + int(s.src[s.pos]-'0')
						s.pos++
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
	return out
}

func (s *contentScanner) hex() []byte {
	s.pos++ // <
	var digits []byte
	for s.pos < len(s.src) && s.src[s.pos] != '>' {
		if c := s.src[s.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage moves past the binary data of a BI ... ID ... EI block.
func (s *contentScanner) skipInlineImage() {
	if i := bytes.Index(s.src[s.pos:], []byte("EI")); i >= 0 {
		for i >= 0 {
			at := s.pos + i
			before := at == 0 || isPDFSpace(s.src[at-1])
			after := at+2 >= len(s.src) || isPDFSpace(s.src[at+2])
			if before && after {
				s.pos = at + 2
				return
			}
			j := bytes.Index(s.src[at+2:], []byte("EI"))
			if j < 0 {
				break
			}
			i = at + 2 + j - s.pos
		}
	}
	s.pos = len(s.src)
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	var sb strings.Builder
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' {
			continue
		}
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

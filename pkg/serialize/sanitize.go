// Package serialize holds the text and value sanitizers shared by the router and
// the result normalizer. Nothing in this package returns an error or panics; every
// function falls back to a weaker but valid result instead.
package serialize

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

type Context string

const (
	// ContextAPI makes text safe to embed between the quotes of a JSON string literal.
	ContextAPI Context = "api"
	// ContextFile leaves text untouched so file content survives byte for byte.
	ContextFile Context = "file"
	// ContextDisplay turns escaped sequences back into the characters they stand for.
	ContextDisplay Context = "display"
)

var displayReplacer = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\"`, `"`,
	`\/`, `/`,
)

func Sanitize(text string, ctx Context) string {
	switch ctx {
	case ContextFile:
		return text
	case ContextDisplay:
		return displayReplacer.Replace(text)
	default:
		return sanitizeAPI(text)
	}
}

// LooksDoubleEncoded reports whether text is a JSON string body that was encoded
// one time too many: it holds no raw line breaks, at least one \n, \r or \t escape,
// and is a valid JSON string literal once quoted. Code such as printf("a\n") keeps
// its bare quotes and so is not matched.
func LooksDoubleEncoded(text string) bool {
	if strings.ContainsAny(text, "\n\r") || !hasWhitespaceEscape(text) {
		return false
	}
	return gjson.Valid(`"` + text + `"`)
}

// DisplayText un-escapes text for display only when it looks double encoded and
// otherwise returns it unchanged.
func DisplayText(text string) string {
	if LooksDoubleEncoded(text) {
		return Sanitize(text, ContextDisplay)
	}
	return text
}

func hasWhitespaceEscape(text string) bool {
	for i := 0; i+1 < len(text); i++ {
		if text[i] != '\\' {
			continue
		}
		switch text[i+1] {
		case 'n', 'r', 't':
			return true
		}
		i++
	}
	return false
}

// sanitizeAPI escapes what JSON requires and keeps escape sequences that are already
// valid, so applying it twice yields the same text.
func sanitizeAPI(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	var b strings.Builder
	b.Grow(len(text) + 8)

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\':
			if n := validEscapeLen(text[i:]); n > 0 {
				b.WriteString(text[i : i+n])
				i += n - 1
				continue
			}
			b.WriteString(`\\`)
		case c == '"':
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\b':
			b.WriteString(`\b`)
		case c == '\f':
			b.WriteString(`\f`)
		case c < 0x20 || c == 0x7f:
			// other control characters are dropped
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validEscapeLen reports the length of the JSON escape sequence at the start of s,
// or 0 when s does not start with one.
func validEscapeLen(s string) int {
	if len(s) < 2 || s[0] != '\\' {
		return 0
	}
	switch s[1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2
	case 'u':
		if len(s) < 6 {
			return 0
		}
		for _, h := range []byte(s[2:6]) {
			if !isHex(h) {
				return 0
			}
		}
		return 6
	}
	return 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

package serialize

import (
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```[ \t]*(?:jsonc|json|JSON)?[ \t]*\r?\n?(.*?)```")

// RepairAndNormalize returns compact JSON for text that looks like JSON, fixing the
// usual model output defects on the way. Text that does not look like JSON, or that
// cannot be repaired, is returned unchanged.
func RepairAndNormalize(text string) string {
	candidate, ok := extractJSONCandidate(text)
	if !ok {
		return text
	}

	if gjson.Valid(candidate) {
		return string(pretty.Ugly([]byte(candidate)))
	}

	fixed := fixCommonDefects(candidate)
	if gjson.Valid(fixed) {
		return string(pretty.Ugly([]byte(fixed)))
	}

	if repaired, ok := tryRepair(fixed); ok {
		return string(pretty.Ugly([]byte(repaired)))
	}
	return text
}

// LooksLikeJSON reports whether RepairAndNormalize would attempt a parse.
func LooksLikeJSON(text string) bool {
	_, ok := extractJSONCandidate(text)
	return ok
}

func extractJSONCandidate(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if m := fencedBlockPattern.FindStringSubmatch(trimmed); m != nil {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
			return inner, true
		}
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, true
	}
	return "", false
}

func tryRepair(text string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = "", false
		}
	}()
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil || !gjson.Valid(repaired) {
		return "", false
	}
	return repaired, true
}

// fixCommonDefects drops trailing commas before a closing bracket and escapes raw
// control characters inside string literals.
func fixCommonDefects(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				// dropped
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if next := nextSignificant(text, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func nextSignificant(text string, from int) byte {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\n', '\r', '\t':
			continue
		default:
			return text[i]
		}
	}
	return 0
}

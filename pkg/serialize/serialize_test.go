package serialize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAPIProducesValidJSONString(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"plain text",
		`say "hi"`,
		`C:\Users\bob`,
		"line1\nline2\r\n\ttabbed",
		"\x00\x01\x02\x1f\x7f bell\a",
		"back\bspace form\ffeed",
		`trailing backslash \`,
		`half escape \u12`,
		`already escaped \n and \" and \\`,
		"mixed \\\" \"\\ \\\\\"",
		"invalid utf8 \xff\xfe end",
		"unicode ข้อความ 数据分析师 🚀",
	}

	for _, in := range inputs {
		out := Sanitize(in, ContextAPI)
		var decoded string
		err := json.Unmarshal([]byte(`"`+out+`"`), &decoded)
		require.NoErrorf(t, err, "input %q produced %q", in, out)
	}
}

func TestSanitizeAPIEscapesAndStrips(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a\nb`, Sanitize("a\nb", ContextAPI))
	assert.Equal(t, `\"q\"`, Sanitize(`"q"`, ContextAPI))
	assert.Equal(t, `\t\r\b\f`, Sanitize("\t\r\b\f", ContextAPI))
	assert.Equal(t, "ab", Sanitize("a\x00\x07b", ContextAPI))
	assert.Equal(t, `x\\y`, Sanitize(`x\y`, ContextAPI))
}

func TestSanitizeAPIIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"a\nb", `"q"`, `x\y`, `\u00e9 \uZZZZ`, "\\"} {
		once := Sanitize(in, ContextAPI)
		assert.Equal(t, once, Sanitize(once, ContextAPI), "input %q", in)
	}
}

func TestSanitizeFileIsPassthrough(t *testing.T) {
	t.Parallel()

	in := "raw\x00bytes \"quoted\" \\ \n\xff"
	assert.Equal(t, in, Sanitize(in, ContextFile))
}

func TestSanitizeDisplayReversesEscapes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "line1\nline2\t\"x\" a/b", Sanitize(`line1\nline2\t\"x\" a\/b`, ContextDisplay))
	assert.Equal(t, `\n`, Sanitize(`\\n`, ContextDisplay))
}

func TestDisplayTextOnlyDecodesDoubleEncodedText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{`line1\nline2 \"x\"`, "line1\nline2 \"x\""},
		{`col1\tcol2`, "col1\tcol2"},
		{`printf("a\n");`, `printf("a\n");`},
		{`copy C:\\temp`, `copy C:\\temp`},
		{"first line\nthen a literal \\n", "first line\nthen a literal \\n"},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DisplayText(tc.in), "input %q", tc.in)
	}
	assert.True(t, LooksDoubleEncoded(`a\nb`))
	assert.False(t, LooksDoubleEncoded(`say "hi"\n`))
}

func TestDeepCleanSanitizesLeavesExceptOpaqueKeys(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"title":            "a\nb",
		"content":          "keep\n\"me\"",
		"markdown_content": "# h\n",
		"nested": []any{
			"x\ty",
			map[string]any{"html_content": "<p>\n</p>", "k": `"v"`},
		},
		"tags":  []string{"one\n", "two"},
		"count": 3,
	}

	out, ok := DeepClean(in).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, `a\nb`, out["title"])
	assert.Equal(t, "keep\n\"me\"", out["content"])
	assert.Equal(t, "# h\n", out["markdown_content"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []any{`one\n`, "two"}, out["tags"])

	nested := out["nested"].([]any)
	assert.Equal(t, `x\ty`, nested[0])
	inner := nested[1].(map[string]any)
	assert.Equal(t, "<p>\n</p>", inner["html_content"])
	assert.Equal(t, `\"v\"`, inner["k"])

	// input is not modified
	assert.Equal(t, "a\nb", in["title"])
}

func TestDeepCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	values := []any{
		nil,
		"a\n\"b\"\\c",
		42,
		[]any{"x\n", []any{"y\t"}, map[string]any{"z": "\x01"}},
		map[string]any{
			"content": "raw\n",
			"list":    []string{"a\\", "b\""},
			"map":     map[string]string{"k": "v\r"},
		},
	}

	for _, v := range values {
		once := DeepClean(v)
		assert.Equal(t, once, DeepClean(once))
	}
}

type exploding struct{}

func (exploding) MarshalJSON() ([]byte, error) { panic("boom") }

func TestSafeSerializeNeverFails(t *testing.T) {
	t.Parallel()

	cyclic := map[string]any{"name": "loop"}
	cyclic["self"] = cyclic

	values := []any{
		nil,
		"text",
		map[string]any{"fn": func() {}, "ok": "yes"},
		[]any{make(chan int), complex(1, 2), math.NaN(), math.Inf(1)},
		cyclic,
		exploding{},
		map[string]any{"deep": []any{map[string]any{"x": exploding{}}}},
		struct{ C chan int }{C: make(chan int)},
	}

	for _, v := range values {
		out := SafeSerialize(v)
		assert.True(t, json.Valid([]byte(out)), "output %q is not JSON", out)
	}
}

func TestSafeSerializeKeepsSerializableStructure(t *testing.T) {
	t.Parallel()

	out := SafeSerialize(map[string]any{"a": 1, "b": []any{"x", "y"}})
	assert.JSONEq(t, `{"a":1,"b":["x","y"]}`, out)

	out = SafeSerialize(map[string]any{"fn": func() {}, "ok": "yes"})
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "yes", decoded["ok"])
	assert.Equal(t, "func()", decoded["fn"])
}

func TestRepairAndNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced trailing comma", in: "```json\n{\"a\":1,}\n```", want: `{"a":1}`},
		{name: "already valid gets compacted", in: "{ \"a\" : [1, 2] }", want: `{"a":[1,2]}`},
		{name: "array trailing comma", in: "[1, 2, 3, ]", want: `[1,2,3]`},
		{name: "raw newline inside string", in: "{\"text\": \"line1\nline2\"}", want: `{"text":"line1\nline2"}`},
		{name: "fence inside prose", in: "Here you go:\n```json\n{\"ok\": true}\n```\nthanks", want: `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairAndNormalize(tt.in)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestRepairAndNormalizeLeavesNonJSONUntouched(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "hello world", "use {braces} later", "```\nplain code\n```"} {
		assert.Equal(t, in, RepairAndNormalize(in))
	}
}

func TestRepairAndNormalizeReturnsOriginalWhenUnrepairable(t *testing.T) {
	t.Parallel()

	in := "{" + strings.Repeat("]", 3)
	out := RepairAndNormalize(in)
	if out != in {
		assert.True(t, json.Valid([]byte(out)))
	}
}

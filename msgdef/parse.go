package msgdef

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// The grammar is line-oriented: comments, the 80-equals
// section separator, and "MSG:" embedded-type headers are all recognized a
// line at a time in plain Go as skippable/structural tokens around a much
// smaller expression grammar. Only the remaining per-line shape - a field
// declaration or a constant's "type name" prefix - is handed to a
// participle-built parser, since that's the part with real internal
// structure (an optional bracketed array size).
var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_/]*`},
	{Name: "Punct", Pattern: `[\[\]]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// arraySpec captures the optional "[n]" / "[]" suffix on a field's type.
type arraySpec struct {
	Size *int `"[" @Number? "]"`
}

// fieldLine is the shape of a field declaration: "type array_size? name".
type fieldLine struct {
	Type  string     `@Ident`
	Array *arraySpec `@@?`
	Name  string     `@Ident`
}

// constantHead is the shape of a constant's left-hand side: "type name",
// found by splitting the line on its first '=' before parsing either side.
type constantHead struct {
	Type string `@Ident`
	Name string `@Ident`
}

var (
	fieldLineParser = participle.MustBuild(
		&fieldLine{},
		participle.Lexer(lineLexer),
		participle.Elide("Whitespace"),
	)
	constantHeadParser = participle.MustBuild(
		&constantHead{},
		participle.Lexer(lineLexer),
		participle.Elide("Whitespace"),
	)
)

const separatorWidth = 80

// Parse parses a connection's message_definition string into a Def. The
// first section (before any "MSG:" line) becomes the top-level Def.Members;
// every subsequent "MSG: name" section becomes an entry in Def.Embedded.
func Parse(text string) (*Def, error) {
	def := &Def{}
	var cur *EmbeddedDef // nil while still in the top-level section

	lines := strings.Split(text, "\n")
	for _, raw := range lines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isSeparatorLine(line) {
			continue
		}
		if rest, ok := cutMsgHeader(line); ok {
			name := strings.TrimPrefix(strings.TrimSpace(rest), "std_msgs/")
			cur = &EmbeddedDef{TypeName: name}
			def.Embedded = append(def.Embedded, cur)
			continue
		}

		member, err := parseMemberLine(raw, line)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			def.Members = append(def.Members, member)
		} else {
			cur.Members = append(cur.Members, member)
		}
	}
	return def, nil
}

// stripComment removes a trailing "#"-introduced comment, if any.
func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx != -1 {
		return line[:idx]
	}
	return line
}

// isSeparatorLine reports whether line is exactly 80 '=' characters, the
// delimiter placed between embedded type sections.
func isSeparatorLine(line string) bool {
	return len(line) == separatorWidth && strings.Trim(line, "=") == ""
}

// cutMsgHeader reports whether line is an embedded-type header and, if so,
// returns the text following "MSG:".
func cutMsgHeader(line string) (string, bool) {
	const prefix = "MSG:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return line[len(prefix):], true
}

// parseMemberLine parses a single non-blank, comment-stripped,
// non-separator, non-header line into a field or a constant. raw is the
// original unstripped line, used only for error context.
func parseMemberLine(raw, line string) (Member, error) {
	if eq := strings.IndexByte(line, '='); eq != -1 {
		head := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		parsed := &constantHead{}
		if err := constantHeadParser.ParseString("", head, parsed); err != nil {
			return Member{}, newSchemaParseErr(raw)
		}
		return Member{Constant: &Constant{
			TypeName:  strings.TrimPrefix(parsed.Type, "std_msgs/"),
			Name:      parsed.Name,
			ValueText: value,
		}}, nil
	}

	parsed := &fieldLine{}
	if err := fieldLineParser.ParseString("", line, parsed); err != nil {
		return Member{}, newSchemaParseErr(raw)
	}
	arraySize := 0
	if parsed.Array != nil {
		if parsed.Array.Size != nil {
			arraySize = *parsed.Array.Size
		} else {
			arraySize = -1
		}
	}
	return Member{Field: &Field{
		TypeName:  strings.TrimPrefix(parsed.Type, "std_msgs/"),
		ArraySize: arraySize,
		Name:      parsed.Name,
	}}, nil
}

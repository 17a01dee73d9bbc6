package grammar

import (
	"github.com/alecthomas/participle/v2"
)

var irParser = participle.MustBuild[File](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// ParseSource parses a textual IR file.
func ParseSource(path string, source string) (*File, error) {
	return irParser.ParseString(path, source)
}

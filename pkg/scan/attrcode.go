package scan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrFormat reports an access or clears code that cannot be decoded.
var ErrFormat = errors.New("scan: bad attribute code")

// codeLexer splits attribute codes into single-character tokens. Anything
// outside the alphabet is a lexing error.
var codeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Letter", Pattern: `[A-Z]`},
	{Name: "Mark", Pattern: `[?\-]`},
})

// accessCode is one of "?", "-", "U", or a run of R, W, S and D.
type accessCode struct {
	Unknown       bool     `parser:"  @\"?\""`
	None          bool     `parser:"| @\"-\""`
	Unpredictable bool     `parser:"| @\"U\""`
	Flags         []string `parser:"| @(\"R\" | \"W\" | \"S\" | \"D\")+"`
}

type clearsCode struct {
	Code string `parser:"@(\"H\" | \"L\" | \"-\" | \"?\")"`
}

var (
	accessParser = participle.MustBuild[accessCode](
		participle.Lexer(codeLexer),
		participle.Elide("Whitespace"),
	)
	clearsParser = participle.MustBuild[clearsCode](
		participle.Lexer(codeLexer),
		participle.Elide("Whitespace"),
	)
)

// ParseAccess decodes an element access code. The code is case-insensitive.
// An empty code inherits parent. "?" means readable and writeable, the most
// conservative choice since it disables tests that depend on access.
func ParseAccess(code string, parent Access) (Access, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if norm == "" {
		return parent, nil
	}
	parsed, err := accessParser.ParseString("", norm)
	if err != nil {
		return Access{}, fmt.Errorf("%w: access %q: allowed values are ?, U, -, R, W, RW, RWS or RWD: %v", ErrFormat, code, err)
	}

	switch {
	case parsed.Unknown:
		return Access{Readable: true, Writeable: true}, nil
	case parsed.None:
		return Access{}, nil
	case parsed.Unpredictable:
		return Access{Unpredictable: true}, nil
	}

	var a Access
	seen := map[string]bool{}
	for _, f := range parsed.Flags {
		if seen[f] {
			return Access{}, fmt.Errorf("%w: access %q repeats %s", ErrFormat, code, f)
		}
		seen[f] = true
		switch f {
		case "R":
			a.Readable = true
		case "W":
			a.Writeable = true
		case "S":
			a.UsesShadow = true
		case "D":
			a.UsesDualPortedShadow = true
		}
	}
	if a.UsesShadow && a.UsesDualPortedShadow {
		return Access{}, fmt.Errorf("%w: access %q: S and D cannot be combined", ErrFormat, code)
	}
	return a, nil
}

// ParseClears decodes a master-clear code: H, L, - (not cleared) or ?
// (unknown). An empty code inherits parent.
func ParseClears(code string, parent ClearBehavior) (ClearBehavior, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if norm == "" {
		return parent, nil
	}
	parsed, err := clearsParser.ParseString("", norm)
	if err != nil {
		return ClearsUnknown, fmt.Errorf("%w: clears %q: %v", ErrFormat, code, err)
	}
	switch parsed.Code {
	case "H":
		return ClearsHigh, nil
	case "L":
		return ClearsLow, nil
	case "-":
		return ClearsNot, nil
	default:
		return ClearsUnknown, nil
	}
}

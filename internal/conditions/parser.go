package conditions

import (
	"strconv"
	"strings"
	"sync"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Grammar (one comparison per expression, lists of expressions AND together):
//
//	expr    := path op literal | path "IN" "(" literal ("," literal)* ")"
//	path    := ident ("[" int "]")* ("." ident ("[" int "]")*)*
//	op      := "=" | "!=" | ">" | "<" | ">=" | "<=" | "LIKE"
//	literal := 'single-quoted string' | number | true | false | null
//
// LIKE patterns use % as a multi-character wildcard and match case-sensitively.
// A malformed expression is a parse error, never a silent false.

var parseCache sync.Map // source string -> *Condition

// Compile parses a condition expression, returning a cached result for
// previously seen sources. Definitions are static, so the cache is unbounded.
func Compile(source string) (*Condition, error) {
	if cached, ok := parseCache.Load(source); ok {
		return cached.(*Condition), nil
	}
	cond, err := parse(source)
	if err != nil {
		return nil, err
	}
	parseCache.Store(source, cond)
	return cond, nil
}

type parser struct {
	src string
	pos int
}

func parse(source string) (*Condition, error) {
	p := &parser{src: source}
	p.skipSpace()
	if p.eof() {
		return nil, parseErr(source, "empty condition")
	}

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}

	cond := &Condition{Source: source, Path: path, Op: op}

	p.skipSpace()
	if op == OpIn {
		list, listErr := p.parseList()
		if listErr != nil {
			return nil, listErr
		}
		cond.List = list
	} else {
		lit, litErr := p.parseLiteral()
		if litErr != nil {
			return nil, litErr
		}
		cond.Lit = lit
	}

	p.skipSpace()
	if !p.eof() {
		return nil, parseErr(source, "unexpected trailing input %q", p.src[p.pos:])
	}
	return cond, nil
}

func (p *parser) parsePath() ([]PathSegment, error) {
	var segs []PathSegment
	for {
		start := p.pos
		for !p.eof() && isIdentChar(p.src[p.pos]) {
			p.pos++
		}
		if p.pos == start {
			return nil, parseErr(p.src, "expected field name at offset %d", start)
		}
		seg := PathSegment{Key: p.src[start:p.pos]}

		for !p.eof() && p.src[p.pos] == '[' {
			p.pos++
			numStart := p.pos
			for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
				p.pos++
			}
			if p.pos == numStart || p.eof() || p.src[p.pos] != ']' {
				return nil, parseErr(p.src, "malformed index accessor in field path")
			}
			idx, _ := strconv.Atoi(p.src[numStart:p.pos])
			seg.Indexes = append(seg.Indexes, idx)
			p.pos++
		}

		segs = append(segs, seg)
		if p.eof() || p.src[p.pos] != '.' {
			break
		}
		p.pos++
	}
	return segs, nil
}

func (p *parser) parseOp() (Op, error) {
	switch {
	case p.hasPrefix(">="):
		p.pos += 2
		return OpGte, nil
	case p.hasPrefix("<="):
		p.pos += 2
		return OpLte, nil
	case p.hasPrefix("!="):
		p.pos += 2
		return OpNeq, nil
	case p.hasPrefix("="):
		p.pos++
		return OpEq, nil
	case p.hasPrefix(">"):
		p.pos++
		return OpGt, nil
	case p.hasPrefix("<"):
		p.pos++
		return OpLt, nil
	}
	// Word operators need a boundary after them.
	for _, word := range []struct {
		kw string
		op Op
	}{{"LIKE", OpLike}, {"IN", OpIn}} {
		if p.hasPrefix(word.kw) {
			next := p.pos + len(word.kw)
			if next >= len(p.src) || p.src[next] == ' ' || p.src[next] == '(' || p.src[next] == '\'' {
				p.pos = next
				return word.op, nil
			}
		}
	}
	return "", parseErr(p.src, "expected operator at offset %d", p.pos)
}

func (p *parser) parseList() ([]Literal, error) {
	if p.eof() || p.src[p.pos] != '(' {
		return nil, parseErr(p.src, "IN requires a parenthesized list")
	}
	p.pos++

	var list []Literal
	for {
		p.skipSpace()
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		list = append(list, lit)

		p.skipSpace()
		if p.eof() {
			return nil, parseErr(p.src, "unterminated IN list")
		}
		if p.src[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.src[p.pos] == ')' {
			p.pos++
			return list, nil
		}
		return nil, parseErr(p.src, "expected ',' or ')' in IN list at offset %d", p.pos)
	}
}

func (p *parser) parseLiteral() (Literal, error) {
	if p.eof() {
		return Literal{}, parseErr(p.src, "expected literal, got end of input")
	}

	if p.src[p.pos] == '\'' {
		p.pos++
		start := p.pos
		for !p.eof() && p.src[p.pos] != '\'' {
			p.pos++
		}
		if p.eof() {
			return Literal{}, parseErr(p.src, "unterminated string literal")
		}
		lit := Literal{Kind: LiteralString, Str: p.src[start:p.pos]}
		p.pos++
		return lit, nil
	}

	start := p.pos
	for !p.eof() && isLiteralChar(p.src[p.pos]) {
		p.pos++
	}
	word := p.src[start:p.pos]
	switch word {
	case "":
		return Literal{}, parseErr(p.src, "expected literal at offset %d", start)
	case "true":
		return Literal{Kind: LiteralBool, Bool: true}, nil
	case "false":
		return Literal{Kind: LiteralBool, Bool: false}, nil
	case "null":
		return Literal{Kind: LiteralNull}, nil
	}
	num, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return Literal{}, parseErr(p.src, "invalid literal %q", word)
	}
	return Literal{Kind: LiteralNumber, Num: num}, nil
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func isLiteralChar(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c == '.' || c == '-' || c == '+'
}

func parseErr(source, format string, args ...any) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeCondition, format, args...).
		WithDetails(map[string]any{"condition": source})
}

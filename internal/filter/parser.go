package filter

import (
	"strconv"
	"strings"
)

// Parse parses a complete filter expression.
func Parse(input string) (Expression, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, p.unexpected("expected end of filter")
	}
	return expr, nil
}

// ParsePath parses a PATCH operation path: an attribute path with an
// optional value filter and an optional sub-attribute.
func ParsePath(input string) (Path, error) {
	p, err := newParser(input)
	if err != nil {
		return Path{}, err
	}
	path, err := p.parsePath()
	if err != nil {
		return Path{}, err
	}
	if p.tok.kind != tokenEOF {
		return Path{}, p.unexpected("expected end of path")
	}
	return path, nil
}

type parser struct {
	lex *lexer
	tok token
}

func newParser(input string) (*parser, error) {
	p := &parser{lex: newLexer(input)}
	return p, p.advance()
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) unexpected(msg string) error {
	return &ParseError{Fragment: p.tok.text, Position: p.tok.pos, Message: msg}
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenWord && strings.EqualFold(p.tok.text, "or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = LogicalExpression{Op: Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenWord && strings.EqualFold(p.tok.text, "and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = LogicalExpression{Op: And, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expression, error) {
	switch {
	case p.tok.kind == tokenWord && strings.EqualFold(p.tok.text, "not"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokenLParen {
			return nil, p.unexpected(`expected "(" after "not"`)
		}
		inner, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		return NotExpression{Expr: inner}, nil
	case p.tok.kind == tokenLParen:
		return p.parseGroup()
	case p.tok.kind == tokenWord:
		return p.parseAttrExpr()
	default:
		return nil, p.unexpected("expected attribute expression or group")
	}
}

func (p *parser) parseGroup() (Expression, error) {
	if err := p.advance(); err != nil { // consume "("
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenRParen {
		return nil, p.unexpected(`expected ")"`)
	}
	return expr, p.advance()
}

func (p *parser) parseAttrExpr() (Expression, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenWord {
		return nil, p.unexpected("expected comparison operator")
	}
	opText := strings.ToLower(p.tok.text)
	if opText == "pr" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return PresentExpression{Path: path}, nil
	}
	op, ok := compareOperators[opText]
	if !ok {
		return nil, p.unexpected("unknown operator")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	value, err := p.parseCompValue()
	if err != nil {
		return nil, err
	}
	return AttributeExpression{Path: path, Op: op, Value: value}, nil
}

func (p *parser) parseCompValue() (any, error) {
	switch p.tok.kind {
	case tokenString:
		v := p.tok.text
		return v, p.advance()
	case tokenNumber:
		v, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, &ParseError{Fragment: p.tok.text, Position: p.tok.pos, Message: "malformed number literal"}
		}
		return v, p.advance()
	case tokenWord:
		switch strings.ToLower(p.tok.text) {
		case "true":
			return true, p.advance()
		case "false":
			return false, p.advance()
		case "null":
			return nil, p.advance()
		}
		return nil, p.unexpected("expected literal value")
	default:
		return nil, p.unexpected("expected literal value")
	}
}

// parsePath parses attrPath := word ( "[" filter "]" )? ( "." word )?
// where the word may carry a URN prefix separated by its last colon.
func (p *parser) parsePath() (Path, error) {
	if p.tok.kind != tokenWord {
		return Path{}, p.unexpected("expected attribute path")
	}
	path := splitQualified(p.tok.text)
	if err := p.advance(); err != nil {
		return Path{}, err
	}
	if p.tok.kind == tokenLBracket {
		if err := p.advance(); err != nil {
			return Path{}, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return Path{}, err
		}
		if p.tok.kind != tokenRBracket {
			return Path{}, p.unexpected(`expected "]"`)
		}
		if err := p.advance(); err != nil {
			return Path{}, err
		}
		path.ValueFilter = inner
	}
	if p.tok.kind == tokenDot {
		if err := p.advance(); err != nil {
			return Path{}, err
		}
		if p.tok.kind != tokenWord {
			return Path{}, p.unexpected("expected sub-attribute name")
		}
		if strings.Contains(p.tok.text, ":") {
			return Path{}, p.unexpected("sub-attribute must be unqualified")
		}
		path.SubAttribute = p.tok.text
		if err := p.advance(); err != nil {
			return Path{}, err
		}
	}
	return path, nil
}

// splitQualified splits a schema-qualified word at its last colon. Inside a
// qualified word a dot may separate the attribute from a sub-attribute, e.g.
// urn:...:User:name.givenName.
func splitQualified(word string) Path {
	path := Path{Name: word}
	if idx := strings.LastIndexByte(word, ':'); idx >= 0 {
		path.URIPrefix = word[:idx]
		path.Name = word[idx+1:]
	}
	if idx := strings.IndexByte(path.Name, '.'); idx >= 0 && path.URIPrefix != "" {
		path.SubAttribute = path.Name[idx+1:]
		path.Name = path.Name[:idx]
	}
	return path
}

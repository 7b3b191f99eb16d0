package classdef

import (
	"fmt"
	"strings"

	"github.com/initcore/initd/internal/core"
)

// parseExpr turns an upstart-flavored "start on"/"stop on" expression
// into an *core.EventOperator tree. Grammar (lowest to highest
// precedence): orExpr -> andExpr ("or" andExpr)*; andExpr -> atom
// ("and" atom)*; atom -> "(" orExpr ")" | EVENTNAME arg*. An arg of
// the form NAME=value is a literal matcher that also binds NAME in
// the matched environment; NAME=$REF matches against the evaluating
// job's own env under REF; a bare token is a positional literal with
// no binding.
func parseExpr(s string) (*core.EventOperator, error) {
	toks := tokenize(s)
	if len(toks) == 0 {
		return nil, fmt.Errorf("classdef: empty event expression")
	}
	p := &exprParser{toks: toks}
	op, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("classdef: unexpected trailing token %q in %q", p.toks[p.pos], s)
	}
	return op, nil
}

type exprParser struct {
	toks []string
	pos  int
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseOr() (*core.EventOperator, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*core.EventOperator{first}
	for strings.EqualFold(p.peek(), "or") {
		p.next()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return core.NewOr(children...), nil
}

func (p *exprParser) parseAnd() (*core.EventOperator, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	children := []*core.EventOperator{first}
	for strings.EqualFold(p.peek(), "and") {
		p.next()
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return core.NewAnd(children...), nil
}

func (p *exprParser) parseAtom() (*core.EventOperator, error) {
	if p.peek() == "(" {
		p.next()
		op, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("classdef: expected ) got %q", p.peek())
		}
		p.next()
		return op, nil
	}
	name := p.next()
	if name == "" || isKeyword(name) || name == ")" {
		return nil, fmt.Errorf("classdef: expected an event name, got %q", name)
	}
	var args []core.Matcher
	for p.peek() != "" && !isKeyword(p.peek()) && p.peek() != ")" {
		args = append(args, parseArg(p.next()))
	}
	return core.NewMatch(name, args...), nil
}

func isKeyword(tok string) bool {
	return strings.EqualFold(tok, "and") || strings.EqualFold(tok, "or")
}

func parseArg(tok string) core.Matcher {
	eq := strings.IndexByte(tok, '=')
	if eq < 0 {
		return core.Matcher{Literal: tok}
	}
	name, value := tok[:eq], tok[eq+1:]
	if strings.HasPrefix(value, "$") {
		return core.Matcher{EnvRef: true, RefName: value[1:]}
	}
	return core.Matcher{Literal: value, RefName: name}
}

// tokenize splits on whitespace while keeping parentheses as their
// own tokens, e.g. "(started foo)" -> ["(", "started", "foo", ")"].
func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

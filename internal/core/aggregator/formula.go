package aggregator

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Formula is a parsed arithmetic expression over named variables bound
// to other metric values. Supported: + - * / unary minus, parentheses,
// numeric literals, identifiers.
type Formula struct {
	source string
	root   formulaNode
}

type formulaNode interface {
	eval(vars map[string]float64) (float64, error)
	collectVars(out map[string]struct{})
}

type numberNode float64

func (n numberNode) eval(map[string]float64) (float64, error) { return float64(n), nil }
func (n numberNode) collectVars(map[string]struct{})          {}

type varNode string

func (v varNode) eval(vars map[string]float64) (float64, error) {
	val, ok := vars[string(v)]
	if !ok {
		return 0, fmt.Errorf("undefined variable %q", string(v))
	}
	return val, nil
}

func (v varNode) collectVars(out map[string]struct{}) { out[string(v)] = struct{}{} }

type binaryNode struct {
	op          byte
	left, right formulaNode
}

func (b *binaryNode) eval(vars map[string]float64) (float64, error) {
	l, err := b.left.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := b.right.eval(vars)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return l / r, nil
	}
	return 0, fmt.Errorf("unknown operator %q", string(b.op))
}

func (b *binaryNode) collectVars(out map[string]struct{}) {
	b.left.collectVars(out)
	b.right.collectVars(out)
}

type negateNode struct {
	inner formulaNode
}

func (n *negateNode) eval(vars map[string]float64) (float64, error) {
	v, err := n.inner.eval(vars)
	return -v, err
}

func (n *negateNode) collectVars(out map[string]struct{}) { n.inner.collectVars(out) }

// ParseFormula parses an expression into a reusable Formula.
func ParseFormula(source string) (*Formula, error) {
	p := &formulaParser{input: source}
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", source, err)
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("formula %q: unexpected %q at position %d", source, p.input[p.pos], p.pos)
	}
	return &Formula{source: source, root: root}, nil
}

// Eval computes the formula with the given variable bindings.
func (f *Formula) Eval(vars map[string]float64) (float64, error) {
	return f.root.eval(vars)
}

// Vars returns the variable names the formula references.
func (f *Formula) Vars() []string {
	set := make(map[string]struct{})
	f.root.collectVars(set)
	vars := make([]string, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	return vars
}

// String returns the original expression text.
func (f *Formula) String() string { return f.source }

type formulaParser struct {
	input string
	pos   int
}

func (p *formulaParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *formulaParser) parseExpr() (formulaNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseTerm() (formulaNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseFactor() (formulaNode, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, fmt.Errorf("unexpected end of expression")
	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case c == '-':
		p.pos++
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &negateNode{inner: inner}, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	case isIdentStart(rune(c)):
		return p.parseIdent()
	default:
		return nil, fmt.Errorf("unexpected character %q at position %d", string(c), p.pos)
	}
}

func (p *formulaParser) parseNumber() (formulaNode, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		p.pos++
	}
	val, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return numberNode(val), nil
}

func (p *formulaParser) parseIdent() (formulaNode, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(rune(p.input[p.pos])) {
		p.pos++
	}
	name := strings.TrimSpace(p.input[start:p.pos])
	return varNode(name), nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

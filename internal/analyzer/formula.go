package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"unicode"
)

// evalFormula evaluates an arithmetic expression over numeric fields.
// Supported: numbers, field names, + - * / %, unary minus and parentheses.
func evalFormula(formula string, fields map[string]any) (float64, error) {
	p := &formulaParser{src: []rune(formula), fields: fields}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", string(p.src[p.pos]), p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("formula %q is not a finite number", formula)
	}
	return v, nil
}

type formulaParser struct {
	src    []rune
	pos    int
	fields map[string]any
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *formulaParser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) term() (float64, error) {
	left, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *formulaParser) factor() (float64, error) {
	switch c := p.peek(); {
	case c == 0:
		return 0, fmt.Errorf("unexpected end of formula")
	case c == '-':
		p.pos++
		v, err := p.factor()
		return -v, err
	case c == '+':
		p.pos++
		return p.factor()
	case c == '(':
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(c) || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		return strconv.ParseFloat(string(p.src[start:p.pos]), 64)
	case unicode.IsLetter(c) || c == '_':
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
		name := string(p.src[start:p.pos])
		raw, ok := p.fields[name]
		if !ok || raw == nil {
			return 0, fmt.Errorf("unknown field %q", name)
		}
		v, ok := toFloat(raw)
		if !ok {
			return 0, fmt.Errorf("field %q is not numeric", name)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected %q at position %d", string(c), p.pos)
	}
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case bool:
		return 0, false
	}
	return 0, false
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
)

// TokenCalc is the built-in token of the calculator worker.
const TokenCalc = "calc"

var ErrBadExpression = errors.New("bad arithmetic expression")

// Accepts digits, whitespace, decimal points, operators, and parentheses.
var expressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

// Calc evaluates the arithmetic expression in the latest user message. A leading
// "@mention" is ignored. It never calls out, so it also answers when every remote
// agent is down.
type Calc struct{}

var _ contract.Worker = Calc{}

func (Calc) Run(ctx context.Context, req contract.WorkerRequest) (contract.WorkerResponse, error) {
	if err := ctx.Err(); err != nil {
		return contract.WorkerResponse{}, err
	}

	expr := stripMention(lastUserText(req.Messages))
	value, err := Evaluate(expr)
	if err != nil {
		return contract.WorkerResponse{}, err
	}
	return contract.WorkerResponse{
		Message: fmt.Sprintf("%s = %s", expr, strconv.FormatFloat(value, 'g', -1, 64)),
	}, nil
}

// Evaluate computes + - * / % ^ over decimal numbers with parentheses. ^ is right
// associative; unary minus binds tighter, so -2^2 is 4.
func Evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if err := validateExpression(expr); err != nil {
		return 0, err
	}

	p := &calcParser{input: expr}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.hasNext() {
		return 0, fmt.Errorf("%w: unexpected token at position %d", ErrBadExpression, p.pos)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrBadExpression)
	}
	return value, nil
}

func lastUserText(history []contract.PlainMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "@") {
		return text
	}
	_, rest, found := strings.Cut(text, " ")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}

func validateExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("%w: expression is empty", ErrBadExpression)
	}
	if !expressionPattern.MatchString(expr) {
		return fmt.Errorf("%w: expression contains invalid characters", ErrBadExpression)
	}

	depth := 0
	for _, ch := range expr {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrBadExpression)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrBadExpression)
	}
	return nil
}

type calcParser struct {
	input string
	pos   int
}

func (p *calcParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		switch {
		case p.match('+'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.match('-'):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *calcParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		var op byte
		switch {
		case p.match('*'):
			op = '*'
		case p.match('/'):
			op = '/'
		case p.match('%'):
			op = '%'
		default:
			return left, nil
		}

		right, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrBadExpression)
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("%w: modulo by zero", ErrBadExpression)
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *calcParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	p.skipSpaces()
	if !p.match('^') {
		return base, nil
	}
	exp, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *calcParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch {
	case p.match('+'):
		return p.parseUnary()
	case p.match('-'):
		v, err := p.parseUnary()
		return -v, err
	case p.match('('):
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if !p.match(')') {
			return 0, fmt.Errorf("%w: missing closing parenthesis at position %d", ErrBadExpression, p.pos)
		}
		return v, nil
	default:
		return p.parseNumber()
	}
}

func (p *calcParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.hasNext() && (isDigit(p.peek()) || p.peek() == '.') {
		p.pos++
	}

	raw := p.input[start:p.pos]
	if raw == "" || strings.Trim(raw, ".") == "" {
		return 0, fmt.Errorf("%w: expected number at position %d", ErrBadExpression, start)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number %q", ErrBadExpression, raw)
	}
	return v, nil
}

func (p *calcParser) skipSpaces() {
	for p.hasNext() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\n') {
		p.pos++
	}
}

func (p *calcParser) hasNext() bool { return p.pos < len(p.input) }

func (p *calcParser) peek() byte { return p.input[p.pos] }

func (p *calcParser) match(b byte) bool {
	if p.hasNext() && p.peek() == b {
		p.pos++
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a rule string into its expression tree. An empty or
// blank rule yields a nil Expr, which callers treat as "no rule".
func Parse(rule string) (Expr, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return nil, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	stream := &tokenStream{tokens: tokens}
	expr, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("condition: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return expr, nil
}

// MustParse panics when the rule does not parse. Useful for fixtures.
func MustParse(rule string) Expr {
	expr, err := Parse(rule)
	if err != nil {
		panic(err)
	}
	return expr
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenIn
	tokenEq
	tokenNeq
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	next := func() byte {
		if i >= len(input) {
			return 0
		}
		return input[i]
	}

	consume := func() byte {
		if i >= len(input) {
			return 0
		}
		ch := input[i]
		i++
		return ch
	}

	for i < len(input) {
		ch := next()
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}

		switch ch {
		case '(':
			consume()
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			continue
		case ')':
			consume()
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			continue
		case '[':
			consume()
			tokens = append(tokens, token{kind: tokenLBracket, raw: "["})
			continue
		case ']':
			consume()
			tokens = append(tokens, token{kind: tokenRBracket, raw: "]"})
			continue
		case ',':
			consume()
			tokens = append(tokens, token{kind: tokenComma, raw: ","})
			continue
		case '!':
			consume()
			if next() == '=' {
				consume()
				tokens = append(tokens, token{kind: tokenNeq, raw: "!="})
				continue
			}
			tokens = append(tokens, token{kind: tokenNot, raw: "!"})
			continue
		case '=':
			consume()
			if next() != '=' {
				return nil, errors.New("condition: unexpected '='; use '=='")
			}
			consume()
			tokens = append(tokens, token{kind: tokenEq, raw: "=="})
			continue
		case '&':
			consume()
			if next() != '&' {
				return nil, errors.New("condition: unexpected '&'; use '&&'")
			}
			consume()
			tokens = append(tokens, token{kind: tokenAnd, raw: "&&"})
			continue
		case '|':
			consume()
			if next() != '|' {
				return nil, errors.New("condition: unexpected '|'; use '||'")
			}
			consume()
			tokens = append(tokens, token{kind: tokenOr, raw: "||"})
			continue
		case '"', '\'':
			quote := consume()
			var builder strings.Builder
			closed := false
			for i < len(input) {
				c := consume()
				if c == '\\' && i < len(input) {
					builder.WriteByte(consume())
					continue
				}
				if c == quote {
					closed = true
					break
				}
				builder.WriteByte(c)
			}
			if !closed {
				return nil, errors.New("condition: unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokenString, raw: builder.String()})
			continue
		default:
			start := i
			for i < len(input) {
				c := input[i]
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
					c == '(' || c == ')' || c == '[' || c == ']' || c == ',' ||
					c == '!' || c == '=' || c == '&' || c == '|' {
					break
				}
				i++
			}
			raw := input[start:i]
			if raw == "" {
				continue
			}
			switch strings.ToLower(raw) {
			case "true", "false":
				tokens = append(tokens, token{kind: tokenBool, raw: strings.ToLower(raw)})
			case "null", "nil":
				tokens = append(tokens, token{kind: tokenNull, raw: "null"})
			case "in":
				tokens = append(tokens, token{kind: tokenIn, raw: "in"})
			default:
				if looksLikeNumber(raw) {
					tokens = append(tokens, token{kind: tokenNumber, raw: raw})
				} else {
					tokens = append(tokens, token{kind: tokenIdentifier, raw: raw})
				}
			}
		}
	}

	return tokens, nil
}

func looksLikeNumber(raw string) bool {
	if raw == "" {
		return false
	}
	ch := raw[0]
	return (ch >= '0' && ch <= '9') || ch == '-' || ch == '+'
}

type tokenStream struct {
	tokens []token
	pos    int
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) {
		return false
	}
	if s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) consume(kind tokenKind) (token, bool) {
	if s.pos >= len(s.tokens) {
		return token{}, false
	}
	if s.tokens[s.pos].kind != kind {
		return token{}, false
	}
	out := s.tokens[s.pos]
	s.pos++
	return out, true
}

func parseOr(stream *tokenStream) (Expr, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (Expr, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (Expr, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return parsePrimary(stream)
}

func parsePrimary(stream *tokenStream) (Expr, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("condition: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := stream.consume(tokenIdentifier)
	if !ok {
		if stream.pos >= len(stream.tokens) {
			return nil, errors.New("condition: empty expression")
		}
		return nil, fmt.Errorf("condition: expected identifier, got %q", stream.tokens[stream.pos].raw)
	}

	switch {
	case stream.match(tokenEq):
		lit, err := consumeLiteral(stream)
		if err != nil {
			return nil, err
		}
		return Compare{Field: ident.raw, Op: OpEq, Value: lit}, nil
	case stream.match(tokenNeq):
		lit, err := consumeLiteral(stream)
		if err != nil {
			return nil, err
		}
		return Compare{Field: ident.raw, Op: OpNeq, Value: lit}, nil
	case stream.match(tokenIn):
		return parseMembership(stream, ident.raw)
	}

	return Truthy{Field: ident.raw}, nil
}

func parseMembership(stream *tokenStream, field string) (Expr, error) {
	if !stream.match(tokenLBracket) {
		return nil, fmt.Errorf("condition: expected '[' after %q in", field)
	}
	var literals []Literal
	for {
		lit, err := consumeLiteral(stream)
		if err != nil {
			return nil, err
		}
		literals = append(literals, lit)
		if stream.match(tokenComma) {
			continue
		}
		if stream.match(tokenRBracket) {
			break
		}
		return nil, errors.New("condition: expected ',' or ']' in membership list")
	}
	return Membership{Field: field, Values: literals}, nil
}

func consumeLiteral(stream *tokenStream) (Literal, error) {
	if stream.pos >= len(stream.tokens) {
		return Literal{}, errors.New("condition: missing literal")
	}
	tok := stream.tokens[stream.pos]
	stream.pos++
	switch tok.kind {
	case tokenString:
		return Literal{Kind: LiteralString, Str: tok.raw}, nil
	case tokenNumber:
		num, err := strconv.ParseFloat(tok.raw, 64)
		if err != nil {
			return Literal{}, fmt.Errorf("condition: invalid number literal %q", tok.raw)
		}
		return Literal{Kind: LiteralNumber, Num: num}, nil
	case tokenBool:
		return Literal{Kind: LiteralBool, Bool: tok.raw == "true"}, nil
	case tokenNull:
		return Literal{Kind: LiteralNull}, nil
	case tokenIdentifier:
		// Bare identifiers read as strings to keep authored rules forgiving.
		return Literal{Kind: LiteralString, Str: tok.raw}, nil
	default:
		return Literal{}, fmt.Errorf("condition: expected literal, got %q", tok.raw)
	}
}

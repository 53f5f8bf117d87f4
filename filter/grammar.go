// Grammar: boolean combinations of field predicates and bare protocol
// keywords.
//
//	expr    := or
//	or      := and ("or" and)*
//	and     := unary ("and" unary)*
//	unary   := "not" unary | "(" expr ")" | predicate
//	predicate := keyword | field op value
//	field   := ident ("." ident)*
//	op      := "=" | "!=" | "<" | "<=" | ">" | ">=" | "~"
//	value   := number | 'quoted string'
//
// e.g. `tls and tls.sni ~ '.*\.example\.com$'`, `tcp.port = 80 or tcp.port = 8080`.
package filter

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fieldLayer maps a dotted field (or bare protocol keyword) to the
// layer its predicate belongs to. A predicate that mentions a
// protocol keyword implicitly requires the layers below it; that
// requirement is enforced by sorting a pattern's predicates by layer
// before it is inserted into the trie, not by this table.
var fieldLayer = map[string]Layer{
	"ethernet":  LayerPacket,
	"ipv4":      LayerPacket,
	"ipv6":      LayerPacket,
	"ipv4.src":  LayerPacket,
	"ipv4.dst":  LayerPacket,
	"ipv6.src":  LayerPacket,
	"ipv6.dst":  LayerPacket,
	"tcp":       LayerPacket,
	"tcp.port":  LayerPacket,
	"tcp.flags": LayerPacket,
	"udp":       LayerPacket,
	"udp.port":  LayerPacket,

	"http":      LayerProtocol,
	"tls":       LayerProtocol,
	"dns":       LayerProtocol,
	"quic":      LayerProtocol,

	"http.method": LayerSession,
	"http.status": LayerSession,
	"http.uri":    LayerSession,
	"tls.sni":     LayerSession,
	"dns.query":   LayerSession,
}

// Parse compiles a filter expression into its disjunctive pattern set:
// one []Predicate per disjunct, each sorted by layer.
func Parse(src string) ([][]Predicate, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, errors.Errorf("filter: unexpected trailing token %q", p.toks[p.pos].text)
	}
	patterns := toDNF(e)
	for _, pat := range patterns {
		sortByLayer(pat)
	}
	return patterns, nil
}

func sortByLayer(pat []Predicate) {
	for i := 1; i < len(pat); i++ {
		for j := i; j > 0 && pat[j-1].Layer > pat[j].Layer; j-- {
			pat[j-1], pat[j] = pat[j], pat[j-1]
		}
	}
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'':
			j := i + 1
			for j < len(src) && src[j] != '\'' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return nil, errors.New("filter: unterminated string literal")
			}
			toks = append(toks, token{tokString, src[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("=<>!~", rune(c)):
			j := i + 1
			if j < len(src) && src[j] == '=' {
				j++
			}
			toks = append(toks, token{tokOp, src[i:j]})
			i = j
		default:
			j := i
			for j < len(src) && !strings.ContainsAny(string(src[j]), " \t\n()=<>!~'") {
				j++
			}
			word := src[i:j]
			if word == "" {
				return nil, errors.Errorf("filter: unexpected character %q", string(c))
			}
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokAnd, word})
			case "or":
				toks = append(toks, token{tokOr, word})
			case "not":
				toks = append(toks, token{tokNot, word})
			default:
				if _, err := strconv.ParseFloat(word, 64); err == nil {
					toks = append(toks, token{tokNumber, word})
				} else {
					toks = append(toks, token{tokIdent, word})
				}
			}
			i = j
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []expr{left}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return orExpr{terms: terms}, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []expr{left}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			break
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return andExpr{terms: terms}, nil
}

func (p *parser) parseUnary() (expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, errors.New("filter: unexpected end of expression")
	}
	switch t.kind {
	case tokNot:
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	case tokLParen:
		p.pos++
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, errors.New("filter: expected closing paren")
		}
		p.pos++
		return x, nil
	case tokIdent:
		return p.parsePredicate()
	default:
		return nil, errors.Errorf("filter: unexpected token %q", t.text)
	}
}

func (p *parser) parsePredicate() (expr, error) {
	fieldTok, _ := p.peek()
	p.pos++
	field := fieldTok.text

	opTok, ok := p.peek()
	if !ok || opTok.kind != tokOp {
		layer, known := fieldLayer[field]
		if !known {
			return nil, errors.Errorf("filter: unknown protocol keyword %q", field)
		}
		pred, err := newPredicate(layer, field, OpPresent, "")
		if err != nil {
			return nil, err
		}
		return predExpr{p: pred}, nil
	}
	p.pos++

	valTok, ok := p.peek()
	if !ok || (valTok.kind != tokString && valTok.kind != tokNumber) {
		return nil, errors.Errorf("filter: expected value after operator for field %q", field)
	}
	p.pos++

	op, err := parseOp(opTok.text)
	if err != nil {
		return nil, err
	}
	layer, known := fieldLayer[field]
	if !known {
		return nil, errors.Errorf("filter: unknown field %q", field)
	}
	pred, err := newPredicate(layer, field, op, valTok.text)
	if err != nil {
		return nil, err
	}
	return predExpr{p: pred}, nil
}

func parseOp(s string) (Op, error) {
	switch s {
	case "=":
		return OpEq, nil
	case "!=":
		return OpNeq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "~":
		return OpRegex, nil
	default:
		return 0, errors.Errorf("filter: unknown operator %q", s)
	}
}

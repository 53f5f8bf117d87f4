package filter

// expr is the parsed boolean combination of predicates, before
// disjunctive-normal-form expansion.
type expr interface{ isExpr() }

type orExpr struct{ terms []expr }
type andExpr struct{ terms []expr }
type notExpr struct{ x expr }
type predExpr struct{ p Predicate }

func (orExpr) isExpr()   {}
func (andExpr) isExpr()  {}
func (notExpr) isExpr()  {}
func (predExpr) isExpr() {}

// toDNF expands expr into a disjunction of conjunctions: each returned
// []Predicate is one pattern, the list of all of them is the
// subscription's full disjunctive pattern set.
func toDNF(e expr) [][]Predicate {
	switch n := e.(type) {
	case predExpr:
		return [][]Predicate{{n.p}}
	case notExpr:
		return toDNF(pushNot(n.x))
	case orExpr:
		var out [][]Predicate
		for _, t := range n.terms {
			out = append(out, toDNF(t)...)
		}
		return out
	case andExpr:
		conjuncts := [][]Predicate{nil}
		for _, t := range n.terms {
			termDNF := toDNF(t)
			var next [][]Predicate
			for _, c := range conjuncts {
				for _, d := range termDNF {
					merged := make([]Predicate, 0, len(c)+len(d))
					merged = append(merged, c...)
					merged = append(merged, d...)
					next = append(next, merged)
				}
			}
			conjuncts = next
		}
		return conjuncts
	default:
		return nil
	}
}

// pushNot applies De Morgan's laws and predicate negation so NOT never
// survives past this point; toDNF only ever sees positive predicates.
func pushNot(e expr) expr {
	switch n := e.(type) {
	case predExpr:
		return predExpr{p: n.p.negate()}
	case notExpr:
		return n.x
	case andExpr:
		terms := make([]expr, len(n.terms))
		for i, t := range n.terms {
			terms[i] = pushNot(t)
		}
		return orExpr{terms: terms}
	case orExpr:
		terms := make([]expr, len(n.terms))
		for i, t := range n.terms {
			terms[i] = pushNot(t)
		}
		return andExpr{terms: terms}
	default:
		return e
	}
}

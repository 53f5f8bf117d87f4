package filter

// nodeID indexes into PTree.nodes. The zero value is the root.
type nodeID int32

type node struct {
	pred     Predicate
	children []nodeID

	// terminal is set for subscriptions whose pattern ends exactly at
	// this node: a match here requires no further layers.
	terminal Bitmap

	// descendant is the union of every subscription index reachable
	// through this node, precomputed so a stage can report
	// nonterminal_matches without walking the remaining trie.
	descendant Bitmap
}

// Action is what a terminal match triggers: the owning subscription
// and the callback it names.
type Action struct {
	SubscriptionIndex int
	Callback          string
}

// PTree is the predicate trie every subscription's disjunctive
// patterns are inserted into. Patterns sharing a prefix of predicates
// share trie edges by construction, and insertion folds out predicates
// already implied by an ancestor (a pattern that re-tests "ipv4" under
// an "ipv4" node is deduplicated, not re-inserted).
type PTree struct {
	nodes []node

	// actionsByIndex maps a subscription index to the action its
	// terminal match triggers. A subscription contributes one action
	// regardless of how many disjuncts its filter expanded into, so
	// this lives on the tree rather than per-node.
	actionsByIndex map[int]Action
}

// NewPTree returns an empty trie with just a root node.
func NewPTree() *PTree {
	return &PTree{nodes: []node{{}}, actionsByIndex: map[int]Action{}}
}

const rootID nodeID = 0

// Insert adds one pattern (already sorted by layer) for subIdx,
// recording action for the subscription.
func (t *PTree) Insert(pattern []Predicate, subIdx int, action Action) {
	cur := rootID
	t.nodes[cur].descendant.Set(subIdx)
	onPath := map[string]bool{}
	for _, pred := range pattern {
		k := pred.key()
		if onPath[k] {
			continue
		}
		onPath[k] = true
		cur = t.childFor(cur, pred)
		t.nodes[cur].descendant.Set(subIdx)
	}
	t.nodes[cur].terminal.Set(subIdx)
	t.actionsByIndex[subIdx] = action
}

func (t *PTree) childFor(parent nodeID, pred Predicate) nodeID {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].pred.key() == pred.key() {
			return c
		}
	}
	id := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{pred: pred})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// Root returns the frontier a fresh packet starts evaluation from.
func (t *PTree) Root() NodeIDs {
	var f NodeIDs
	f.push(rootID)
	return f
}

// FilterResult is what each filter stage callable returns: the
// subscriptions that matched fully at this stage (terminal_matches),
// the subscriptions still alive pending a later stage
// (nonterminal_matches), and the trie positions to resume from next
// time (nonterminal_nodes).
type FilterResult struct {
	TerminalMatches    Bitmap
	NonterminalMatches Bitmap
	NonterminalNodes   NodeIDs
}

// eval walks frontier, following edges at layer whose predicate
// matches according to test. Edges that belong to a deeper layer are
// not consumed; they become the nonterminal frontier for the next
// stage.
//
// A node handed in via frontier (other than the root, which carries no
// predicate of its own) was deferred by an earlier stage specifically
// because its own predicate belongs to a deeper layer than that
// stage's — so its predicate has never actually been tested yet. It is
// tested here, against this stage's layer, before its children are
// examined; a node whose layer still doesn't match this stage is kept
// deferred rather than dropped, so a pattern that skips a layer (e.g.
// a packet-layer predicate directly followed by a session-layer one)
// still resolves once the right stage comes around.
func (t *PTree) eval(frontier NodeIDs, layer Layer, test func(Predicate) bool) FilterResult {
	var res FilterResult
	stack := make([]nodeID, 0, frontier.Len())
	for i := 0; i < frontier.Len(); i++ {
		id := frontier.At(i)
		if id == rootID {
			stack = append(stack, id)
			continue
		}
		n := &t.nodes[id]
		if n.pred.Layer != layer {
			res.NonterminalMatches.Union(n.descendant)
			res.NonterminalNodes.push(id)
			continue
		}
		if !test(n.pred) {
			continue
		}
		res.TerminalMatches.Union(n.terminal)
		if len(n.children) > 0 {
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]

		for _, cid := range n.children {
			c := &t.nodes[cid]
			if c.pred.Layer != layer {
				res.NonterminalMatches.Union(c.descendant)
				res.NonterminalNodes.push(cid)
				continue
			}
			if !test(c.pred) {
				continue
			}
			res.TerminalMatches.Union(c.terminal)
			if len(c.children) > 0 {
				stack = append(stack, cid)
			}
		}
	}
	return res
}

// ActionsFor returns the actions for every subscription index set in
// matched.
func (t *PTree) ActionsFor(matched Bitmap) []Action {
	var out []Action
	for _, idx := range matched.Indices() {
		if a, ok := t.actionsByIndex[idx]; ok {
			out = append(out, a)
		}
	}
	return out
}

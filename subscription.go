package traced

import "sort"

// notification is a queued value-change callback. Callbacks are collected
// while the graph lock is held and delivered after the triggering operation
// releases it, so a subscriber may freely read attributes.
type notification struct {
	subs   []func(newVal, oldVal any)
	newVal any
	oldVal any
}

// Subscribe registers a change callback on an attribute. The callback fires
// after any operation that commits a value actually different from the
// previous one, per the attribute's equality function: a recomputation or
// write that yields an equal value is silent. oldVal is the zero value on the
// first commit. The returned function unsubscribes; calling it more than once
// is harmless.
func Subscribe[T any](g *Graph, attr *Attribute[T], fn func(newVal, oldVal T)) func() {
	mustOwn(g, attr)

	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.node(attr.id)
	if n.subs == nil {
		n.subs = make(map[uint64]func(newVal, oldVal any))
	}

	token := g.subCounter.Add(1)
	n.subs[token] = func(newVal, oldVal any) {
		nv, _ := SafeTypeAssertion[T](newVal)
		ov, _ := SafeTypeAssertion[T](oldVal)
		fn(nv, ov)
	}

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(n.subs, token)
	}
}

// queueNotification snapshots the node's subscribers in registration order.
// Caller holds g.mu.
func (g *Graph) queueNotification(n *node, newVal, oldVal any) {
	if len(n.subs) == 0 {
		return
	}

	tokens := make([]uint64, 0, len(n.subs))
	for token := range n.subs {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	subs := make([]func(newVal, oldVal any), 0, len(tokens))
	for _, token := range tokens {
		subs = append(subs, n.subs[token])
	}

	g.pending = append(g.pending, notification{subs: subs, newVal: newVal, oldVal: oldVal})
}

func (g *Graph) takePending() []notification {
	notes := g.pending
	g.pending = nil
	return notes
}

func (g *Graph) deliver(notes []notification) {
	for _, note := range notes {
		for _, fn := range note.subs {
			fn(note.newVal, note.oldVal)
		}
	}
}

package drawing

// edgeKey identifies one textual edge line. A mutual edge drawn a->b and one
// drawn b->a are different keys, matching how the lines would be written.
type edgeKey struct {
	from   int64
	to     int64
	mutual bool
}

func keyOf(e Edge) edgeKey {
	return edgeKey{from: e.From, to: e.To, mutual: e.Style == StyleMutual}
}

type edgeEntry struct {
	edge    Edge
	removed bool
}

// edgeList is an insertion-ordered, deduplicating edge sequence. Removal
// leaves a tombstone so positions of live entries never shift.
type edgeList struct {
	entries []edgeEntry
	index   map[edgeKey]int
}

func newEdgeList() *edgeList {
	return &edgeList{index: make(map[edgeKey]int)}
}

// add appends e unless an identical line is already live.
func (l *edgeList) add(e Edge) bool {
	k := keyOf(e)
	if _, ok := l.index[k]; ok {
		return false
	}
	l.index[k] = len(l.entries)
	l.entries = append(l.entries, edgeEntry{edge: e})
	return true
}

func (l *edgeList) remove(k edgeKey) {
	i, ok := l.index[k]
	if !ok {
		return
	}
	l.entries[i].removed = true
	delete(l.index, k)
}

// collapse replaces every plain or mutual line between a and b with a single
// mutual line drawn a->b.
func (l *edgeList) collapse(a, b int64) {
	l.remove(edgeKey{from: a, to: b})
	l.remove(edgeKey{from: b, to: a})
	l.remove(edgeKey{from: a, to: b, mutual: true})
	l.remove(edgeKey{from: b, to: a, mutual: true})
	l.add(Edge{From: a, To: b, Style: StyleMutual})
}

// removeMentioning drops every live line touching userID.
func (l *edgeList) removeMentioning(userID int64) {
	for _, entry := range l.entries {
		if entry.removed {
			continue
		}
		if entry.edge.From == userID || entry.edge.To == userID {
			l.remove(keyOf(entry.edge))
		}
	}
}

func (l *edgeList) live() []Edge {
	edges := make([]Edge, 0, len(l.index))
	for _, entry := range l.entries {
		if !entry.removed {
			edges = append(edges, entry.edge)
		}
	}
	return edges
}

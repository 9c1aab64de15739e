// Package drawing turns the relationship cache into a Graphviz description:
// a breadth-first walk from a focal user, restricted to guild members, with
// reciprocal edges collapsed into one bidirectional edge.
package drawing

import (
	"fmt"
	"strconv"
	"strings"

	"simp-tracker/backend/internal/constants"
	"simp-tracker/backend/internal/simps"
)

// Style is the visual treatment of an edge line
type Style int

const (
	StylePlain Style = iota
	StyleMutual
	StyleHighlight
	StyleDefault
)

func (s Style) String() string {
	switch s {
	case StyleMutual:
		return "mutual"
	case StyleHighlight:
		return "highlight"
	case StyleDefault:
		return "default"
	default:
		return "plain"
	}
}

// Mode selects how far the walk goes
type Mode int

const (
	// ModeFocal expands only the focal user's own record
	ModeFocal Mode = iota
	// ModeClosure expands every reachable member
	ModeClosure
)

// MembershipTest reports whether a user belongs in the drawing
type MembershipTest func(userID int64) bool

// Labeler returns the display name for a user
type Labeler func(userID int64) string

// Options tunes a Build call
type Options struct {
	Member    MembershipTest // nil admits everyone
	Label     Labeler        // nil labels nodes with their ID
	Highlight int64          // source user whose edges are highlighted; 0 means the focal user
	Mode      Mode
}

// Node is a labelled user in the drawing
type Node struct {
	ID    int64
	Label string
}

// Edge is a directed line between two users
type Edge struct {
	From  int64
	To    int64
	Style Style
}

// Request is the drawing handed to the layout renderer
type Request struct {
	GuildID int64
	FocalID int64
	Nodes   []Node
	Edges   []Edge
}

// Empty reports whether the drawing has no edges
func (r *Request) Empty() bool {
	return len(r.Edges) == 0
}

// Build walks the store from startUserID and returns the drawing. It only
// reads the store; users without a record are drawn as empty.
func Build(store *simps.Store, startUserID, guildID int64, opts Options) *Request {
	member := opts.Member
	if member == nil {
		member = func(int64) bool { return true }
	}

	edges := newEdgeList()
	included := newOrderedSet()
	visited := make(map[int64]bool)
	queue := []*simps.Record{store.View(startUserID, guildID)}

	enqueue := func(userID int64) {
		if opts.Mode == ModeClosure && !visited[userID] {
			queue = append(queue, store.View(userID, guildID))
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		included.add(current.UserID)

		if visited[current.UserID] {
			continue
		}

		simpingFor := current.SimpingForIDs()
		simpedBy := current.SimpedByIDs()

		for _, target := range simpingFor {
			if !member(target) {
				continue
			}
			edges.add(Edge{From: current.UserID, To: target})
			included.add(target)
			enqueue(target)
		}

		incoming := make(map[int64]bool, len(simpedBy))
		for _, source := range simpedBy {
			incoming[source] = true
			if !member(source) {
				continue
			}
			edges.add(Edge{From: source, To: current.UserID})
			included.add(source)
			enqueue(source)
		}

		// Must follow the plain edges above so the mutual line supersedes them.
		for _, other := range simpingFor {
			if incoming[other] && member(other) {
				edges.collapse(current.UserID, other)
			}
		}

		visited[current.UserID] = true
	}

	label := opts.Label
	if label == nil {
		label = func(userID int64) string { return strconv.FormatInt(userID, 10) }
	}

	req := &Request{GuildID: guildID, FocalID: startUserID}
	for _, userID := range included.items {
		if !member(userID) {
			edges.removeMentioning(userID)
			continue
		}
		req.Nodes = append(req.Nodes, Node{ID: userID, Label: label(userID)})
	}
	req.Edges = edges.live()

	highlight := opts.Highlight
	if highlight == 0 {
		highlight = startUserID
	}
	applyStyles(req, highlight)

	return req
}

// applyStyles tags plain edges by ownership. Positions are counted over the
// full line sequence (labels then edges); its first and last lines keep
// their current style.
func applyStyles(req *Request, highlight int64) {
	total := len(req.Nodes) + len(req.Edges)
	for i := range req.Edges {
		pos := len(req.Nodes) + i
		if pos == 0 || pos == total-1 || req.Edges[i].Style != StylePlain {
			continue
		}
		if req.Edges[i].From == highlight {
			req.Edges[i].Style = StyleHighlight
		} else {
			req.Edges[i].Style = StyleDefault
		}
	}
}

// Serialize renders the request as a single-line Graphviz digraph
func Serialize(req *Request) string {
	var b strings.Builder
	b.WriteString("digraph{")
	for _, node := range req.Nodes {
		fmt.Fprintf(&b, `%d[label="%s"];`, node.ID, escapeLabel(node.Label))
	}
	for _, edge := range req.Edges {
		b.WriteString(edgeLine(edge))
	}
	b.WriteString("overlap=false;")
	b.WriteString("}")
	return b.String()
}

func edgeLine(e Edge) string {
	switch e.Style {
	case StyleMutual:
		return fmt.Sprintf("%d->%d[dir=both,color=%s];", e.From, e.To, constants.ColourMutual)
	case StyleHighlight:
		return fmt.Sprintf("%d->%d[color=%s];", e.From, e.To, constants.ColourHighlight)
	case StyleDefault:
		return fmt.Sprintf("%d->%d[color=%s];", e.From, e.To, constants.ColourDefault)
	default:
		return fmt.Sprintf("%d->%d;", e.From, e.To)
	}
}

func escapeLabel(label string) string {
	label = strings.ReplaceAll(label, `\`, `\\`)
	return strings.ReplaceAll(label, `"`, `\"`)
}

type orderedSet struct {
	items []int64
	seen  map[int64]bool
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[int64]bool)}
}

func (s *orderedSet) add(id int64) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.items = append(s.items, id)
}

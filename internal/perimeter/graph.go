package perimeter

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Graph is the ownership forest of a perimeter, stored arena-style: nodes are
// addressed by entity id and children carry id lists, which keeps cycle
// detection and traversal simple and the structure serialization-friendly.
type Graph struct {
	nodes map[int64]*node
	roots []int64
}

type node struct {
	entity   Entity
	childIDs []int64
}

var (
	fifty      = decimal.NewFromInt(50)
	twenty     = decimal.NewFromInt(20)
	oneHundred = decimal.NewFromInt(100)
)

// BuildGraph assembles and validates the ownership forest for one perimeter.
// It fails with ErrInvalidOwnershipGraph on cycles, missing or duplicate
// roots, dangling parent references, or a broken ownership-sum invariant, and
// with ErrAmbiguousControl when thresholds and the explicit control type
// disagree on the consolidation method.
func BuildGraph(entities []Entity) (*Graph, error) {
	g := &Graph{nodes: make(map[int64]*node, len(entities))}
	for _, e := range entities {
		if _, dup := g.nodes[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %d", ErrInvalidOwnershipGraph, e.ID)
		}
		g.nodes[e.ID] = &node{entity: e}
	}

	for id, n := range g.nodes {
		e := n.entity
		if e.ParentEntityID == nil {
			if !e.IsParent {
				return nil, fmt.Errorf("%w: entity %s has no parent and is not marked as root", ErrInvalidOwnershipGraph, e.Code)
			}
			g.roots = append(g.roots, id)
			continue
		}
		parent, ok := g.nodes[*e.ParentEntityID]
		if !ok {
			return nil, fmt.Errorf("%w: entity %s references unknown parent %d", ErrInvalidOwnershipGraph, e.Code, *e.ParentEntityID)
		}
		parent.childIDs = append(parent.childIDs, id)
	}
	if len(g.roots) == 0 {
		return nil, fmt.Errorf("%w: no root entity marked is_parent", ErrInvalidOwnershipGraph)
	}
	sort.Slice(g.roots, func(i, j int) bool { return g.roots[i] < g.roots[j] })
	for _, n := range g.nodes {
		sort.Slice(n.childIDs, func(i, j int) bool { return n.childIDs[i] < n.childIDs[j] })
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	if err := g.checkReachability(); err != nil {
		return nil, err
	}
	for _, n := range g.nodes {
		if err := checkOwnershipInvariant(n.entity); err != nil {
			return nil, err
		}
		if _, err := ResolveMethod(n.entity); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// detectCycles walks parent links from every node; a walk longer than the
// node count means a cycle.
func (g *Graph) detectCycles() error {
	for id, n := range g.nodes {
		steps := 0
		cur := n.entity.ParentEntityID
		for cur != nil {
			if *cur == id {
				return fmt.Errorf("%w: cycle through entity %s", ErrInvalidOwnershipGraph, n.entity.Code)
			}
			steps++
			if steps > len(g.nodes) {
				return fmt.Errorf("%w: cycle in ownership chain", ErrInvalidOwnershipGraph)
			}
			next, ok := g.nodes[*cur]
			if !ok {
				break
			}
			cur = next.entity.ParentEntityID
		}
	}
	return nil
}

// checkReachability ensures every subsidiary is reachable from a root and
// that no non-root is marked is_parent.
func (g *Graph) checkReachability() error {
	seen := make(map[int64]bool, len(g.nodes))
	stack := append([]int64(nil), g.roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.nodes[id].childIDs...)
	}
	for id, n := range g.nodes {
		if !seen[id] {
			return fmt.Errorf("%w: entity %s unreachable from any root", ErrInvalidOwnershipGraph, n.entity.Code)
		}
		if n.entity.IsParent && n.entity.ParentEntityID != nil {
			return fmt.Errorf("%w: entity %s marked is_parent but has a parent", ErrInvalidOwnershipGraph, n.entity.Code)
		}
	}
	return nil
}

func checkOwnershipInvariant(e Entity) error {
	if e.IsParent {
		return nil
	}
	sum := e.DirectOwnershipPct.Add(e.IndirectOwnershipPct)
	if e.TotalOwnershipPct.Sub(sum).Abs().GreaterThanOrEqual(OwnershipEpsilon) {
		return fmt.Errorf("%w: entity %s total ownership %s does not match direct+indirect %s",
			ErrInvalidOwnershipGraph, e.Code, e.TotalOwnershipPct, sum)
	}
	return nil
}

// ResolveMethod determines the consolidation method for an entity. The
// explicit control type and ownership are authoritative; when the ownership
// thresholds point elsewhere the disagreement is surfaced as
// ErrAmbiguousControl rather than silently resolved. An explicitly set method
// is cross-checked the same way.
func ResolveMethod(e Entity) (Method, error) {
	if e.IsParent {
		return MethodFull, nil
	}
	total := e.TotalOwnershipPct

	var derived Method
	switch e.ControlType {
	case ControlExclusive:
		derived = MethodFull
	case ControlJoint:
		derived = MethodProportional
	case ControlSignificantInfluence:
		if total.GreaterThan(fifty) {
			return "", fmt.Errorf("%w: entity %s has significant influence but ownership %s%% implies full consolidation",
				ErrAmbiguousControl, e.Code, total)
		}
		if total.LessThan(twenty) {
			return "", fmt.Errorf("%w: entity %s has significant influence but ownership %s%% is below the equity threshold",
				ErrAmbiguousControl, e.Code, total)
		}
		derived = MethodEquity
	case ControlNone:
		if total.GreaterThan(fifty) {
			return "", fmt.Errorf("%w: entity %s has no control but ownership %s%% implies full consolidation",
				ErrAmbiguousControl, e.Code, total)
		}
		derived = MethodNotConsolidated
	default:
		if total.GreaterThan(fifty) {
			derived = MethodFull
		} else {
			derived = MethodNotConsolidated
		}
	}

	if e.Method != "" && e.Method != derived {
		return "", fmt.Errorf("%w: entity %s explicit method %s disagrees with derived %s",
			ErrAmbiguousControl, e.Code, e.Method, derived)
	}
	return derived, nil
}

// Entity returns the entity for an id.
func (g *Graph) Entity(id int64) (Entity, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Entity{}, false
	}
	return n.entity, true
}

// Roots returns the root entity ids, ascending.
func (g *Graph) Roots() []int64 {
	return append([]int64(nil), g.roots...)
}

// Children returns the direct subsidiaries of an entity, ascending by id.
func (g *Graph) Children(id int64) []int64 {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]int64(nil), n.childIDs...)
}

// Walk visits every entity depth-first from the roots, parents before
// children.
func (g *Graph) Walk(fn func(Entity)) {
	stack := append([]int64(nil), g.roots...)
	// reverse so the lowest root is visited first
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := g.nodes[id]
		fn(n.entity)
		for i := len(n.childIDs) - 1; i >= 0; i-- {
			stack = append(stack, n.childIDs[i])
		}
	}
}

// InScope returns the active entities consolidated by FULL, PROPORTIONAL, or
// EQUITY method, parents first.
func (g *Graph) InScope() []Entity {
	var out []Entity
	g.Walk(func(e Entity) {
		if !e.Active {
			return
		}
		method, err := ResolveMethod(e)
		if err != nil || method == MethodNotConsolidated {
			return
		}
		out = append(out, e)
	})
	return out
}

// MinorityShare returns the non-controlling share (1 - total ownership) of a
// fully consolidated subsidiary, as a fraction in [0,1]. The share is zero for
// roots and for entities not consolidated by the FULL method.
func MinorityShare(e Entity) decimal.Decimal {
	if e.IsParent {
		return decimal.Zero
	}
	method, err := ResolveMethod(e)
	if err != nil || method != MethodFull {
		return decimal.Zero
	}
	share := oneHundred.Sub(e.TotalOwnershipPct).Div(oneHundred)
	if share.IsNegative() {
		return decimal.Zero
	}
	return share
}

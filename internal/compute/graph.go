// Package compute declares derived fields and record checks as static dependency tables and
// evaluates them synchronously whenever a write touches one of their inputs.
package compute

import (
	"fmt"
	"sort"
)

// Rule derives Field on a record of type T from the fields listed in DependsOn. DependsOn may
// name other derived fields; the graph orders evaluation accordingly.
type Rule[T any] struct {
	Field     string
	DependsOn []string
	Compute   func(rec *T)
}

// Graph is an immutable, topologically ordered set of rules for one record type.
type Graph[T any] struct {
	rules      map[string]Rule[T]
	order      []string
	dependents map[string][]string
}

// NewGraph validates the rules and orders them. Duplicate fields, nil compute functions and
// dependency cycles are rejected.
func NewGraph[T any](rules ...Rule[T]) (*Graph[T], error) {
	g := &Graph[T]{
		rules:      make(map[string]Rule[T], len(rules)),
		dependents: make(map[string][]string),
	}
	for _, rule := range rules {
		if rule.Field == "" || rule.Compute == nil {
			return nil, fmt.Errorf("compute rule %q is incomplete", rule.Field)
		}
		if _, dup := g.rules[rule.Field]; dup {
			return nil, fmt.Errorf("compute rule %q declared twice", rule.Field)
		}
		g.rules[rule.Field] = rule
		for _, dep := range rule.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], rule.Field)
		}
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// MustGraph is NewGraph for package-level tables; it panics on an invalid declaration.
func MustGraph[T any](rules ...Rule[T]) *Graph[T] {
	g, err := NewGraph(rules...)
	if err != nil {
		panic(err)
	}
	return g
}

// Fields returns every derived field in evaluation order.
func (g *Graph[T]) Fields() []string {
	return append([]string(nil), g.order...)
}

// Affected returns the derived fields reachable from the changed fields, in evaluation order.
func (g *Graph[T]) Affected(changed ...string) []string {
	marked := make(map[string]bool)
	queue := append([]string(nil), changed...)
	for len(queue) > 0 {
		field := queue[0]
		queue = queue[1:]
		for _, dependent := range g.dependents[field] {
			if !marked[dependent] {
				marked[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}

	affected := make([]string, 0, len(marked))
	for _, field := range g.order {
		if marked[field] {
			affected = append(affected, field)
		}
	}
	return affected
}

// Apply recomputes every field affected by changed on rec and returns the recomputed fields.
func (g *Graph[T]) Apply(rec *T, changed ...string) []string {
	affected := g.Affected(changed...)
	for _, field := range affected {
		g.rules[field].Compute(rec)
	}
	return affected
}

// ApplyAll recomputes every derived field, used for freshly created records.
func (g *Graph[T]) ApplyAll(rec *T) []string {
	for _, field := range g.order {
		g.rules[field].Compute(rec)
	}
	return g.Fields()
}

// Kahn's algorithm; ties are broken by field name so the order is deterministic.
func (g *Graph[T]) sort() ([]string, error) {
	indegree := make(map[string]int, len(g.rules))
	for field, rule := range g.rules {
		if _, ok := indegree[field]; !ok {
			indegree[field] = 0
		}
		for _, dep := range rule.DependsOn {
			if _, derived := g.rules[dep]; derived {
				indegree[field]++
			}
		}
	}

	var ready []string
	for field, degree := range indegree {
		if degree == 0 {
			ready = append(ready, field)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.rules))
	for len(ready) > 0 {
		field := ready[0]
		ready = ready[1:]
		order = append(order, field)

		var next []string
		for _, dependent := range g.dependents[field] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
		sort.Strings(ready)
	}

	if len(order) != len(g.rules) {
		return nil, fmt.Errorf("compute rules contain a dependency cycle")
	}
	return order, nil
}

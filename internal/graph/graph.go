// Package graph orders schema columns so every column is computed after the
// columns its formula reads.
package graph

import (
	"sort"

	"github.com/google/uuid"
)

// Node is one column in the dependency graph. DependsOn holds identifiers;
// identifiers that do not name another node (implicit values such as fx_rate,
// or columns missing from the schema) are ignored.
type Node struct {
	ID           uuid.UUID
	Key          string
	DisplayOrder int
	DependsOn    []string
}

// PartialOrder is the result of Sort. When Complete is false the graph had a
// cycle: Order still lists every node, the acyclic prefix first, and Cyclic
// names the keys that could not be ordered.
type PartialOrder struct {
	Order    []string
	Complete bool
	Cyclic   []string
}

func less(a, b *Node) bool {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	return a.ID.String() < b.ID.String()
}

// Sort runs Kahn's algorithm. Among nodes that are ready at the same time the
// one with the lowest (DisplayOrder, ID) goes first, which makes the order
// deterministic for a given schema.
func Sort(nodes []Node) PartialOrder {
	byKey := make(map[string]*Node, len(nodes))
	for i := range nodes {
		byKey[nodes[i].Key] = &nodes[i]
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		indegree[n.Key] += 0
		seen := map[string]bool{}
		for _, dep := range n.DependsOn {
			if _, ok := byKey[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[n.Key]++
			dependents[dep] = append(dependents[dep], n.Key)
		}
	}

	var ready []*Node
	for i := range nodes {
		if indegree[nodes[i].Key] == 0 {
			ready = append(ready, &nodes[i])
		}
	}

	out := PartialOrder{Order: make([]string, 0, len(nodes))}
	done := make(map[string]bool, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		n := ready[0]
		ready = ready[1:]
		out.Order = append(out.Order, n.Key)
		done[n.Key] = true
		for _, dep := range dependents[n.Key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, byKey[dep])
			}
		}
	}

	if len(out.Order) == len(nodes) {
		out.Complete = true
		return out
	}

	var rest []*Node
	for i := range nodes {
		if !done[nodes[i].Key] {
			rest = append(rest, &nodes[i])
		}
	}
	sort.Slice(rest, func(i, j int) bool { return less(rest[i], rest[j]) })
	for _, n := range rest {
		out.Order = append(out.Order, n.Key)
		out.Cyclic = append(out.Cyclic, n.Key)
	}
	return out
}

// Dependents returns the keys that transitively depend on key, in no
// particular order. key itself is not included unless it sits on a cycle.
func Dependents(nodes []Node, key string) []string {
	reverse := map[string][]string{}
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			reverse[dep] = append(reverse[dep], n.Key)
		}
	}
	seen := map[string]bool{}
	var out []string
	stack := []string{key}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range reverse[cur] {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			stack = append(stack, d)
		}
	}
	return out
}

// Reaches reports whether following DependsOn edges from start ever arrives at target.
func Reaches(nodes []Node, start, target string) bool {
	byKey := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byKey[n.Key] = n
	}
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, byKey[cur].DependsOn...)
	}
	return false
}

// Package scenario turns a stored scenario into an index-addressed graph and
// orders its nodes for execution.
package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/conduit/pkg/mapper"
	"github.com/dukex/conduit/pkg/models"
)

var (
	ErrCycle          = errors.New("scenario graph contains a cycle")
	ErrUnknownNode    = errors.New("edge references an unknown node")
	ErrDuplicateNode  = errors.New("duplicate node id")
	ErrReservedNodeID = errors.New("node id is reserved")
	ErrNotUpstream    = errors.New("mapping references a node that does not run earlier")
)

// Graph stores nodes in declaration order; edges are adjacency lists of
// indexes into that slice.
type Graph struct {
	nodes []*models.ScenarioNode
	index map[string]int
	out   [][]int
	in    [][]int
}

// Build indexes the scenario nodes and edges. It does not check for cycles.
func Build(s *models.Scenario) (*Graph, error) {
	g := &Graph{
		nodes: make([]*models.ScenarioNode, 0, len(s.Nodes)),
		index: make(map[string]int, len(s.Nodes)),
		out:   make([][]int, len(s.Nodes)),
		in:    make([][]int, len(s.Nodes)),
	}

	for _, node := range s.Nodes {
		if node.ID == models.TriggerNodeID {
			return nil, fmt.Errorf("%w: %s", ErrReservedNodeID, node.ID)
		}

		if _, ok := g.index[node.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		g.index[node.ID] = len(g.nodes)
		g.nodes = append(g.nodes, node)
	}

	for _, edge := range s.Edges {
		src, ok := g.index[edge.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, edge.Source)
		}

		dst, ok := g.index[edge.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, edge.Target)
		}

		if slices.Contains(g.out[src], dst) {
			continue
		}

		g.out[src] = append(g.out[src], dst)
		g.in[dst] = append(g.in[dst], src)
	}

	return g, nil
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id string) (*models.ScenarioNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}

	return g.nodes[i], true
}

func (g *Graph) Successors(id string) []string {
	return g.ids(g.out, id)
}

func (g *Graph) Predecessors(id string) []string {
	return g.ids(g.in, id)
}

func (g *Graph) ids(adj [][]int, id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}

	result := make([]string, 0, len(adj[i]))
	for _, j := range adj[i] {
		result = append(result, g.nodes[j].ID)
	}

	return result
}

// TopologicalOrder returns the nodes so that every edge points forward.
// Among nodes that are ready at the same time, declaration order wins, so a
// linear chain and its stored order always agree.
func (g *Graph) TopologicalOrder() ([]*models.ScenarioNode, error) {
	indegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		indegree[i] = len(g.in[i])
	}

	var ready []int

	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]*models.ScenarioNode, 0, len(g.nodes))

	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[current])

		for _, next := range g.out[current] {
			indegree[next]--
			if indegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string

		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, g.nodes[i].ID)
			}
		}

		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}

	return order, nil
}

// Upstream reports whether from can reach to along edges.
func (g *Graph) Upstream(from, to string) bool {
	src, ok := g.index[from]
	if !ok {
		return false
	}

	dst, ok := g.index[to]
	if !ok {
		return false
	}

	seen := make([]bool, len(g.nodes))
	stack := []int{src}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range g.out[current] {
			if next == dst {
				return true
			}

			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}

	return false
}

// Validate builds the graph, rejects cycles and checks that every input
// mapping references the trigger or a node that runs before it.
func Validate(s *models.Scenario) error {
	g, err := Build(s)
	if err != nil {
		return err
	}

	_, err = g.TopologicalOrder()
	if err != nil {
		return err
	}

	for _, node := range g.nodes {
		for target, template := range node.InputMapping {
			for _, ref := range mapper.References(template) {
				if ref.NodeID == models.TriggerNodeID {
					continue
				}

				if !g.Upstream(ref.NodeID, node.ID) {
					return fmt.Errorf("%w: %s.%s uses {{%s}}", ErrNotUpstream, node.ID, target, ref)
				}
			}
		}
	}

	return nil
}

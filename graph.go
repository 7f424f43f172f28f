package pricingflow

import (
	"fmt"
)

// ExecutionGraph is the step chain of a workflow. Each node has at most one
// successor; the output of a node is the input of its successor.
type ExecutionGraph struct {
	EntryPoint string
	Nodes      map[string]*GraphNode
}

// GraphNode represents a node in the execution graph
type GraphNode struct {
	StepID string
	Type   NodeType
	Next   []string
}

// NewExecutionGraph creates an empty graph
func NewExecutionGraph() *ExecutionGraph {
	return &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
	}
}

// AddNode adds a node; the first node added becomes the entry point
func (g *ExecutionGraph) AddNode(stepID string, nodeType NodeType) {
	if _, exists := g.Nodes[stepID]; !exists {
		g.Nodes[stepID] = &GraphNode{
			StepID: stepID,
			Type:   nodeType,
			Next:   []string{},
		}
	}

	if g.EntryPoint == "" {
		g.EntryPoint = stepID
	}
}

// AddEdge adds a directed edge from one step to another
func (g *ExecutionGraph) AddEdge(fromStepID, toStepID string) error {
	fromNode, exists := g.Nodes[fromStepID]
	if !exists {
		return fmt.Errorf("source node %s not found", fromStepID)
	}
	if _, exists := g.Nodes[toStepID]; !exists {
		return fmt.Errorf("target node %s not found", toStepID)
	}

	fromNode.Next = append(fromNode.Next, toStepID)
	return nil
}

// SetEntryPoint sets the entry point of the graph
func (g *ExecutionGraph) SetEntryPoint(stepID string) error {
	if _, exists := g.Nodes[stepID]; !exists {
		return fmt.Errorf("step %s not found in graph", stepID)
	}
	g.EntryPoint = stepID
	return nil
}

// Validate checks that the graph is a single chain reaching every node
func (g *ExecutionGraph) Validate() error {
	_, err := g.ExecutionOrder()
	return err
}

// ExecutionOrder walks the chain from the entry point
func (g *ExecutionGraph) ExecutionOrder() ([]string, error) {
	if g.EntryPoint == "" {
		return nil, fmt.Errorf("execution graph has no entry point")
	}
	if _, exists := g.Nodes[g.EntryPoint]; !exists {
		return nil, fmt.Errorf("entry point %s not found in graph", g.EntryPoint)
	}

	order := make([]string, 0, len(g.Nodes))
	seen := make(map[string]bool, len(g.Nodes))

	for current := g.EntryPoint; current != ""; {
		if seen[current] {
			return nil, fmt.Errorf("execution graph contains cycles")
		}
		seen[current] = true
		order = append(order, current)

		node := g.Nodes[current]
		switch len(node.Next) {
		case 0:
			current = ""
		case 1:
			current = node.Next[0]
		default:
			return nil, fmt.Errorf("step %s has %d successors; only linear workflows are supported", current, len(node.Next))
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("not all nodes are reachable from entry point")
	}

	return order, nil
}

// GetNextSteps returns the successors of a step
func (g *ExecutionGraph) GetNextSteps(stepID string) ([]string, error) {
	node, exists := g.Nodes[stepID]
	if !exists {
		return nil, fmt.Errorf("step %s not found in graph", stepID)
	}
	return node.Next, nil
}

// IsTerminal returns true if the step has no outgoing edges
func (g *ExecutionGraph) IsTerminal(stepID string) bool {
	node, exists := g.Nodes[stepID]
	return exists && len(node.Next) == 0
}

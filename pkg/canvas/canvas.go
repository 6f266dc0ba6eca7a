// Package canvas models the serialized visual graph that mirrors a query's
// formula graph. The engine never interprets node rendering data; it parses
// the payload only far enough to answer "does any node reference this
// entity", and it round-trips everything else untouched.
package canvas

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/docstream/queryengine/pkg/token"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one canvas node: an opaque payload that optionally carries a
// single reference-token attribute.
type Node struct {
	Key     string         `json:"key"`
	Payload map[string]any `json:"payload"`
}

// Graph is the normalized in-memory canvas representation.
type Graph struct {
	Zoom     float64          `json:"zoom"`
	Position Point            `json:"position"`
	Nodes    map[string]*Node `json:"nodes"`
}

// ParseError reports a canvas payload that could not be understood.
// Callers performing usage checks must treat it as "usage unknown" and
// fail closed, never as "no usage".
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("canvas parse failed: %s: %v", e.Reason, e.Err)
	}

	return "canvas parse failed: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewGraph returns an empty canvas graph.
func NewGraph() *Graph {
	return &Graph{Zoom: 1, Nodes: make(map[string]*Node)}
}

// Parse normalizes a raw canvas payload into a Graph. Two historical wire
// shapes are accepted: a root object carrying a "nodes" map, and an older
// flat object whose non-metadata properties are themselves node payloads.
func Parse(raw string) (*Graph, error) {
	if raw == "" {
		return NewGraph(), nil
	}

	var root map[string]any

	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, &ParseError{Reason: "payload is not a JSON object", Err: err}
	}

	graph := NewGraph()

	if zoom, ok := numberAt(root, "zoom"); ok {
		graph.Zoom = zoom
	}

	if pos, ok := root["position"].(map[string]any); ok {
		graph.Position.X, _ = numberAt(pos, "x")
		graph.Position.Y, _ = numberAt(pos, "y")
	}

	nodesValue, hasNodes := root["nodes"]
	if hasNodes {
		nodesMap, ok := nodesValue.(map[string]any)
		if !ok {
			return nil, &ParseError{Reason: `"nodes" is not an object`}
		}

		for key, value := range nodesMap {
			payload, ok := value.(map[string]any)
			if !ok {
				return nil, &ParseError{Reason: fmt.Sprintf("node %q is not an object", key)}
			}

			graph.Nodes[key] = &Node{Key: key, Payload: payload}
		}

		return graph, nil
	}

	// Flat legacy shape: every object-valued property other than the
	// canvas metadata is a node payload.
	for key, value := range root {
		if key == "zoom" || key == "position" {
			continue
		}

		payload, ok := value.(map[string]any)
		if !ok {
			return nil, &ParseError{Reason: fmt.Sprintf("property %q is neither canvas metadata nor a node", key)}
		}

		graph.Nodes[key] = &Node{Key: key, Payload: payload}
	}

	return graph, nil
}

// Serialize renders the graph back to the primary wire shape (root "nodes"
// map). Parse(Serialize(g)) is structurally identical to g.
func Serialize(graph *Graph) (string, error) {
	nodes := make(map[string]any, len(graph.Nodes))
	for key, node := range graph.Nodes {
		nodes[key] = node.Payload
	}

	payload := map[string]any{
		"zoom":     graph.Zoom,
		"position": map[string]any{"x": graph.Position.X, "y": graph.Position.Y},
		"nodes":    nodes,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize canvas: %w", err)
	}

	return string(data), nil
}

// Reference returns the entity reference carried by the node's payload, if
// any. Only the explicit reference attributes are consulted; no substring
// matching happens here.
func (n *Node) Reference() (token.Kind, int64, bool) {
	if id, ok := idAt(n.Payload, token.FieldAttr); ok {
		return token.KindField, id, true
	}

	if id, ok := idAt(n.Payload, token.ConstantAttr); ok {
		return token.KindConstant, id, true
	}

	// Historical payloads used "variableId" for constant references.
	if id, ok := idAt(n.Payload, token.VariableAttr); ok {
		return token.KindConstant, id, true
	}

	if id, ok := idAt(n.Payload, token.OutputAttr); ok {
		return token.KindOutput, id, true
	}

	return "", 0, false
}

// ContainsReference reports whether any node references the given entity.
func (g *Graph) ContainsReference(kind token.Kind, id int64) bool {
	for _, node := range g.Nodes {
		if nodeKind, nodeID, ok := node.Reference(); ok && nodeKind == kind && nodeID == id {
			return true
		}
	}

	return false
}

// ReferencingNodes returns the keys of every node referencing the entity,
// sorted order not guaranteed.
func (g *Graph) ReferencingNodes(kind token.Kind, id int64) []string {
	keys := make([]string, 0)

	for key, node := range g.Nodes {
		if nodeKind, nodeID, ok := node.Reference(); ok && nodeKind == kind && nodeID == id {
			keys = append(keys, key)
		}
	}

	return keys
}

func numberAt(payload map[string]any, key string) (float64, bool) {
	value, ok := payload[key].(float64)

	return value, ok
}

// idAt reads an entity id attribute, accepting both JSON numbers and
// digit strings (both occur in stored payloads).
func idAt(payload map[string]any, key string) (int64, bool) {
	switch value := payload[key].(type) {
	case float64:
		if value != math.Trunc(value) {
			return 0, false
		}

		return int64(value), true
	case string:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}

		return id, true
	default:
		return 0, false
	}
}

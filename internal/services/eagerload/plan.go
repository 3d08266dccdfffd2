package eagerload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/asakaida/polyload/internal/entities"
)

// PlanNode is one segment of a compiled eager-load plan.
// The root node has no name; paths sharing a prefix share nodes.
type PlanNode struct {
	name     string
	children map[string]*PlanNode
}

// NewPlan returns an empty root node
func NewPlan() *PlanNode {
	return &PlanNode{children: make(map[string]*PlanNode)}
}

// Compile builds a plan tree from dotted relationship paths
// Example: ["likeable.owner", "likeable.category"] → likeable{owner, category}
// Any malformed path fails the whole compilation.
func Compile(paths ...string) (*PlanNode, error) {
	segmented := make([][]string, 0, len(paths))
	for _, p := range paths {
		segments, err := splitPath(p)
		if err != nil {
			return nil, err
		}
		segmented = append(segmented, segments)
	}

	root := NewPlan()
	for _, segments := range segmented {
		root.insert(segments)
	}
	return root, nil
}

// PlanFor compiles the schema's default With list together with the requested paths.
// Defaults are only taken from the root schema.
func PlanFor(schema *entities.EntitySchema, paths ...string) (*PlanNode, error) {
	all := make([]string, 0, len(schema.With)+len(paths))
	all = append(all, schema.With...)
	all = append(all, paths...)
	plan, err := Compile(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan for %s: %w", schema.Name, err)
	}
	return plan, nil
}

// Add inserts one dotted path below n
func (n *PlanNode) Add(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	n.insert(segments)
	return nil
}

// Merge copies every path of other below n
func (n *PlanNode) Merge(other *PlanNode) {
	if other == nil {
		return
	}
	for name, oc := range other.children {
		child, ok := n.children[name]
		if !ok {
			child = &PlanNode{name: name, children: make(map[string]*PlanNode)}
			n.children[name] = child
		}
		child.Merge(oc)
	}
}

// Name returns the relationship name of the node (empty for the root)
func (n *PlanNode) Name() string {
	return n.name
}

// Child returns the child node for name
func (n *PlanNode) Child(name string) (*PlanNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Children returns the child nodes sorted by name
func (n *PlanNode) Children() []*PlanNode {
	out := make([]*PlanNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// IsLeaf reports whether the node has no children
func (n *PlanNode) IsLeaf() bool {
	return len(n.children) == 0
}

// Paths returns every root-to-leaf path, sorted
func (n *PlanNode) Paths() []string {
	var out []string
	var walk func(node *PlanNode, prefix string)
	walk = func(node *PlanNode, prefix string) {
		for _, c := range node.Children() {
			p := c.name
			if prefix != "" {
				p = prefix + "." + c.name
			}
			if c.IsLeaf() {
				out = append(out, p)
				continue
			}
			walk(c, p)
		}
	}
	walk(n, "")
	return out
}

// String renders the tree with two-space indentation per level
func (n *PlanNode) String() string {
	var sb strings.Builder
	var walk func(node *PlanNode, depth int)
	walk = func(node *PlanNode, depth int) {
		for _, c := range node.Children() {
			sb.WriteString(strings.Repeat("  ", depth))
			sb.WriteString(c.name)
			sb.WriteString("\n")
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return sb.String()
}

func (n *PlanNode) insert(segments []string) {
	node := n
	for _, seg := range segments {
		child, ok := node.children[seg]
		if !ok {
			child = &PlanNode{name: seg, children: make(map[string]*PlanNode)}
			node.children[seg] = child
		}
		node = child
	}
}

func splitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &PathError{Path: path, Reason: "empty path"}
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, &PathError{Path: path, Reason: fmt.Sprintf("empty segment at position %d", i+1)}
		}
		segments[i] = seg
	}
	return segments, nil
}

// CheckPlan verifies that every segment whose owner schema is known statically
// is declared. Checking stops below a morph_to node since its target varies per row.
func CheckPlan(root *entities.EntitySchema, plan *PlanNode, schemas SchemaLookup) error {
	var check func(schema *entities.EntitySchema, node *PlanNode, prefix string) error
	check = func(schema *entities.EntitySchema, node *PlanNode, prefix string) error {
		for _, c := range node.Children() {
			path := c.name
			if prefix != "" {
				path = prefix + "." + c.name
			}
			rel, ok := schema.GetRelationship(c.name)
			if !ok {
				return fmt.Errorf("%w: %s.%s (path %q)", ErrRelationshipNotDeclared, schema.Name, c.name, path)
			}
			if rel.Kind == entities.KindMorphTo || c.IsLeaf() {
				continue
			}
			target, ok := schemas.Lookup(rel.Target)
			if !ok {
				continue
			}
			if err := check(target, c, path); err != nil {
				return err
			}
		}
		return nil
	}
	return check(root, plan, "")
}

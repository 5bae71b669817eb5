package schema

import (
	"fmt"
	"strings"
)

// PropertyType is the declared type of a node property.
type PropertyType string

const (
	PropertyTypeString PropertyType = "STRING"
	PropertyTypeDate   PropertyType = "DATE"
)

// Property declares a single typed property on a node type.
type Property struct {
	Name string
	Type PropertyType
}

// NodeTypeSpec declares a node label, its human description, and the ordered
// set of properties extraction may populate. Specs are immutable after
// registry construction.
type NodeTypeSpec struct {
	Label       string
	Description string
	Properties  []Property
}

// Registry holds the node type specs and the closed relationship vocabulary
// that constrain extraction. Build one with NewRegistry, which validates the
// configuration up front.
type Registry struct {
	nodeTypes     []NodeTypeSpec
	relationships []string

	labelIndex map[string]NodeTypeSpec
	relIndex   map[string]struct{}
}

// NewRegistry validates the provided node types and relationship vocabulary
// and returns an immutable Registry. Configuration errors are returned here,
// never at extraction time: every node type needs a non-empty label, at
// least one property, and a mandatory "name" property; the relationship
// vocabulary must be non-empty and free of duplicates.
func NewRegistry(nodeTypes []NodeTypeSpec, relationships []string) (*Registry, error) {
	if len(nodeTypes) == 0 {
		return nil, fmt.Errorf("schema: no node types configured")
	}
	if len(relationships) == 0 {
		return nil, fmt.Errorf("schema: no relationship types configured")
	}

	labelIndex := make(map[string]NodeTypeSpec, len(nodeTypes))
	for _, nt := range nodeTypes {
		if strings.TrimSpace(nt.Label) == "" {
			return nil, fmt.Errorf("schema: node type with empty label")
		}
		if _, dup := labelIndex[nt.Label]; dup {
			return nil, fmt.Errorf("schema: duplicate node type label %q", nt.Label)
		}
		if len(nt.Properties) == 0 {
			return nil, fmt.Errorf("schema: node type %q has no properties", nt.Label)
		}
		hasName := false
		seen := make(map[string]struct{}, len(nt.Properties))
		for _, p := range nt.Properties {
			if strings.TrimSpace(p.Name) == "" {
				return nil, fmt.Errorf("schema: node type %q has a property with an empty name", nt.Label)
			}
			if _, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("schema: node type %q declares property %q twice", nt.Label, p.Name)
			}
			seen[p.Name] = struct{}{}
			switch p.Type {
			case PropertyTypeString, PropertyTypeDate:
			default:
				return nil, fmt.Errorf("schema: node type %q property %q has unknown type %q", nt.Label, p.Name, p.Type)
			}
			if p.Name == "name" {
				hasName = true
			}
		}
		if !hasName {
			return nil, fmt.Errorf("schema: node type %q is missing the mandatory name property", nt.Label)
		}
		labelIndex[nt.Label] = nt
	}

	relIndex := make(map[string]struct{}, len(relationships))
	for _, r := range relationships {
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("schema: empty relationship type")
		}
		if _, dup := relIndex[r]; dup {
			return nil, fmt.Errorf("schema: duplicate relationship type %q", r)
		}
		relIndex[r] = struct{}{}
	}

	return &Registry{
		nodeTypes:     append([]NodeTypeSpec(nil), nodeTypes...),
		relationships: append([]string(nil), relationships...),
		labelIndex:    labelIndex,
		relIndex:      relIndex,
	}, nil
}

// NodeType returns the spec for label, if registered.
func (r *Registry) NodeType(label string) (NodeTypeSpec, bool) {
	nt, ok := r.labelIndex[label]
	return nt, ok
}

// HasRelationship reports whether relType is part of the vocabulary.
func (r *Registry) HasRelationship(relType string) bool {
	_, ok := r.relIndex[relType]
	return ok
}

// NodeTypes returns the registered node type specs in declaration order.
func (r *Registry) NodeTypes() []NodeTypeSpec {
	return append([]NodeTypeSpec(nil), r.nodeTypes...)
}

// RelationshipTypes returns the relationship vocabulary in declaration order.
func (r *Registry) RelationshipTypes() []string {
	return append([]string(nil), r.relationships...)
}

// Render serializes the registry into the textual schema block injected into
// extraction prompts. The output is deterministic: an unchanged registry
// renders byte-identical text on every call, which keeps prompts cacheable
// and extraction runs reproducible.
func (r *Registry) Render() string {
	var b strings.Builder

	b.WriteString("Node Types:\n")
	for _, nt := range r.nodeTypes {
		props := make([]string, 0, len(nt.Properties))
		for _, p := range nt.Properties {
			props = append(props, fmt.Sprintf("%s (%s)", p.Name, strings.ToLower(string(p.Type))))
		}
		fmt.Fprintf(&b, "- %s: %s\n  Properties: %s\n", nt.Label, nt.Description, strings.Join(props, ", "))
	}

	b.WriteString("\nRelationship Types Available:\n")
	b.WriteString(strings.Join(r.relationships, ", "))

	return b.String()
}

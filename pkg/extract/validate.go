package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/kaptinlin/jsonrepair"

	"github.com/maintkg/maintkg/pkg/schema"
)

// Wire shape of an extraction response. local IDs are only unique within a
// single response, never globally.
type wireNode struct {
	ID         string         `json:"id" jsonschema_description:"String ID of the node, unique within this response"`
	Label      string         `json:"label" jsonschema_description:"One of the provided node type labels"`
	Properties map[string]any `json:"properties" jsonschema_description:"Node properties; name is mandatory"`
}

type wireRelationship struct {
	Type        string         `json:"type" jsonschema_description:"One of the provided relationship types"`
	StartNodeID string         `json:"start_node_id" jsonschema_description:"ID of the start node, as listed in nodes"`
	EndNodeID   string         `json:"end_node_id" jsonschema_description:"ID of the end node, as listed in nodes"`
	Properties  map[string]any `json:"properties" jsonschema_description:"Relationship properties"`
}

type wireResponse struct {
	Nodes         []wireNode         `json:"nodes" jsonschema_description:"Nodes identified in the text"`
	Relationships []wireRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text"`
}

// ValidationKind classifies fatal validation failures.
type ValidationKind string

const (
	// KindMalformedJSON: the response is not JSON, even after a repair pass.
	KindMalformedJSON ValidationKind = "malformed_json"
	// KindSchemaViolation: top-level shape is wrong (nodes/relationships
	// missing or not arrays).
	KindSchemaViolation ValidationKind = "schema_violation"
)

// ValidationError is the fatal outcome of Validate. Per-element problems are
// never fatal; they become warnings on the returned Extraction instead.
type ValidationError struct {
	Kind   ValidationKind
	Offset int64 // byte offset of the JSON syntax error, when available
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("extract: %s at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("extract: %s: %s", e.Kind, e.Detail)
}

// Node is a validated node scoped to one extraction response. Properties
// hold coerced values; a nil value means the model reported the property
// as unknown.
type Node struct {
	LocalID    string
	Label      string
	Properties map[string]*string
}

// Name returns the mandatory name property.
func (n Node) Name() string {
	if v := n.Properties["name"]; v != nil {
		return *v
	}
	return ""
}

// Relationship is a validated relationship referencing local node IDs from
// the same response.
type Relationship struct {
	Type         string
	StartLocalID string
	EndLocalID   string
	Properties   map[string]*string
}

// Extraction is the surviving, warning-annotated result of validating one
// raw response.
type Extraction struct {
	Nodes         []Node
	Relationships []Relationship
	Warnings      []string
}

// Validate parses and validates a raw extraction response against the
// schema registry. Extraction is inherently lossy: unknown labels, missing
// names, unknown relationship types, and dangling references drop the
// offending element with a warning rather than failing the chunk. The only
// fatal outcomes are unparseable JSON (MalformedJSON) and a wrong top-level
// shape (SchemaViolation).
func Validate(raw string, reg *schema.Registry) (*Extraction, error) {
	payload, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, &ValidationError{Kind: KindSchemaViolation, Detail: "top-level value is not an object"}
	}
	nodesRaw, ok := top["nodes"]
	if !ok {
		return nil, &ValidationError{Kind: KindSchemaViolation, Detail: `missing top-level "nodes" array`}
	}
	relsRaw, ok := top["relationships"]
	if !ok {
		return nil, &ValidationError{Kind: KindSchemaViolation, Detail: `missing top-level "relationships" array`}
	}

	var nodes []wireNode
	if err := json.Unmarshal(nodesRaw, &nodes); err != nil {
		return nil, &ValidationError{Kind: KindSchemaViolation, Detail: `"nodes" is not an array of node objects`}
	}
	var rels []wireRelationship
	if err := json.Unmarshal(relsRaw, &rels); err != nil {
		return nil, &ValidationError{Kind: KindSchemaViolation, Detail: `"relationships" is not an array of relationship objects`}
	}

	out := &Extraction{}
	seen := make(map[string]struct{}, len(nodes))

	for i, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			out.warn("node %d has no id, dropped", i)
			continue
		}
		if _, dup := seen[n.ID]; dup {
			out.warn("node id %q appears more than once, later occurrence dropped", n.ID)
			continue
		}
		spec, known := reg.NodeType(n.Label)
		if !known {
			out.warn("node %q has unknown label %q, dropped", n.ID, n.Label)
			continue
		}

		props, warns := coerceProperties(n.ID, n.Properties, spec)
		out.Warnings = append(out.Warnings, warns...)

		name := props["name"]
		if name == nil || strings.TrimSpace(*name) == "" {
			out.warn("node %q (%s) is missing the mandatory name property, dropped", n.ID, n.Label)
			continue
		}

		seen[n.ID] = struct{}{}
		out.Nodes = append(out.Nodes, Node{
			LocalID:    n.ID,
			Label:      n.Label,
			Properties: props,
		})
	}

	for i, r := range rels {
		if !reg.HasRelationship(r.Type) {
			out.warn("relationship %d has unknown type %q, dropped", i, r.Type)
			continue
		}
		if _, ok := seen[r.StartNodeID]; !ok {
			out.warn("relationship %q references unknown start node %q, dropped", r.Type, r.StartNodeID)
			continue
		}
		if _, ok := seen[r.EndNodeID]; !ok {
			out.warn("relationship %q references unknown end node %q, dropped", r.Type, r.EndNodeID)
			continue
		}

		props := make(map[string]*string, len(r.Properties))
		for k, v := range r.Properties {
			props[k] = stringify(v)
		}
		out.Relationships = append(out.Relationships, Relationship{
			Type:         r.Type,
			StartLocalID: r.StartNodeID,
			EndLocalID:   r.EndNodeID,
			Properties:   props,
		})
	}

	return out, nil
}

func (e *Extraction) warn(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// parseResponse parses raw as JSON, attempting a repair pass on malformed
// input before giving up.
func parseResponse(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ValidationError{Kind: KindMalformedJSON, Detail: "empty response"}
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	var offset int64
	var probe any
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			offset = syntaxErr.Offset
		}
	}

	// A repair pass will happily turn arbitrary prose into a quoted JSON
	// string, so only accept repairs that produce an object.
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil || !json.Valid([]byte(repaired)) || !strings.HasPrefix(strings.TrimSpace(repaired), "{") {
		return nil, &ValidationError{
			Kind:   KindMalformedJSON,
			Offset: offset,
			Detail: truncate(trimmed, 200),
		}
	}
	return json.RawMessage(repaired), nil
}

// coerceProperties validates and coerces node properties against the node
// type spec. Declared DATE properties are normalized to ISO dates where
// possible; uncoercible values stay strings with a warning. Undeclared
// properties are kept as strings.
func coerceProperties(nodeID string, in map[string]any, spec schema.NodeTypeSpec) (map[string]*string, []string) {
	var warnings []string
	out := make(map[string]*string, len(in))

	declared := make(map[string]schema.PropertyType, len(spec.Properties))
	for _, p := range spec.Properties {
		declared[p.Name] = p.Type
	}

	for k, v := range in {
		sv := stringify(v)
		if sv == nil {
			out[k] = nil
			continue
		}

		if declared[k] == schema.PropertyTypeDate {
			if t, err := dateparse.ParseAny(*sv); err == nil {
				iso := t.Format(time.DateOnly)
				out[k] = &iso
				continue
			}
			warnings = append(warnings,
				fmt.Sprintf("node %q property %q: cannot coerce %q to a date, kept as string", nodeID, k, *sv))
		}
		out[k] = sv
	}

	return out, warnings
}

// stringify converts a JSON property value to *string. Null maps to nil;
// scalars use their natural text form; arrays/objects are re-marshaled.
func stringify(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		return &s
	case bool:
		s := fmt.Sprintf("%t", val)
		return &s
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s := fmt.Sprintf("%v", val)
			return &s
		}
		s := string(b)
		return &s
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

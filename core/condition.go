package core

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConditionNode is one node of an unlock-condition tree: either a compound
// node ("and"/"or"/"not") or a leaf predicate identified by its type tag.
// Conditions are externally authored key-value documents; the engine
// tolerates unknown tags at evaluation time rather than at load time.
//
// Type tags are case-sensitive exact matches. A node whose "type" key is
// absent, non-string, or padded with whitespace simply never matches a
// registered tag.
type ConditionNode struct {
	Type   string
	Fields map[string]any
}

// Compound node tags and their structural fields.
const (
	TagAnd = "and"
	TagOr  = "or"
	TagNot = "not"

	FieldConditions = "conditions"
	FieldCondition  = "condition"
)

// MissingFieldError reports a leaf predicate whose required payload field
// is absent or malformed. Fatal at the point of evaluation.
type MissingFieldError struct {
	Tag   string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("condition %q: missing required field %q", e.Tag, e.Field)
}

// MissingStructuralFieldError reports a compound node lacking its own
// child field. Always fatal, never downgraded to false.
type MissingStructuralFieldError struct {
	Tag   string
	Field string
}

func (e *MissingStructuralFieldError) Error() string {
	return fmt.Sprintf("compound condition %q: missing structural field %q", e.Tag, e.Field)
}

// IsZero reports whether the node is an empty/falsy condition. Titles with
// a zero unlock condition can never be auto-unlocked.
func (n ConditionNode) IsZero() bool {
	return n.Type == "" && len(n.Fields) == 0
}

// IsCompound reports whether the node is an and/or/not combinator.
func (n ConditionNode) IsCompound() bool {
	return n.Type == TagAnd || n.Type == TagOr || n.Type == TagNot
}

// And builds a conjunction node. An empty child list is vacuously true.
func And(children ...ConditionNode) ConditionNode {
	return ConditionNode{Type: TagAnd, Fields: map[string]any{FieldConditions: children}}
}

// Or builds a disjunction node. An empty child list is false.
func Or(children ...ConditionNode) ConditionNode {
	return ConditionNode{Type: TagOr, Fields: map[string]any{FieldConditions: children}}
}

// Not builds a negation node.
func Not(child ConditionNode) ConditionNode {
	return ConditionNode{Type: TagNot, Fields: map[string]any{FieldCondition: child}}
}

// Leaf builds a leaf predicate node from a tag and its payload.
func Leaf(tag string, fields map[string]any) ConditionNode {
	if fields == nil {
		fields = map[string]any{}
	}
	return ConditionNode{Type: tag, Fields: fields}
}

// ConditionFromMap converts a raw key-value document into a node. The
// "type" key becomes the tag only when it is a string; everything else is
// kept as payload.
func ConditionFromMap(doc map[string]any) ConditionNode {
	if len(doc) == 0 {
		return ConditionNode{}
	}
	n := ConditionNode{Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		if k == "type" {
			if s, ok := v.(string); ok {
				n.Type = s
				continue
			}
		}
		n.Fields[k] = v
	}
	return n
}

// String returns the named payload field. Absent or non-string values are
// a MissingFieldError.
func (n ConditionNode) String(key string) (string, error) {
	v, ok := n.Fields[key]
	if !ok {
		return "", &MissingFieldError{Tag: n.Type, Field: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MissingFieldError{Tag: n.Type, Field: key}
	}
	return s, nil
}

// Float returns the named payload field as a float64, accepting the
// numeric types JSON and YAML decoding produce.
func (n ConditionNode) Float(key string) (float64, error) {
	v, ok := n.Fields[key]
	if !ok {
		return 0, &MissingFieldError{Tag: n.Type, Field: key}
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, &MissingFieldError{Tag: n.Type, Field: key}
		}
		return f, nil
	}
	return 0, &MissingFieldError{Tag: n.Type, Field: key}
}

// Int returns the named payload field as an int.
func (n ConditionNode) Int(key string) (int, error) {
	f, err := n.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Children returns the child list of an and/or node. A missing
// "conditions" field is a MissingStructuralFieldError.
func (n ConditionNode) Children() ([]ConditionNode, error) {
	v, ok := n.Fields[FieldConditions]
	if !ok {
		return nil, &MissingStructuralFieldError{Tag: n.Type, Field: FieldConditions}
	}
	switch list := v.(type) {
	case []ConditionNode:
		return list, nil
	case []any:
		out := make([]ConditionNode, 0, len(list))
		for _, item := range list {
			out = append(out, nodeFromAny(item))
		}
		return out, nil
	}
	return nil, &MissingStructuralFieldError{Tag: n.Type, Field: FieldConditions}
}

// Child returns the single child of a not node. A missing "condition"
// field is a MissingStructuralFieldError.
func (n ConditionNode) Child() (ConditionNode, error) {
	v, ok := n.Fields[FieldCondition]
	if !ok {
		return ConditionNode{}, &MissingStructuralFieldError{Tag: n.Type, Field: FieldCondition}
	}
	return nodeFromAny(v), nil
}

// nodeFromAny coerces a decoded child value into a node. Anything that is
// not a node or a map yields the zero node, which evaluates to false.
func nodeFromAny(v any) ConditionNode {
	switch x := v.(type) {
	case ConditionNode:
		return x
	case map[string]any:
		return ConditionFromMap(x)
	}
	return ConditionNode{}
}

// toMap reassembles the document form for serialization.
func (n ConditionNode) toMap() map[string]any {
	if n.IsZero() {
		return nil
	}
	doc := make(map[string]any, len(n.Fields)+1)
	for k, v := range n.Fields {
		switch x := v.(type) {
		case []ConditionNode:
			list := make([]any, 0, len(x))
			for _, c := range x {
				list = append(list, c.toMap())
			}
			doc[k] = list
		case ConditionNode:
			doc[k] = x.toMap()
		default:
			doc[k] = v
		}
	}
	if n.Type != "" {
		doc["type"] = n.Type
	}
	return doc
}

// MarshalJSON serializes the node back to its document form.
func (n ConditionNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toMap())
}

// UnmarshalJSON decodes an authored condition document.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*n = ConditionFromMap(doc)
	return nil
}

// MarshalYAML serializes the node back to its document form.
func (n ConditionNode) MarshalYAML() (any, error) {
	return n.toMap(), nil
}

// UnmarshalYAML decodes an authored condition document.
func (n *ConditionNode) UnmarshalYAML(value *yaml.Node) error {
	var doc map[string]any
	if err := value.Decode(&doc); err != nil {
		return err
	}
	*n = ConditionFromMap(doc)
	return nil
}

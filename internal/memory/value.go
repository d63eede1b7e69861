package memory

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
	ValueList
	ValueMap
)

// Value is the small tagged union used for the open key-value bags on
// memory records (item context, concept properties, learned patterns).
// It replaces an untyped blob so the bags stay statically checkable
// while still round-tripping arbitrary JSON shapes.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// String wraps a string into a Value.
func String(s string) Value { return Value{Kind: ValueString, Str: s} }

// Number wraps a float into a Value.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Bool wraps a bool into a Value.
func Bool(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// ListOf wraps a list of Values.
func ListOf(vs ...Value) Value { return Value{Kind: ValueList, List: vs} }

// MapOf wraps a nested bag.
func MapOf(m map[string]Value) Value { return Value{Kind: ValueMap, Map: m} }

// StringList wraps a slice of strings into a list Value.
func StringList(ss []string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return Value{Kind: ValueList, List: vs}
}

// MarshalJSON encodes the Value as its underlying JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueString:
		return json.Marshal(v.Str)
	case ValueNumber:
		return json.Marshal(v.Num)
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ValueMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.Kind)
}

// UnmarshalJSON decodes an arbitrary JSON value into the tagged union.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case string:
		return String(t)
	case float64:
		return Number(t)
	case bool:
		return Bool(t)
	case []interface{}:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = fromInterface(e)
		}
		return Value{Kind: ValueList, List: list}
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = fromInterface(e)
		}
		return Value{Kind: ValueMap, Map: m}
	}
	// JSON null and anything unexpected collapse to an empty string.
	return String("")
}

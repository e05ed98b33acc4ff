package predicate

import (
	"fmt"

	"github.com/roach88/tripwire/internal/value"
)

// Parse decodes a predicate from its JSON form and validates it.
// Empty input or JSON null yields a nil predicate.
func Parse(data []byte) (*Predicate, error) {
	v, err := value.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return FromValue(v)
}

// FromValue decodes a predicate from a structured value, as produced by a
// JSON, YAML or CUE document. Null yields a nil predicate.
func FromValue(v value.Value) (*Predicate, error) {
	if value.IsNull(v) {
		return nil, nil
	}
	p, err := decodePredicate(v)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodePredicate(v value.Value) (*Predicate, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrInvalid, v)
	}

	if raw, ok := obj["and"]; ok {
		children, err := decodeChildren("and", raw)
		if err != nil {
			return nil, err
		}
		return And(children...), nil
	}
	if raw, ok := obj["or"]; ok {
		children, err := decodeChildren("or", raw)
		if err != nil {
			return nil, err
		}
		return Or(children...), nil
	}
	if raw, ok := obj["not"]; ok {
		child, err := decodePredicate(raw)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not(child), nil
	}

	p := &Predicate{Kind: KindField}
	if raw, ok := obj["key"]; ok {
		key, ok := raw.(value.String)
		if !ok {
			return nil, fmt.Errorf("%w: key must be a string", ErrInvalid)
		}
		p.Key = string(key)
	}
	if raw, ok := obj["scope"]; ok {
		scope, err := decodeScope(raw)
		if err != nil {
			return nil, err
		}
		p.Scope = scope
	}
	raw, ok := obj["value"]
	if !ok {
		return nil, fmt.Errorf("%w: expected one of and, or, not, value", ErrInvalid)
	}
	vm, err := decodeValueMatcher(raw)
	if err != nil {
		return nil, err
	}
	p.Value = vm
	return p, nil
}

func decodeChildren(op string, raw value.Value) ([]*Predicate, error) {
	arr, ok := raw.(value.Array)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array", ErrInvalid, op)
	}
	children := make([]*Predicate, 0, len(arr))
	for i, elem := range arr {
		c, err := decodePredicate(elem)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", op, i, err)
		}
		children = append(children, c)
	}
	return children, nil
}

// decodeScope accepts either a single string or an array of strings.
func decodeScope(raw value.Value) ([]string, error) {
	switch s := raw.(type) {
	case value.String:
		return []string{string(s)}, nil
	case value.Array:
		out := make([]string, 0, len(s))
		for _, elem := range s {
			str, ok := elem.(value.String)
			if !ok {
				return nil, fmt.Errorf("%w: scope entries must be strings", ErrInvalid)
			}
			out = append(out, string(str))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: scope must be a string or array of strings", ErrInvalid)
	}
}

func decodeValueMatcher(raw value.Value) (*ValueMatcher, error) {
	obj, ok := raw.(value.Object)
	if !ok {
		return nil, fmt.Errorf("%w: value matcher must be an object", ErrInvalid)
	}

	m := &ValueMatcher{}
	if v, ok := obj["equals"]; ok {
		m.Equals = v
	}
	if v, ok := obj["ignore_case"]; ok {
		b, ok := v.(value.Bool)
		if !ok {
			return nil, fmt.Errorf("%w: ignore_case must be a boolean", ErrInvalid)
		}
		m.IgnoreCase = bool(b)
	}
	if v, ok := obj["at_least"]; ok {
		n, err := decodeNumber("at_least", v)
		if err != nil {
			return nil, err
		}
		m.AtLeast = &n
	}
	if v, ok := obj["at_most"]; ok {
		n, err := decodeNumber("at_most", v)
		if err != nil {
			return nil, err
		}
		m.AtMost = &n
	}
	if v, ok := obj["is_present"]; ok {
		b, ok := v.(value.Bool)
		if !ok {
			return nil, fmt.Errorf("%w: is_present must be a boolean", ErrInvalid)
		}
		present := bool(b)
		m.IsPresent = &present
	}
	if v, ok := obj["array_contains"]; ok {
		p, err := decodePredicate(v)
		if err != nil {
			return nil, fmt.Errorf("array_contains: %w", err)
		}
		m.ArrayContains = p
	}
	if v, ok := obj["index"]; ok {
		n, err := decodeNumber("index", v)
		if err != nil {
			return nil, err
		}
		if n != float64(int(n)) {
			return nil, fmt.Errorf("%w: index must be an integer", ErrInvalid)
		}
		i := int(n)
		m.Index = &i
	}
	if v, ok := obj["array_length"]; ok {
		inner, err := decodeValueMatcher(v)
		if err != nil {
			return nil, fmt.Errorf("array_length: %w", err)
		}
		m.ArrayLength = inner
	}
	return m, nil
}

func decodeNumber(field string, v value.Value) (float64, error) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalid, field)
	}
	return float64(n), nil
}

// ToValue encodes the predicate into its structured JSON form.
func (p *Predicate) ToValue() value.Value {
	if p == nil {
		return value.Null{}
	}

	switch p.Kind {
	case KindAnd, KindOr:
		arr := make(value.Array, len(p.Children))
		for i, c := range p.Children {
			arr[i] = c.ToValue()
		}
		return value.Object{p.Kind.String(): arr}
	case KindNot:
		var child value.Value = value.Null{}
		if len(p.Children) == 1 {
			child = p.Children[0].ToValue()
		}
		return value.Object{"not": child}
	}

	obj := value.Object{"value": p.Value.toValue()}
	if p.Key != "" {
		obj["key"] = value.String(p.Key)
	}
	if len(p.Scope) > 0 {
		scope := make(value.Array, len(p.Scope))
		for i, s := range p.Scope {
			scope[i] = value.String(s)
		}
		obj["scope"] = scope
	}
	return obj
}

func (m *ValueMatcher) toValue() value.Value {
	if m == nil {
		return value.Null{}
	}
	obj := value.Object{}
	if m.Equals != nil {
		obj["equals"] = m.Equals
	}
	if m.IgnoreCase {
		obj["ignore_case"] = value.Bool(true)
	}
	if m.AtLeast != nil {
		obj["at_least"] = value.Number(*m.AtLeast)
	}
	if m.AtMost != nil {
		obj["at_most"] = value.Number(*m.AtMost)
	}
	if m.IsPresent != nil {
		obj["is_present"] = value.Bool(*m.IsPresent)
	}
	if m.ArrayContains != nil {
		obj["array_contains"] = m.ArrayContains.ToValue()
	}
	if m.Index != nil {
		obj["index"] = value.Number(*m.Index)
	}
	if m.ArrayLength != nil {
		obj["array_length"] = m.ArrayLength.toValue()
	}
	return obj
}

// MarshalJSON encodes the predicate in canonical JSON.
func (p *Predicate) MarshalJSON() ([]byte, error) {
	return value.MarshalCanonical(p.ToValue())
}

// UnmarshalJSON decodes and validates a predicate.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		*p = Predicate{}
		return fmt.Errorf("%w: null cannot be decoded into a predicate", ErrInvalid)
	}
	*p = *parsed
	return nil
}

// Package predicate implements structural matchers over event payloads.
//
// A Predicate is a small expression tree: and/or/not nodes over field
// matchers. A field matcher selects a value out of the payload by scope and
// key, then applies a ValueMatcher to it. A nil *Predicate matches
// unconditionally.
//
// The JSON form is:
//
//	{"and": [P, ...]}
//	{"or":  [P, ...]}
//	{"not": P}
//	{"scope": ["a", "b"], "key": "k", "value": V}
//
// where V is one of:
//
//	{"equals": X, "ignore_case": true}
//	{"at_least": N, "at_most": M}
//	{"is_present": true}
//	{"array_contains": P, "index": I}
//	{"array_length": V}
package predicate

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"

	"github.com/roach88/tripwire/internal/value"
)

// Kind identifies a node in the predicate tree.
type Kind int

const (
	// KindField applies a ValueMatcher to a selected payload value.
	KindField Kind = iota
	// KindAnd matches when every child matches.
	KindAnd
	// KindOr matches when any child matches.
	KindOr
	// KindNot matches when its single child does not.
	KindNot
)

// String returns the JSON operator name for the kind.
func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrInvalid is wrapped by every validation and decoding failure.
var ErrInvalid = errors.New("invalid predicate")

// Predicate is a node of the matcher tree.
type Predicate struct {
	Kind     Kind
	Children []*Predicate

	// Field matcher selection. An empty Scope and Key select the whole payload.
	Scope []string
	Key   string
	Value *ValueMatcher
}

// ValueMatcher tests a single selected value. Exactly one matcher kind is set.
type ValueMatcher struct {
	Equals     value.Value
	IgnoreCase bool

	AtLeast *float64
	AtMost  *float64

	IsPresent *bool

	ArrayContains *Predicate
	Index         *int

	ArrayLength *ValueMatcher
}

// And returns a predicate matching when all children match.
func And(children ...*Predicate) *Predicate {
	return &Predicate{Kind: KindAnd, Children: children}
}

// Or returns a predicate matching when any child matches.
func Or(children ...*Predicate) *Predicate {
	return &Predicate{Kind: KindOr, Children: children}
}

// Not negates p.
func Not(p *Predicate) *Predicate {
	return &Predicate{Kind: KindNot, Children: []*Predicate{p}}
}

// Field matches the value under key at the top level of the payload.
func Field(key string, vm *ValueMatcher) *Predicate {
	return &Predicate{Kind: KindField, Key: key, Value: vm}
}

// Scoped matches the value under key inside the nested objects named by scope.
func Scoped(scope []string, key string, vm *ValueMatcher) *Predicate {
	return &Predicate{Kind: KindField, Scope: scope, Key: key, Value: vm}
}

// Payload matches the payload itself.
func Payload(vm *ValueMatcher) *Predicate {
	return &Predicate{Kind: KindField, Value: vm}
}

// Equals matches values structurally equal to v.
func Equals(v value.Value) *ValueMatcher {
	return &ValueMatcher{Equals: v}
}

// EqualsIgnoreCase matches strings equal to s under Unicode case folding.
func EqualsIgnoreCase(s string) *ValueMatcher {
	return &ValueMatcher{Equals: value.String(s), IgnoreCase: true}
}

// Range matches numbers within [min, max]. A nil bound is open.
func Range(min, max *float64) *ValueMatcher {
	return &ValueMatcher{AtLeast: min, AtMost: max}
}

// Present matches when the selected value's presence equals present.
// JSON null counts as absent.
func Present(present bool) *ValueMatcher {
	return &ValueMatcher{IsPresent: &present}
}

// ArrayContains matches arrays with at least one element matching p.
func ArrayContains(p *Predicate) *ValueMatcher {
	return &ValueMatcher{ArrayContains: p}
}

// ArrayContainsAt matches arrays whose element at index matches p.
func ArrayContainsAt(p *Predicate, index int) *ValueMatcher {
	return &ValueMatcher{ArrayContains: p, Index: &index}
}

// ArrayLength matches arrays whose length satisfies vm.
func ArrayLength(vm *ValueMatcher) *ValueMatcher {
	return &ValueMatcher{ArrayLength: vm}
}

// Match evaluates the predicate against payload. A nil predicate matches.
func (p *Predicate) Match(payload value.Value) bool {
	if p == nil {
		return true
	}

	switch p.Kind {
	case KindAnd:
		for _, c := range p.Children {
			if !c.Match(payload) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range p.Children {
			if c.Match(payload) {
				return true
			}
		}
		return false
	case KindNot:
		if len(p.Children) != 1 {
			return false
		}
		return !p.Children[0].Match(payload)
	case KindField:
		return p.Value.Match(p.selectValue(payload))
	default:
		return false
	}
}

// selectValue returns the value addressed by Scope and Key, or nil when the
// path does not exist.
func (p *Predicate) selectValue(payload value.Value) value.Value {
	path := p.path()
	if len(path) == 0 {
		return payload
	}
	obj, ok := payload.(value.Object)
	if !ok {
		return nil
	}
	v, ok := obj.Lookup(path...)
	if !ok {
		return nil
	}
	return v
}

func (p *Predicate) path() []string {
	path := make([]string, 0, len(p.Scope)+1)
	path = append(path, p.Scope...)
	if p.Key != "" {
		path = append(path, p.Key)
	}
	return path
}

// Match evaluates the matcher against v. v is nil when the selected value
// is missing from the payload.
func (m *ValueMatcher) Match(v value.Value) bool {
	if m == nil {
		return false
	}

	switch {
	case m.IsPresent != nil:
		return !value.IsNull(v) == *m.IsPresent

	case m.Equals != nil:
		if m.IgnoreCase {
			want, wok := m.Equals.(value.String)
			got, gok := v.(value.String)
			if wok && gok {
				fold := cases.Fold()
				return fold.String(string(want)) == fold.String(string(got))
			}
		}
		if v == nil {
			return false
		}
		return value.Equal(m.Equals, v)

	case m.AtLeast != nil || m.AtMost != nil:
		n, ok := v.(value.Number)
		if !ok {
			return false
		}
		if m.AtLeast != nil && float64(n) < *m.AtLeast {
			return false
		}
		if m.AtMost != nil && float64(n) > *m.AtMost {
			return false
		}
		return true

	case m.ArrayContains != nil:
		arr, ok := v.(value.Array)
		if !ok {
			return false
		}
		if m.Index != nil {
			i := *m.Index
			if i < 0 || i >= len(arr) {
				return false
			}
			return m.ArrayContains.Match(arr[i])
		}
		for _, elem := range arr {
			if m.ArrayContains.Match(elem) {
				return true
			}
		}
		return false

	case m.ArrayLength != nil:
		arr, ok := v.(value.Array)
		if !ok {
			return false
		}
		return m.ArrayLength.Match(value.Number(len(arr)))

	default:
		return false
	}
}

// Validate checks the structural rules of the tree: and/or need at least one
// child, not needs exactly one, and every field node carries a valid matcher.
func (p *Predicate) Validate() error {
	if p == nil {
		return nil
	}

	switch p.Kind {
	case KindAnd, KindOr:
		if len(p.Children) == 0 {
			return fmt.Errorf("%w: %s requires at least one child", ErrInvalid, p.Kind)
		}
	case KindNot:
		if len(p.Children) != 1 {
			return fmt.Errorf("%w: not requires exactly one child", ErrInvalid)
		}
	case KindField:
		if p.Value == nil {
			return fmt.Errorf("%w: field matcher requires a value matcher", ErrInvalid)
		}
		return p.Value.Validate()
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalid, int(p.Kind))
	}

	for i, c := range p.Children {
		if c == nil {
			return fmt.Errorf("%w: %s child %d is nil", ErrInvalid, p.Kind, i)
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that exactly one matcher kind is set.
func (m *ValueMatcher) Validate() error {
	kinds := 0
	if m.Equals != nil {
		kinds++
	}
	if m.AtLeast != nil || m.AtMost != nil {
		kinds++
		if m.AtLeast != nil && m.AtMost != nil && *m.AtLeast > *m.AtMost {
			return fmt.Errorf("%w: at_least %v exceeds at_most %v", ErrInvalid, *m.AtLeast, *m.AtMost)
		}
	}
	if m.IsPresent != nil {
		kinds++
	}
	if m.ArrayContains != nil {
		kinds++
		if err := m.ArrayContains.Validate(); err != nil {
			return err
		}
		if m.Index != nil && *m.Index < 0 {
			return fmt.Errorf("%w: index must not be negative", ErrInvalid)
		}
	}
	if m.ArrayLength != nil {
		kinds++
		if err := m.ArrayLength.Validate(); err != nil {
			return err
		}
	}

	if kinds != 1 {
		return fmt.Errorf("%w: value matcher must set exactly one kind, got %d", ErrInvalid, kinds)
	}
	if m.IgnoreCase && m.Equals == nil {
		return fmt.Errorf("%w: ignore_case applies only to equals", ErrInvalid)
	}
	if m.Index != nil && m.ArrayContains == nil {
		return fmt.Errorf("%w: index applies only to array_contains", ErrInvalid)
	}
	return nil
}

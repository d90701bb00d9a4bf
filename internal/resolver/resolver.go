// Package resolver inlines local $ref nodes so downstream code never sees
// indirection.
package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxRefDepth bounds how many references may be expanded inside one another.
// It stops long non-circular chains from exhausting the stack.
const MaxRefDepth = 100

// RefKey is the mapping key that marks a reference node
const RefKey = "$ref"

var (
	// ErrBrokenReference is matched by errors for refs pointing nowhere
	ErrBrokenReference = errors.New("broken reference")

	// ErrCircularReference is matched by errors for refs that reach themselves
	ErrCircularReference = errors.New("circular reference")
)

// ReferenceError describes a $ref that could not be inlined
type ReferenceError struct {
	// Ref is the reference string as written in the document
	Ref string
	// Missing is the first path segment that did not resolve
	Missing string
	// IsCircular is set when the reference expands into itself
	IsCircular bool
	// Message gives extra context
	Message string
}

// Error returns a human-readable error message.
func (e *ReferenceError) Error() string {
	msg := "broken reference"
	if e.IsCircular {
		msg = "circular reference"
	}
	msg += ": " + e.Ref
	if e.Missing != "" {
		msg += " (missing key: " + e.Missing + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports whether target matches this error type.
func (e *ReferenceError) Is(target error) bool {
	if e.IsCircular {
		return target == ErrCircularReference
	}
	return target == ErrBrokenReference
}

// Resolver expands references against a fixed root
type Resolver struct {
	root *yaml.Node
	// resolving holds the refs on the current expansion stack
	resolving map[string]bool
	depth     int
}

// Resolve returns a copy of doc with every reference node replaced by the
// value it points at. doc is also the root every reference is looked up in.
func Resolve(doc *yaml.Node) (*yaml.Node, error) {
	r := &Resolver{
		root:      unwrap(doc),
		resolving: make(map[string]bool),
	}
	return r.resolve(r.root)
}

func (r *Resolver) resolve(n *yaml.Node) (*yaml.Node, error) {
	n = unwrap(n)
	if n == nil {
		return nil, nil
	}

	switch n.Kind {
	case yaml.SequenceNode:
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, len(n.Content))
		for i, item := range n.Content {
			resolved, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			out.Content[i] = resolved
		}
		return out, nil

	case yaml.MappingNode:
		if ref, ok := refOf(n); ok {
			return r.expand(ref)
		}
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, len(n.Content))
		for i := 0; i+1 < len(n.Content); i += 2 {
			value, err := r.resolve(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out.Content[i] = n.Content[i]
			out.Content[i+1] = value
		}
		return out, nil

	default:
		return n, nil
	}
}

// expand looks ref up and resolves whatever it finds there
func (r *Resolver) expand(ref string) (*yaml.Node, error) {
	if r.resolving[ref] {
		return nil, &ReferenceError{Ref: ref, IsCircular: true}
	}
	if r.depth >= MaxRefDepth {
		return nil, &ReferenceError{Ref: ref, Message: fmt.Sprintf("exceeds maximum depth %d", MaxRefDepth)}
	}

	r.resolving[ref] = true
	r.depth++
	defer func() {
		delete(r.resolving, ref)
		r.depth--
	}()

	target, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	return r.resolve(target)
}

// lookup walks the root along the segments of ref
func (r *Resolver) lookup(ref string) (*yaml.Node, error) {
	parts := strings.Split(ref, "/")
	if parts[0] != "#" {
		return nil, &ReferenceError{Ref: ref, Message: "only local references starting with #/ are supported"}
	}

	current := r.root
	for _, part := range parts[1:] {
		// Follow references met halfway through the path
		if next, ok := refOf(current); ok {
			target, err := r.expandForLookup(next)
			if err != nil {
				return nil, err
			}
			current = target
		}

		key := unescape(part)
		switch current.Kind {
		case yaml.MappingNode:
			next := child(current, key)
			if next == nil {
				return nil, &ReferenceError{Ref: ref, Missing: key}
			}
			current = next
		case yaml.SequenceNode:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(current.Content) {
				return nil, &ReferenceError{Ref: ref, Missing: key, Message: "invalid sequence index"}
			}
			current = unwrap(current.Content[index])
		default:
			return nil, &ReferenceError{Ref: ref, Missing: key, Message: "cannot index into a scalar"}
		}
	}
	return current, nil
}

// expandForLookup dereferences an intermediate node without rebuilding it
func (r *Resolver) expandForLookup(ref string) (*yaml.Node, error) {
	if r.resolving[ref] {
		return nil, &ReferenceError{Ref: ref, IsCircular: true}
	}
	r.resolving[ref] = true
	defer delete(r.resolving, ref)

	target, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	if next, ok := refOf(target); ok {
		return r.expandForLookup(next)
	}
	return target, nil
}

// refOf returns the reference string when n is a reference node
func refOf(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.MappingNode {
		return "", false
	}
	value := child(n, RefKey)
	if value == nil || value.Kind != yaml.ScalarNode {
		return "", false
	}
	return value.Value, true
}

func child(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return unwrap(n.Content[i+1])
		}
	}
	return nil
}

func unwrap(n *yaml.Node) *yaml.Node {
	for n != nil && (n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode) {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
			continue
		}
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	return n
}

func shallowCopy(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	return &c
}

// unescape decodes JSON pointer escapes
func unescape(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}

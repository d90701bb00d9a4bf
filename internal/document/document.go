package document

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// descriptionPaths are probed when a bare base URL is given instead of a
// document URL.
var descriptionPaths = []string{
	"/openapi.yaml",
	"/openapi.json",
	"/swagger/v1/swagger.json",
	"/swagger.json",
	"/v1/swagger.json",
	"/api/swagger.json",
	"/api/v1/swagger.json",
}

// Loader reads API descriptions from disk or over HTTP
type Loader struct {
	client *http.Client
}

// NewLoader creates a new instance of Loader
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	return &Loader{client: client}
}

// Load reads the description at location, which may be a file path, a
// document URL or a server base URL.
func (l *Loader) Load(location string) (*yaml.Node, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read API description: %w", err)
		}
		return Parse(data)
	}

	if strings.HasSuffix(location, ".json") || strings.HasSuffix(location, ".yaml") || strings.HasSuffix(location, ".yml") {
		return l.fetch(location)
	}

	// Try the well-known locations
	base := strings.TrimSuffix(location, "/")
	var lastErr error
	for _, p := range descriptionPaths {
		doc, err := l.fetch(base + p)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to fetch API description from any known URL. Last error: %w", lastErr)
}

// fetch downloads and parses a single document URL
func (l *Loader) fetch(url string) (*yaml.Node, error) {
	resp, err := l.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from %s: %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON into an ordered node tree. The returned node is
// the document's root value, never a DocumentNode.
func Parse(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty API description")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse API description: %w", err)
	}
	root := Unwrap(&doc)
	if root == nil {
		return nil, fmt.Errorf("empty API description")
	}
	return root, nil
}

// Unwrap strips document and alias wrappers
func Unwrap(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		case 0:
			// Empty input
			return nil
		default:
			return n
		}
	}
	return nil
}

// Get returns the value stored under key in a mapping node, or nil
func Get(n *yaml.Node, key string) *yaml.Node {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return Unwrap(n.Content[i+1])
		}
	}
	return nil
}

// Lookup follows keys from n and returns nil as soon as one is missing
func Lookup(n *yaml.Node, keys ...string) *yaml.Node {
	for _, key := range keys {
		n = Get(n, key)
		if n == nil {
			return nil
		}
	}
	return n
}

// Pair is one key/value entry of a mapping node
type Pair struct {
	Key   string
	Value *yaml.Node
}

// Pairs lists the entries of a mapping node in document order
func Pairs(n *yaml.Node) []Pair {
	n = Unwrap(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	pairs := make([]Pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, Pair{Key: n.Content[i].Value, Value: Unwrap(n.Content[i+1])})
	}
	return pairs
}

// Value converts a node tree into plain JSON-compatible Go values:
// map[string]interface{}, []interface{}, string, int, float64, bool or nil.
func Value(n *yaml.Node) (interface{}, error) {
	n = Unwrap(n)
	if n == nil {
		return nil, nil
	}

	switch n.Kind {
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: failed to decode scalar: %w", n.Line, err)
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := Value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := Value(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// Object converts a mapping node into a JSON object
func Object(n *yaml.Node) (map[string]interface{}, error) {
	v, err := Value(n)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	return obj, nil
}

package synth

import (
	"context"
	"math"
	"sort"
	"strings"

	"contract-fuzzer/internal/types"

	"github.com/google/uuid"
)

// mode selects which flavour of valid value sample builds
type mode int

// Longer strings and arrays are never built. Samples that would need them are
// left short and fail the schema check instead.
const (
	maxSampleLength = 4096
	maxSampleItems  = 64
)

const (
	// modeFull fills every declared property
	modeFull mode = iota
	// modeMinimal fills required properties only
	modeMinimal
	// modeBoundary pushes numbers and strings to their upper bounds
	modeBoundary
)

// Generator synthesizes examples by walking the schema. It is
// deterministic: the same schema always yields the same examples.
type Generator struct{}

// NewGenerator creates a new instance of Generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Synthesize implements the Synthesizer interface
func (g *Generator) Synthesize(ctx context.Context, s map[string]interface{}) (types.Examples, error) {
	if err := ctx.Err(); err != nil {
		return types.Examples{}, err
	}

	s = flatten(s)
	examples := types.Examples{
		Valid: []interface{}{
			g.sample(s, "", modeFull),
			g.sample(s, "", modeMinimal),
			g.sample(s, "", modeBoundary),
		},
	}

	full := g.sample(s, "", modeFull)
	if obj, ok := full.(map[string]interface{}); ok && schemaType(s) == "object" {
		examples.Invalid = append(examples.Invalid, g.invalidObjects(s, obj)...)
	} else {
		examples.Invalid = append(examples.Invalid, violations(s, "")...)
	}

	// Wrong root shapes
	examples.Invalid = append(examples.Invalid, wrongTypes(s)...)
	return examples, nil
}

// invalidObjects mutates a valid object one property at a time
func (g *Generator) invalidObjects(s map[string]interface{}, valid map[string]interface{}) []interface{} {
	var out []interface{}

	for _, name := range required(s) {
		out = append(out, without(valid, name))
	}

	props := properties(s)
	for _, name := range sortedKeys(props) {
		prop := flatten(asMap(props[name]))
		for _, bad := range wrongTypes(prop) {
			out = append(out, with(valid, name, bad))
		}
		for _, bad := range violations(prop, name) {
			out = append(out, with(valid, name, bad))
		}
		if schemaType(prop) == "object" {
			nested := asMap(g.sample(prop, name, modeFull))
			for _, bad := range g.invalidObjects(prop, nested) {
				out = append(out, with(valid, name, bad))
			}
		}
	}

	if additional, ok := s["additionalProperties"].(bool); ok && !additional {
		out = append(out, with(valid, "unexpectedField", "unexpected"))
	}
	return out
}

// sample builds one value satisfying s
func (g *Generator) sample(s map[string]interface{}, name string, m mode) interface{} {
	s = flatten(s)

	if enum, ok := s["enum"].([]interface{}); ok && len(enum) > 0 {
		if m == modeBoundary {
			return enum[len(enum)-1]
		}
		return enum[0]
	}
	if def, ok := s["default"]; ok && m == modeMinimal {
		return def
	}

	switch schemaType(s) {
	case "object":
		result := make(map[string]interface{})
		props := properties(s)
		include := sortedKeys(props)
		if m == modeMinimal {
			include = required(s)
		}
		for _, key := range include {
			result[key] = g.sample(asMap(props[key]), key, m)
		}
		return result
	case "array":
		count := 1
		if n, ok := size(s["minItems"]); ok && n > count {
			count = min(n, maxSampleItems)
		}
		if n, ok := size(s["maxItems"]); ok && n < count {
			count = n
		}
		items := make([]interface{}, 0, count)
		for i := 0; i < count; i++ {
			items = append(items, g.sample(asMap(s["items"]), name, m))
		}
		return items
	case "integer":
		return int(sampleNumber(s, name, m, true))
	case "number":
		return sampleNumber(s, name, m, false)
	case "boolean":
		return true
	case "null":
		return nil
	default:
		return sampleString(s, name, m)
	}
}

// sampleNumber picks a value inside the declared bounds
func sampleNumber(s map[string]interface{}, name string, m mode, integer bool) float64 {
	low, hasLow := lowerBound(s, integer)
	high, hasHigh := upperBound(s, integer)

	value := 1.5
	if integer {
		value = 1
		if strings.Contains(strings.ToLower(name), "year") {
			value = 2024
		}
	}

	switch {
	case m == modeBoundary && hasHigh:
		value = high
	case hasLow && value < low:
		value = low
	case hasHigh && value > high:
		value = high
	}
	if integer {
		value = math.Trunc(value)
	}
	return value
}

func lowerBound(s map[string]interface{}, integer bool) (float64, bool) {
	step := 0.5
	if integer {
		step = 1
	}
	if n, ok := number(s["exclusiveMinimum"]); ok {
		return n + step, true
	}
	n, ok := number(s["minimum"])
	if !ok {
		return 0, false
	}
	if exclusive, _ := s["exclusiveMinimum"].(bool); exclusive {
		return n + step, true
	}
	if integer {
		return math.Ceil(n), true
	}
	return n, true
}

func upperBound(s map[string]interface{}, integer bool) (float64, bool) {
	step := 0.5
	if integer {
		step = 1
	}
	if n, ok := number(s["exclusiveMaximum"]); ok {
		return n - step, true
	}
	n, ok := number(s["maximum"])
	if !ok {
		return 0, false
	}
	if exclusive, _ := s["exclusiveMaximum"].(bool); exclusive {
		return n - step, true
	}
	if integer {
		return math.Floor(n), true
	}
	return n, true
}

// sampleString picks a realistic string for the property name or format
func sampleString(s map[string]interface{}, name string, m mode) string {
	value := stringForFormat(s["format"], name)
	if value == "" {
		value = stringForName(name)
	}

	if n, ok := size(s["minLength"]); ok && len(value) < n && n <= maxSampleLength {
		value += strings.Repeat("x", n-len(value))
	}
	if n, ok := size(s["maxLength"]); ok {
		switch {
		case len(value) > n:
			value = value[:n]
		case m == modeBoundary && n <= maxSampleLength:
			value += strings.Repeat("x", n-len(value))
		}
	}
	return value
}

func stringForFormat(format interface{}, name string) string {
	switch format {
	case "email":
		return "test@example.com"
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T12:00:00Z"
	case "time":
		return "12:00:00"
	case "uuid":
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	case "uri", "url":
		return "https://example.com"
	case "hostname":
		return "example.com"
	case "ipv4":
		return "192.168.1.1"
	case "ipv6":
		return "2001:db8::1"
	case "byte":
		return "c2FtcGxl"
	}
	return ""
}

func stringForName(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "email"):
		return "user@example.com"
	case strings.Contains(name, "phone"):
		return "+1-555-555-0100"
	case strings.Contains(name, "first_name"), strings.Contains(name, "firstname"):
		return "John"
	case strings.Contains(name, "last_name"), strings.Contains(name, "lastname"):
		return "Doe"
	case strings.Contains(name, "username"):
		return "user_1"
	case strings.Contains(name, "name"):
		return "Sample Name"
	case strings.Contains(name, "title"):
		return "Sample title"
	case strings.Contains(name, "address"):
		return "1 Main St"
	case strings.Contains(name, "city"):
		return "Springfield"
	case strings.Contains(name, "country"):
		return "Country"
	case strings.Contains(name, "postal_code"), strings.Contains(name, "zip"):
		return "12345"
	case strings.Contains(name, "url"):
		return "https://example.com"
	case strings.Contains(name, "timezone"):
		return "UTC"
	case strings.Contains(name, "date"):
		return "2024-01-01"
	}
	return "sample_string"
}

// wrongTypes returns values whose JSON type s does not accept
func wrongTypes(s map[string]interface{}) []interface{} {
	if len(typeNames(s)) == 0 && s["properties"] == nil && s["items"] == nil {
		// Untyped schemas accept anything
		return nil
	}

	accepts := make(map[string]bool)
	for _, t := range typeNames(s) {
		accepts[t] = true
	}
	if len(accepts) == 0 {
		accepts[schemaType(s)] = true
	}
	if nullable, _ := s["nullable"].(bool); nullable {
		accepts["null"] = true
	}

	candidates := []struct {
		kind  string
		value interface{}
	}{
		{"string", "not-a-number"},
		{"integer", 12345},
		{"boolean", false},
		{"array", []interface{}{}},
		{"object", map[string]interface{}{}},
		{"null", nil},
	}

	var out []interface{}
	for _, c := range candidates {
		if accepts[c.kind] || (c.kind == "integer" && accepts["number"]) {
			continue
		}
		out = append(out, c.value)
	}
	if accepts["integer"] && !accepts["number"] {
		out = append(out, 1.5)
	}
	return out
}

// violations returns values of the right type that break a constraint
func violations(s map[string]interface{}, name string) []interface{} {
	var out []interface{}
	integer := schemaType(s) == "integer"

	if low, ok := lowerBound(s, integer); ok {
		if integer {
			out = append(out, int(low)-1)
		} else {
			out = append(out, low-1)
		}
	}
	if high, ok := upperBound(s, integer); ok {
		if integer {
			out = append(out, int(high)+1)
		} else {
			out = append(out, high+1)
		}
	}
	if n, ok := size(s["minLength"]); ok && n > 0 && n <= maxSampleLength {
		out = append(out, strings.Repeat("x", n-1))
	}
	if n, ok := size(s["maxLength"]); ok && n < maxSampleLength {
		out = append(out, strings.Repeat("x", n+1))
	}
	if enum, ok := s["enum"].([]interface{}); ok && len(enum) > 0 {
		if _, isString := enum[0].(string); isString {
			out = append(out, "not-in-enum-"+name)
		}
	}
	if n, ok := size(s["minItems"]); ok && n > 0 {
		out = append(out, []interface{}{})
	}
	return out
}

// flatten merges allOf members into one schema and picks the first
// alternative of oneOf/anyOf.
func flatten(s map[string]interface{}) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	for _, key := range []string{"oneOf", "anyOf"} {
		if alts, ok := s[key].([]interface{}); ok && len(alts) > 0 {
			merged := copyMap(s)
			delete(merged, key)
			for k, v := range asMap(alts[0]) {
				merged[k] = v
			}
			s = merged
		}
	}

	members, ok := s["allOf"].([]interface{})
	if !ok {
		return s
	}
	merged := copyMap(s)
	delete(merged, "allOf")
	props := copyMap(asMap(merged["properties"]))
	req := append([]interface{}{}, asSlice(merged["required"])...)
	for _, member := range members {
		m := flatten(asMap(member))
		for k, v := range m {
			switch k {
			case "properties":
				for pk, pv := range asMap(v) {
					props[pk] = pv
				}
			case "required":
				req = append(req, asSlice(v)...)
			default:
				merged[k] = v
			}
		}
	}
	if len(props) > 0 {
		merged["properties"] = props
	}
	if len(req) > 0 {
		merged["required"] = req
	}
	return merged
}

// typeNames lists the declared type names, ignoring "null"
func typeNames(s map[string]interface{}) []string {
	var out []string
	switch t := s["type"].(type) {
	case string:
		out = append(out, t)
	case []interface{}:
		for _, item := range t {
			if name, ok := item.(string); ok && name != "null" {
				out = append(out, name)
			}
		}
	}
	return out
}

// schemaType picks the single type sample should produce
func schemaType(s map[string]interface{}) string {
	if ts := typeNames(s); len(ts) > 0 {
		return ts[0]
	}
	switch {
	case s["properties"] != nil:
		return "object"
	case s["items"] != nil:
		return "array"
	case s["enum"] != nil:
		return "enum"
	}
	return "string"
}

func properties(s map[string]interface{}) map[string]interface{} {
	return asMap(s["properties"])
}

func required(s map[string]interface{}) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range asSlice(s["required"]) {
		if name, ok := r.(string); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func with(obj map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := copyMap(obj)
	out[key] = value
	return out
}

func without(obj map[string]interface{}, key string) map[string]interface{} {
	out := copyMap(obj)
	delete(out, key)
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// size reads a non-negative whole-number keyword such as maxLength
func size(v interface{}) (int, bool) {
	n, ok := number(v)
	if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

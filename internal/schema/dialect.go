package schema

// annotations are JSON Schema 2020-12 keywords with no effect on validation
var annotations = []string{"$schema", "$id", "$comment", "$defs", "definitions", "examples"}

// downgrade rewrites JSON Schema 2020-12 forms into their OpenAPI 3.0
// equivalents so kin-openapi can compile them. Type arrays become a type plus
// nullable, numeric exclusive bounds become the boolean form and const becomes
// a single-value enum. The input is left untouched.
func downgrade(s map[string]interface{}) map[string]interface{} {
	if s == nil {
		return nil
	}
	out := make(map[string]interface{}, len(s))
	for k, v := range s {
		out[k] = v
	}
	for _, k := range annotations {
		delete(out, k)
	}

	if props, ok := out["properties"].(map[string]interface{}); ok {
		converted := make(map[string]interface{}, len(props))
		for name, prop := range props {
			converted[name] = downgradeAny(prop)
		}
		out["properties"] = converted
	}
	for _, k := range []string{"items", "additionalProperties", "not"} {
		if sub, ok := out[k].(map[string]interface{}); ok {
			out[k] = downgrade(sub)
		}
	}
	for _, k := range []string{"allOf", "anyOf", "oneOf"} {
		if list, ok := out[k].([]interface{}); ok {
			converted := make([]interface{}, len(list))
			for i, sub := range list {
				converted[i] = downgradeAny(sub)
			}
			out[k] = converted
		}
	}

	switch t := out["type"].(type) {
	case []interface{}:
		downgradeType(out, t)
	case string:
		if t == "null" {
			downgradeType(out, []interface{}{t})
		}
	}

	downgradeBound(out, "exclusiveMinimum", "minimum", func(exclusive, inclusive float64) bool {
		return exclusive >= inclusive
	})
	downgradeBound(out, "exclusiveMaximum", "maximum", func(exclusive, inclusive float64) bool {
		return exclusive <= inclusive
	})

	if c, ok := out["const"]; ok {
		delete(out, "const")
		out["enum"] = []interface{}{c}
	}
	return out
}

func downgradeAny(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return downgrade(m)
	}
	return v
}

// downgradeType folds "null" out of a type list into nullable
func downgradeType(out map[string]interface{}, list []interface{}) {
	var names []interface{}
	for _, item := range list {
		if item == "null" {
			out["nullable"] = true
			continue
		}
		names = append(names, item)
	}

	switch len(names) {
	case 0:
		// Only null is allowed
		delete(out, "type")
		out["nullable"] = true
		out["enum"] = []interface{}{nil}
	case 1:
		out["type"] = names[0]
	default:
		out["type"] = names
	}
}

// downgradeBound turns a numeric exclusive bound into the boolean form,
// keeping whichever of the two bounds is tighter.
func downgradeBound(out map[string]interface{}, exclusiveKey, inclusiveKey string, tighter func(exclusive, inclusive float64) bool) {
	exclusive, ok := toFloat(out[exclusiveKey])
	if !ok {
		return
	}
	if inclusive, has := toFloat(out[inclusiveKey]); has && !tighter(exclusive, inclusive) {
		delete(out, exclusiveKey)
		return
	}
	out[inclusiveKey] = exclusive
	out[exclusiveKey] = true
}

func toFloat(v interface{}) (float64, bool) {
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

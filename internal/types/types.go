package types

// JSONContentType is the only media type the fuzzer sends and inspects
const JSONContentType = "application/json"

// TestCase is one derived request/expectation pair. It is built once by the
// derivation engine and consumed once by the executor.
type TestCase struct {
	Title    string            `json:"title"`
	Fixture  string            `json:"fixture,omitempty"`
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     interface{}       `json:"body"`
	Expected Expectation       `json:"expected"`
}

// Expectation describes what the response must look like. Zero values mean
// the corresponding check is skipped.
type Expectation struct {
	Status  int                    `json:"status,omitempty"`
	Body    map[string]interface{} `json:"body,omitempty"`
	Headers map[string]string      `json:"headers,omitempty"`
}

// Examples holds synthesized request bodies for a single schema
type Examples struct {
	Valid   []interface{} `json:"valid"`
	Invalid []interface{} `json:"invalid"`
}

// IsObject reports whether v is a JSON object
func IsObject(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

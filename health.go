package novaos

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Health is the state an [HTTPCheck] reports for the service it watches.
type Health string

const (
	HealthUp       Health = "up"
	HealthDegraded Health = "degraded"
	HealthDown     Health = "down"

	// HealthUnknown means an extractor could not interpret the response.
	HealthUnknown Health = "unknown"
)

func (h Health) String() string {
	return string(h)
}

// HealthExtractor interprets an HTTP response as a [Health].
//
// Extractors must be safe for concurrent use and must not retain body.
type HealthExtractor func(body []byte, statusCode int) Health

// StatusCodeHealth maps the response code alone: 2xx is up, 4xx is
// degraded, anything else is down.
func StatusCodeHealth(_ []byte, statusCode int) Health {
	switch statusCode / 100 {
	case 2:
		return HealthUp
	case 4:
		return HealthDegraded
	default:
		return HealthDown
	}
}

// JSONFieldHealth reads a status word from a JSON body at a dot-separated
// path, e.g. "status" or "checks.redis". Words such as "ok", "healthy" and
// true map to up; "degraded" and "warning" map to degraded; any other value
// is down. A body that is not JSON, or lacks the field, is unknown.
func JSONFieldHealth(path string) HealthExtractor {
	parts := strings.Split(path, ".")

	return func(body []byte, _ int) Health {
		var doc any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return HealthUnknown
		}

		for _, part := range parts {
			obj, ok := doc.(map[string]any)
			if !ok {
				return HealthUnknown
			}
			if doc, ok = obj[part]; !ok {
				return HealthUnknown
			}
		}

		switch v := doc.(type) {
		case bool:
			if v {
				return HealthUp
			}
			return HealthDown
		case json.Number:
			if v.String() == "1" {
				return HealthUp
			}
			return HealthDown
		case string:
			return healthWord(v)
		default:
			return HealthUnknown
		}
	}
}

var healthWords = map[string]Health{
	"ok":          HealthUp,
	"up":          HealthUp,
	"pass":        HealthUp,
	"passed":      HealthUp,
	"healthy":     HealthUp,
	"running":     HealthUp,
	"operational": HealthUp,
	"green":       HealthUp,
	"degraded":    HealthDegraded,
	"warning":     HealthDegraded,
	"warn":        HealthDegraded,
	"partial":     HealthDegraded,
	"yellow":      HealthDegraded,
}

func healthWord(s string) Health {
	if h, ok := healthWords[strings.ToLower(strings.TrimSpace(s))]; ok {
		return h
	}
	if s == "" {
		return HealthUnknown
	}
	return HealthDown
}

// BodyContainsHealth reports up when the body contains text, ignoring case,
// and down otherwise.
func BodyContainsHealth(text string) HealthExtractor {
	needle := []byte(strings.ToLower(text))
	return func(body []byte, _ int) Health {
		if bytes.Contains(bytes.ToLower(body), needle) {
			return HealthUp
		}
		return HealthDown
	}
}

// FirstKnownHealth tries extractors in order and returns the first result
// that is not [HealthUnknown].
func FirstKnownHealth(extractors ...HealthExtractor) HealthExtractor {
	return func(body []byte, statusCode int) Health {
		for _, extract := range extractors {
			if h := extract(body, statusCode); h != HealthUnknown {
				return h
			}
		}
		return HealthUnknown
	}
}

// DefaultHealth reads a top-level "status" field and falls back to the
// response code.
var DefaultHealth = FirstKnownHealth(JSONFieldHealth("status"), StatusCodeHealth)

package observability

import "strings"

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"accesstoken":   {},
	"refreshtoken":  {},
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// RedactFields returns a copy of fields with credential values masked,
// descending into nested maps.
func RedactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch {
		case isSensitive(key):
			out[key] = redacted
		default:
			if nested, ok := value.(map[string]any); ok {
				out[key] = RedactFields(nested)
			} else {
				out[key] = value
			}
		}
	}
	return out
}

func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if isSensitive(key) {
			out[key] = redacted
			continue
		}
		out[key] = value
	}
	return out
}

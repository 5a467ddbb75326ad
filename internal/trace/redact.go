package trace

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenKeySubstrings are dropped entirely when a value is published.
// Anything that reaches the bundle store or rendered output is persisted
// evidence; a password there is a leak that outlives the run.
var forbiddenKeySubstrings = []string{
	"password", "secret", "api_key", "apikey",
	"access_token", "accesstoken", "refresh_token", "refreshtoken",
	"private_key", "privatekey", "credit_card", "creditcard",
	"ssn", "social_security",
}

var ipPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// RedactValue returns a publishable copy of a recorded value: PII-bearing
// strings are masked, maps lose forbidden keys, nesting is handled
// recursively, and the input is never modified.
//
// Called at the publication boundary only - bundle writes and rendered
// output. Evaluation and mitigation always read the raw recorded values;
// masking them first would compare clauses against data the execution
// never produced.
func RedactValue(v any) any {
	return redactValue(v)
}

// redactMap returns a copy of m with forbidden keys removed and
// PII-bearing string values masked.
func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		lower := strings.ToLower(k)
		if isForbiddenKey(lower) {
			continue
		}
		switch {
		case strings.Contains(lower, "email"):
			out[k] = redactString(v, redactEmail)
		case strings.Contains(lower, "phone"):
			out[k] = redactString(v, redactPhone)
		case lower == "ip" || lower == "ip_address" || strings.Contains(lower, "ip_addr"):
			out[k] = redactString(v, redactIP)
		default:
			out[k] = redactValue(v)
		}
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		if strings.Contains(val, "@") && strings.Contains(val, ".") {
			return redactEmail(val)
		}
		if ipPattern.MatchString(val) {
			return redactIP(val)
		}
		return val
	case map[string]any:
		return redactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = redactValue(elem)
		}
		return out
	default:
		return v
	}
}

// redactString applies mask to string values and falls back to generic
// redaction for anything else.
func redactString(v any, mask func(string) string) any {
	if s, ok := v.(string); ok {
		return mask(s)
	}
	return redactValue(v)
}

func isForbiddenKey(lowerKey string) bool {
	for _, f := range forbiddenKeySubstrings {
		if strings.Contains(lowerKey, f) {
			return true
		}
	}
	return false
}

func redactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	local := parts[0]
	masked := "*"
	if len(local) > 1 {
		masked = string(local[0]) + strings.Repeat("*", min(len(local)-1, 3))
	}
	return fmt.Sprintf("%s@%s", masked, parts[1])
}

func redactIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return fmt.Sprintf("%s.%s.xxx.xxx", parts[0], parts[1])
	}
	return "xxx.xxx.xxx.xxx"
}

func redactPhone(phone string) string {
	if len(phone) > 4 {
		return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
	}
	return "****"
}

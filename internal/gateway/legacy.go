package gateway

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// StatusGuidance is shown when a backend rejects a status value.
const StatusGuidance = "Invalid status. Valid statuses are: PENDING, COMPLETED, DELIVERED, CANCELLED."

// Messages for constraint violations reported by older backends that return
// raw database errors as text or HTML.
var constraintMessages = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`ventas_estatus_check`), StatusGuidance},
	{regexp.MustCompile(`ventas_cantidad_check`), "Quantity must be greater than zero."},
	{regexp.MustCompile(`ventas_precio_check`), "Price must be greater than zero."},
	{regexp.MustCompile(`autos_stock_check`), "Stock cannot be negative."},
	{regexp.MustCompile(`(?i)violates foreign key constraint|foreign key constraint failed|ventas_numero_serie_fkey`), "The vehicle referenced by this sale does not exist."},
}

var (
	uniqueKeyRe  = regexp.MustCompile(`Key \(([^)]+)\)=\(([^)]*)\) already exists`)
	uniqueRe     = regexp.MustCompile(`(?i)duplicate key|unique constraint`)
	detailRe     = regexp.MustCompile(`Detail:\s*([^\n<]+)`)
	errorLineRe  = regexp.MustCompile(`(?i)Error:\s*([^\n<]+)`)
	tagRe        = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
)

// errorMessage picks the best human-readable text out of a non-2xx body.
func errorMessage(code int, body []byte) string {
	if msg, ok := structuredMessage(body); ok {
		return msg
	}
	if msg, ok := legacyMessage(string(body)); ok {
		return msg
	}
	return fmt.Sprintf("server error (HTTP %d)", code)
}

// structuredMessage reads {"error": ...}, {"message": ...} and friends.
func structuredMessage(body []byte) (string, bool) {
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", false
	}
	f := newFields(v)
	for _, k := range []string{"error", "message", "mensaje", "detail", "detalle", "msg"} {
		switch x := f[k].(type) {
		case string:
			if msg := strings.TrimSpace(x); msg != "" {
				if legacy, ok := legacyMessage(msg); ok && isConstraintText(msg) {
					return legacy, true
				}
				return msg, true
			}
		case map[string]any:
			if msg, ok := structuredMessage(mustJSON(x)); ok {
				return msg, true
			}
		}
	}
	if list, ok := f["errors"].([]any); ok {
		var parts []string
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; "), true
		}
	}
	return "", false
}

// legacyMessage scans a text or HTML error page.
func legacyMessage(body string) (string, bool) {
	for _, c := range constraintMessages {
		if c.pattern.MatchString(body) {
			return c.message, true
		}
	}

	text := whitespaceRe.ReplaceAllString(html.UnescapeString(tagRe.ReplaceAllString(body, "\n")), " ")

	if m := uniqueKeyRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("A record with %s %s already exists.", m[1], m[2]), true
	}
	if uniqueRe.MatchString(text) {
		return "A record with this value already exists.", true
	}
	if m := detailRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := errorLineRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func isConstraintText(s string) bool {
	for _, c := range constraintMessages {
		if c.pattern.MatchString(s) {
			return true
		}
	}
	return uniqueRe.MatchString(s)
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

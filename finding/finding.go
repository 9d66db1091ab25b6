package finding

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a loosely typed finding row as returned by the findings database.
type Record map[string]any

// Record keys used by the findings table.
const (
	KeyFindingID        = "finding_id"
	KeyCategory         = "category"
	KeyResourceName     = "resource_name"
	KeySeverity         = "severity"
	KeyState            = "state"
	KeyCreateTime       = "create_time"
	KeySourceProperties = "source_properties"
	KeyDomain           = "cmmc_domain"
	KeyPractice         = "cmmc_practice"
)

const (
	defaultCategory    = "Unknown"
	defaultResource    = "N/A"
	defaultSeverity    = "Unknown"
	defaultState       = "Unknown"
	defaultCreatedAt   = "Unknown"
	defaultDescription = "No description available"

	// rawDescriptionLimit caps how much of an unparsable source_properties
	// string is used as a description.
	rawDescriptionLimit = 100
)

// Finding is the canonical shape every source is normalized into.
type Finding struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Resource    string `json:"resource"`
	Severity    string `json:"severity"`
	State       string `json:"state"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Domain      string `json:"cmmcDomain,omitempty"`
	Practice    string `json:"cmmcPractice,omitempty"`
}

// Normalize converts a database record into a canonical Finding.
// Missing or empty fields fall back to defaults, so the result always
// carries a severity label and a description.
func Normalize(r Record) Finding {
	category := r.str(KeyCategory, defaultCategory)
	return Finding{
		ID:          r.str(KeyFindingID, ""),
		Category:    category,
		Resource:    r.str(KeyResourceName, defaultResource),
		Severity:    r.str(KeySeverity, defaultSeverity),
		State:       r.str(KeyState, defaultState),
		Description: describe(r[KeySourceProperties], category),
		CreatedAt:   r.str(KeyCreateTime, defaultCreatedAt),
		Domain:      strings.ToUpper(r.str(KeyDomain, "")),
		Practice:    r.str(KeyPractice, ""),
	}
}

// NormalizeAll normalizes records preserving their order.
func NormalizeAll(records []Record) []Finding {
	findings := make([]Finding, 0, len(records))
	for _, r := range records {
		findings = append(findings, Normalize(r))
	}
	return findings
}

func (r Record) str(key, fallback string) string {
	s := stringify(r[key])
	if s == "" {
		return fallback
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// describe resolves a description from source_properties, which is either a
// JSON encoded string or an already decoded object.
func describe(props any, category string) string {
	switch p := props.(type) {
	case string:
		if p == "" {
			return defaultDescription
		}
		// A JSON null has no fields to read, so it is treated like text.
		var decoded any
		if err := json.Unmarshal([]byte(p), &decoded); err != nil || decoded == nil {
			return truncate(p, rawDescriptionLimit) + "..."
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return defaultDescription
		}
		if msg, ok := obj["summary_message"].(map[string]any); ok {
			if s, ok := msg["stringValue"].(string); ok && s != "" {
				return s
			}
		}
		return defaultDescription
	case map[string]any:
		return describeObject(p, category)
	case Record:
		return describeObject(p, category)
	default:
		return defaultDescription
	}
}

func describeObject(obj map[string]any, category string) string {
	for _, key := range []string{"description", "summary", "title"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return category + " finding"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

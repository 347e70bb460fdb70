package tickets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/models"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// ValidateCustomFields checks values against the tenant's field definitions.
// Required keys must be present and non-null, every present key must be
// defined, and each value must match its definition's datatype.
func ValidateCustomFields(defs []models.FieldDefinition, values map[string]any) error {
	byKey := make(map[string]models.FieldDefinition, len(defs))
	for _, d := range defs {
		byKey[d.Key] = d
	}

	var problems []string
	for _, d := range defs {
		if !d.Required {
			continue
		}
		if v, ok := values[d.Key]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("%s is required", d.Key))
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := values[k]
		d, ok := byKey[k]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s is not a defined field", k))
			continue
		}
		if v == nil {
			continue
		}
		if msg := checkDatatype(d, v); msg != "" {
			problems = append(problems, fmt.Sprintf("%s %s", k, msg))
		}
	}

	if len(problems) > 0 {
		return access.BadRequest("invalid custom fields: " + strings.Join(problems, "; "))
	}
	return nil
}

func checkDatatype(d models.FieldDefinition, v any) string {
	switch d.Datatype {
	case models.DatatypeString:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case models.DatatypeNumber:
		if _, ok := v.(float64); !ok {
			return "must be a number"
		}
	case models.DatatypeBoolean:
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	case models.DatatypeDate:
		s, ok := v.(string)
		if !ok || !parsesAsDate(s) {
			return "must be a date"
		}
	case models.DatatypeEnum:
		s, ok := v.(string)
		if !ok {
			return "must be one of " + strings.Join(d.EnumOptions, ", ")
		}
		for _, opt := range d.EnumOptions {
			if s == opt {
				return ""
			}
		}
		return "must be one of " + strings.Join(d.EnumOptions, ", ")
	default:
		return "has unsupported datatype " + string(d.Datatype)
	}
	return ""
}

func parsesAsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

package workflow

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

// DesignLookup resolves a stored design. A miss is found=false, not an error.
type DesignLookup interface {
	LookupDesign(ctx context.Context, id string) (domain.Design, bool, error)
}

var designIDInText = regexp.MustCompile(`(?i)DESIGN-\d+`)

// ResolveDesignID finds a design id in input, asking the oracle only when
// the literal pattern is absent. Only well formed ids are accepted.
func ResolveDesignID(ctx context.Context, o oracle.Oracle, input string) (string, bool) {
	if m := designIDInText.FindString(input); m != "" {
		return strings.ToUpper(m), true
	}
	var reply struct {
		DesignID *string `json:"design_id"`
	}
	if err := oracle.Ask(ctx, o, designIDPrompt(input), &reply); err != nil || reply.DesignID == nil {
		return "", false
	}
	return domain.NormalizeDesignID(*reply.DesignID)
}

// ExtractAttributes pulls the required fields out of free text. Any failure
// yields an empty mapping.
func ExtractAttributes(ctx context.Context, o oracle.Oracle, input string) domain.Attributes {
	var reply map[string]any
	if err := oracle.Ask(ctx, o, extractPrompt(input), &reply); err != nil {
		return domain.Attributes{}
	}
	attrs := domain.Attributes{}
	for _, f := range domain.RequiredFields {
		v, ok := reply[f]
		if !ok {
			continue
		}
		attrs[f] = normalizeValue(f, v)
	}
	return attrs
}

// normalizeValue coerces oracle values to the field's type, nil when it
// cannot.
func normalizeValue(field string, v any) any {
	if v == nil {
		return nil
	}
	if domain.IsNumericField(field) {
		if n, ok := numericValue(v); ok && n > 0 {
			return n
		}
		return nil
	}
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return nil
	}
	return nil
}

var numberInText = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		m := numberInText.FindString(t)
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		return n, err == nil
	}
	return 0, false
}

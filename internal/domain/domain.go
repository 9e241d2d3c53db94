package domain

import (
	"regexp"
	"strings"
)

// Route is the acquisition path picked for a request.
type Route string

const (
	RouteUnset           Route = ""
	RouteFetchDesign     Route = "FETCH_DESIGN"
	RouteExtractFromText Route = "EXTRACT_FROM_TEXT"
	RouteIgnore          Route = "IGNORE"
)

// ParseRoute returns the route named by s, case-insensitively.
func ParseRoute(s string) (Route, bool) {
	switch Route(strings.ToUpper(strings.TrimSpace(s))) {
	case RouteFetchDesign:
		return RouteFetchDesign, true
	case RouteExtractFromText:
		return RouteExtractFromText, true
	case RouteIgnore:
		return RouteIgnore, true
	}
	return RouteUnset, false
}

// Status is the compliance outcome for a single field.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// ParseStatus normalizes an oracle supplied status.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPass:
		return StatusPass, true
	case StatusWarn:
		return StatusWarn, true
	case StatusFail:
		return StatusFail, true
	}
	return "", false
}

const (
	FieldStandard            = "standard"
	FieldVoltage             = "voltage"
	FieldConductorMaterial   = "conductor_material"
	FieldConductorClass      = "conductor_class"
	FieldCSA                 = "csa"
	FieldInsulationMaterial  = "insulation_material"
	FieldInsulationThickness = "insulation_thickness"
)

// RequiredFields lists the validated attributes in output order.
var RequiredFields = []string{
	FieldStandard,
	FieldVoltage,
	FieldConductorMaterial,
	FieldConductorClass,
	FieldCSA,
	FieldInsulationMaterial,
	FieldInsulationThickness,
}

// IsRequiredField reports whether name is one of RequiredFields.
func IsRequiredField(name string) bool {
	for _, f := range RequiredFields {
		if f == name {
			return true
		}
	}
	return false
}

// IsNumericField reports whether the field carries a number rather than text.
func IsNumericField(name string) bool {
	return name == FieldCSA || name == FieldInsulationThickness
}

var designIDPattern = regexp.MustCompile(`^DESIGN-\d+$`)

// NormalizeDesignID upper-cases id and reports whether it is well formed.
func NormalizeDesignID(id string) (string, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	return id, designIDPattern.MatchString(id)
}

// Attributes maps a field name to a string, a number, or nil for unknown.
type Attributes map[string]any

// IsMissing reports whether field is absent, null, or an empty string.
func (a Attributes) IsMissing(field string) bool {
	v, ok := a[field]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ValidationItem is the verdict for one required field.
type ValidationItem struct {
	Field    string `json:"field"`
	Status   Status `json:"status" enum:"PASS,WARN,FAIL"`
	Expected string `json:"expected,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Interaction is one human-in-the-loop answer.
type Interaction struct {
	Field        string `json:"field"`
	UserResponse string `json:"user_response"`
	Timestamp    string `json:"timestamp,omitempty" format:"date-time"`
}

type Design struct {
	ID                  string   `json:"id"`
	Standard            *string  `json:"standard"`
	Voltage             *string  `json:"voltage"`
	ConductorMaterial   *string  `json:"conductor_material"`
	ConductorClass      *string  `json:"conductor_class"`
	CSA                 *float64 `json:"csa"`
	InsulationMaterial  *string  `json:"insulation_material"`
	InsulationThickness *float64 `json:"insulation_thickness"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// Attributes copies the seven stored fields, keeping nulls as nil.
func (d Design) Attributes() Attributes {
	return Attributes{
		FieldStandard:            strOrNil(d.Standard),
		FieldVoltage:             strOrNil(d.Voltage),
		FieldConductorMaterial:   strOrNil(d.ConductorMaterial),
		FieldConductorClass:      strOrNil(d.ConductorClass),
		FieldCSA:                 numOrNil(d.CSA),
		FieldInsulationMaterial:  strOrNil(d.InsulationMaterial),
		FieldInsulationThickness: numOrNil(d.InsulationThickness),
	}
}

func strOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func numOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// Run is a persisted validate or resume invocation.
type Run struct {
	ID                string           `json:"id"`
	Kind              string           `json:"kind" enum:"validate,resume"`
	UserInput         string           `json:"user_input"`
	Route             string           `json:"route,omitempty"`
	DesignID          string           `json:"design_id,omitempty"`
	Attributes        Attributes       `json:"attributes"`
	MissingAttributes []string         `json:"missing_attributes"`
	Validation        []ValidationItem `json:"validation"`
	Reasoning         *string          `json:"reasoning,omitempty"`
	Confidence        *float64         `json:"confidence,omitempty"`
	HITLMode          bool             `json:"hitl_mode"`
	HITLRequired      bool             `json:"hitl_required"`
	Interactions      []Interaction    `json:"hitl_interactions"`
	CreatedAt         string           `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Subject   string `json:"subject"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

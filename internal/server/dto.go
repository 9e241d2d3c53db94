package server

import (
	"encoding/json"

	"cablecheck/internal/domain"
	"cablecheck/internal/workflow"
)

// Request payloads

type ValidateRequest struct {
	UserInput string `json:"user_input" minLength:"1" example:"Validate DESIGN-002"`
	HITLMode  bool   `json:"hitl_mode,omitempty"`
}

type ResumeRequest struct {
	UserInput string            `json:"user_input" minLength:"1" example:"Validate DESIGN-002"`
	Responses map[string]string `json:"responses,omitempty" doc:"Answers keyed by field name" example:"{\"conductor_class\":\"Class 2\",\"insulation_thickness\":\"1.2\"}"`
	// HITLResponses is the alternate key; it wins over responses for the same field.
	HITLResponses map[string]string `json:"hitl_responses,omitempty" doc:"Alias of responses"`
}

// answers merges both answer keys.
func (r ResumeRequest) answers() map[string]string {
	out := make(map[string]string, len(r.Responses)+len(r.HITLResponses))
	for k, v := range r.Responses {
		out[k] = v
	}
	for k, v := range r.HITLResponses {
		out[k] = v
	}
	return out
}

type CreateDesignRequest struct {
	ID                  string   `json:"id" example:"DESIGN-003"`
	Standard            *string  `json:"standard,omitempty" nullable:"true"`
	Voltage             *string  `json:"voltage,omitempty" nullable:"true"`
	ConductorMaterial   *string  `json:"conductor_material,omitempty" nullable:"true"`
	ConductorClass      *string  `json:"conductor_class,omitempty" nullable:"true"`
	CSA                 *float64 `json:"csa,omitempty" nullable:"true"`
	InsulationMaterial  *string  `json:"insulation_material,omitempty" nullable:"true"`
	InsulationThickness *float64 `json:"insulation_thickness,omitempty" nullable:"true"`
}

func (r CreateDesignRequest) design() domain.Design {
	return domain.Design{
		ID:                  r.ID,
		Standard:            r.Standard,
		Voltage:             r.Voltage,
		ConductorMaterial:   r.ConductorMaterial,
		ConductorClass:      r.ConductorClass,
		CSA:                 r.CSA,
		InsulationMaterial:  r.InsulationMaterial,
		InsulationThickness: r.InsulationThickness,
	}
}

// UpdateDesignRequest documents the partial update body. Fields left out are
// unchanged and an explicit null clears the field.
type UpdateDesignRequest struct {
	Standard            *string  `json:"standard,omitempty" nullable:"true"`
	Voltage             *string  `json:"voltage,omitempty" nullable:"true"`
	ConductorMaterial   *string  `json:"conductor_material,omitempty" nullable:"true"`
	ConductorClass      *string  `json:"conductor_class,omitempty" nullable:"true"`
	CSA                 *float64 `json:"csa,omitempty" nullable:"true"`
	InsulationMaterial  *string  `json:"insulation_material,omitempty" nullable:"true"`
	InsulationThickness *float64 `json:"insulation_thickness,omitempty" nullable:"true"`
}

// Responses

type ValidationResponse = workflow.Result

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	SchemaVersion int    `json:"schema_version"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedDesigns struct {
	Items []domain.Design `json:"items"`
	Total int             `json:"total"`
	Skip  int             `json:"skip"`
	Limit int             `json:"limit"`
}

type paginatedRuns struct {
	Items      []domain.Run `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

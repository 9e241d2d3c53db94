// Package workflow sequences a validation run: route the request, acquire
// attributes, validate them and optionally collect missing values from a
// human before validating again.
package workflow

import (
	"strings"

	"cablecheck/internal/domain"
)

const DefaultMaxRetries = 3

// State is owned by exactly one run. Steps mutate it in place and never
// share it across goroutines.
type State struct {
	UserInput   string
	Route       domain.Route
	DesignID    string
	DesignFound bool

	Attributes        domain.Attributes
	MissingAttributes []string

	Validation            []domain.ValidationItem
	Reasoning             *string
	Confidence            *float64
	InitialValidationDone bool
	Degraded              bool

	ConversationHistory []domain.Interaction
	HITLMode            bool
	HITLRetryCount      map[string]int
	HITLMaxRetries      int

	HITLResponses          map[string]string
	HITLResponsesProcessed bool
	SkipHITLCollection     bool
}

func NewState(input string, hitlMode bool, maxRetries int) *State {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &State{
		UserInput:         input,
		Attributes:        domain.Attributes{},
		MissingAttributes: []string{},
		HITLMode:          hitlMode,
		HITLRetryCount:    map[string]int{},
		HITLMaxRetries:    maxRetries,
	}
}

// WithResponses loads caller answers, keyed by normalized field name.
func (s *State) WithResponses(responses map[string]string) *State {
	if len(responses) == 0 {
		return s
	}
	s.HITLResponses = make(map[string]string, len(responses))
	for field, answer := range responses {
		s.HITLResponses[strings.ToLower(strings.TrimSpace(field))] = answer
	}
	return s
}

func (s *State) hasPendingResponses() bool {
	return len(s.HITLResponses) > 0 && !s.HITLResponsesProcessed
}

func (s *State) isMissing(field string) bool {
	for _, f := range s.MissingAttributes {
		if f == field {
			return true
		}
	}
	return false
}

func (s *State) dropMissing(field string) {
	out := s.MissingAttributes[:0]
	for _, f := range s.MissingAttributes {
		if f != field {
			out = append(out, f)
		}
	}
	s.MissingAttributes = out
}

// HITLRequired reports whether the caller should come back with answers.
func (s *State) HITLRequired() bool {
	return s.HITLMode && len(s.MissingAttributes) > 0 && len(s.ConversationHistory) == 0
}

// Result is what a run reports to its caller.
type Result struct {
	RunID             string                  `json:"run_id,omitempty"`
	UserInput         string                  `json:"user_input"`
	Route             string                  `json:"route"`
	DesignID          string                  `json:"design_id,omitempty"`
	Attributes        domain.Attributes       `json:"attributes"`
	MissingAttributes []string                `json:"missing_attributes"`
	Validation        []domain.ValidationItem `json:"validation"`
	Reasoning         *string                 `json:"reasoning,omitempty"`
	Confidence        *float64                `json:"confidence,omitempty"`
	HITLMode          bool                    `json:"hitl_mode"`
	HITLRequired      bool                    `json:"hitl_required"`
	HITLInteractions  []domain.Interaction    `json:"hitl_interactions"`
}

func (s *State) result() Result {
	res := Result{
		UserInput:         s.UserInput,
		Route:             string(s.Route),
		DesignID:          s.DesignID,
		Attributes:        s.Attributes,
		MissingAttributes: s.MissingAttributes,
		Validation:        s.Validation,
		Reasoning:         s.Reasoning,
		Confidence:        s.Confidence,
		HITLMode:          s.HITLMode,
		HITLRequired:      s.HITLRequired(),
		HITLInteractions:  s.ConversationHistory,
	}
	if res.Attributes == nil {
		res.Attributes = domain.Attributes{}
	}
	if res.MissingAttributes == nil {
		res.MissingAttributes = []string{}
	}
	if res.Validation == nil {
		res.Validation = []domain.ValidationItem{}
	}
	if res.HITLInteractions == nil {
		res.HITLInteractions = []domain.Interaction{}
	}
	return res
}

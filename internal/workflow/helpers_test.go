package workflow

import (
	"context"
	"strings"
	"sync"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

// scripted answers prompts by the first matching header; anything else is
// treated as an unreachable oracle.
type scripted struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

func newScripted(replies map[string]string) *scripted {
	return &scripted{replies: replies, calls: map[string]int{}}
}

func (s *scripted) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for header, reply := range s.replies {
		if strings.Contains(prompt, header) {
			s.calls[header]++
			return reply, nil
		}
	}
	return "", oracle.ErrUnavailable
}

func (s *scripted) count(header string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[header]
}

const (
	hdrRoute    = "You are a routing supervisor"
	hdrDesignID = "Extract design ID from"
	hdrExtract  = "Extract cable specifications from text"
	hdrValidate = "You are an expert cable design validation engineer"
	hdrField    = "Extract ONLY the value for"
)

type designMap map[string]domain.Design

func (m designMap) LookupDesign(_ context.Context, id string) (domain.Design, bool, error) {
	d, ok := m[id]
	return d, ok, nil
}

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func seedDesigns() designMap {
	return designMap{
		"DESIGN-001": {
			ID: "DESIGN-001", Standard: str("IEC 60502-1"), Voltage: str("0.6/1 kV"), ConductorMaterial: str("Cu"),
			ConductorClass: str("Class 2"), CSA: num(10), InsulationMaterial: str("PVC"), InsulationThickness: num(1.0),
		},
		"DESIGN-002": {
			ID: "DESIGN-002", Standard: str("IEC 60502-1"), Voltage: str("0.6/1 kV"), ConductorMaterial: str("Cu"),
			CSA: num(16), InsulationMaterial: str("PVC"),
		},
	}
}

type scriptedAsker struct {
	answers []string
	asked   []string
}

func (a *scriptedAsker) Ask(_ context.Context, field, _ string) (string, bool) {
	a.asked = append(a.asked, field)
	if len(a.answers) == 0 {
		return "", false
	}
	answer := a.answers[0]
	if len(a.answers) > 1 {
		a.answers = a.answers[1:]
	}
	return answer, true
}

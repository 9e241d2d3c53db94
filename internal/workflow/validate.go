package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

const (
	warnPenalty            = 0.10
	missingPenalty         = 0.15
	failPenalty            = 0.05
	missingStandardPenalty = 0.10
	confidenceFloor        = 0.30

	degradedReasoning = "Validation could not be completed"
)

// Assessment is one validation pass.
type Assessment struct {
	Items      []domain.ValidationItem
	Reasoning  string
	Confidence float64
	// Degraded is set when the oracle reply could not be understood; Items is empty.
	Degraded bool
	// FromRules is set when the oracle was unreachable and the rule tables graded the design.
	FromRules bool
}

type Validator struct {
	Oracle oracle.Oracle
	Log    *zap.Logger
}

// looseString accepts any JSON scalar.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = looseString(t)
	case float64:
		*s = looseString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*s = looseString(fmt.Sprint(t))
	}
	return nil
}

type validationReply struct {
	Validation []struct {
		Field    string      `json:"field"`
		Status   string      `json:"status"`
		Expected looseString `json:"expected"`
		Comment  looseString `json:"comment"`
	} `json:"validation"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence"`
}

// Assess grades attrs. The result always has one entry per required field
// unless it is degraded.
func (v Validator) Assess(ctx context.Context, attrs domain.Attributes, missing []string, initial bool) Assessment {
	log := v.Log
	if log == nil {
		log = zap.NewNop()
	}
	standardMissing := attrs.IsMissing(domain.FieldStandard)
	var reply validationReply
	err := oracle.Ask(ctx, v.Oracle, validationPrompt(attrs, missing, initial), &reply)
	switch {
	case errors.Is(err, oracle.ErrUnavailable):
		log.Warn("validator oracle unavailable, grading with rule tables", zap.Error(err))
		items := Rules(attrs)
		return Assessment{
			Items:      items,
			Reasoning:  rulesReasoning(items),
			Confidence: Recalibrate(1, items, len(missing), standardMissing),
			FromRules:  true,
		}
	case err != nil || len(reply.Validation) == 0:
		log.Warn("validator reply unusable", zap.Error(err))
		return Assessment{Items: []domain.ValidationItem{}, Reasoning: degradedReasoning, Confidence: 0, Degraded: true}
	}

	byField := make(map[string]domain.ValidationItem, len(reply.Validation))
	for _, e := range reply.Validation {
		status, ok := domain.ParseStatus(e.Status)
		if !ok || !domain.IsRequiredField(e.Field) {
			continue
		}
		if _, dup := byField[e.Field]; dup {
			continue
		}
		byField[e.Field] = domain.ValidationItem{Field: e.Field, Status: status, Expected: string(e.Expected), Comment: string(e.Comment)}
	}

	items := make([]domain.ValidationItem, 0, len(domain.RequiredFields))
	for _, f := range domain.RequiredFields {
		item, ok := byField[f]
		if !ok {
			item = ruleFor(f, attrs)
		}
		if attrs.IsMissing(f) && item.Status != domain.StatusWarn {
			item.Status = domain.StatusWarn
			item.Comment = missingComment(f)
		}
		items = append(items, item)
	}

	reported := 0.0
	if reply.Confidence != nil {
		reported = *reply.Confidence
	}
	reasoning := reply.Reasoning
	if reasoning == "" {
		reasoning = rulesReasoning(items)
	}
	return Assessment{
		Items:      items,
		Reasoning:  reasoning,
		Confidence: Recalibrate(reported, items, len(missing), standardMissing),
	}
}

// Recalibrate caps reported by the ceiling
// 1 - 0.10*warn - 0.15*missing - 0.05*fail (less 0.10 more when the standard
// is missing), never below 0.30, and clamps the result to [0,1].
func Recalibrate(reported float64, items []domain.ValidationItem, missingCount int, standardMissing bool) float64 {
	warn, fail := 0, 0
	for _, it := range items {
		switch it.Status {
		case domain.StatusWarn:
			warn++
		case domain.StatusFail:
			fail++
		}
	}
	ceiling := 1.0 - warnPenalty*float64(warn) - missingPenalty*float64(missingCount) - failPenalty*float64(fail)
	if standardMissing {
		ceiling -= missingStandardPenalty
	}
	if ceiling < confidenceFloor {
		ceiling = confidenceFloor
	}
	if reported > ceiling {
		reported = ceiling
	}
	if reported < 0 {
		reported = 0
	}
	if reported > 1 {
		reported = 1
	}
	return reported
}

func rulesReasoning(items []domain.ValidationItem) string {
	counts := map[domain.Status]int{}
	for _, it := range items {
		counts[it.Status]++
	}
	return fmt.Sprintf("Rule-table assessment: %d PASS, %d WARN, %d FAIL.",
		counts[domain.StatusPass], counts[domain.StatusWarn], counts[domain.StatusFail])
}

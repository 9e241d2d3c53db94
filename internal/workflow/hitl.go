package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

// Asker collects one answer at a time from a person. ok=false means the
// person declined to answer that field.
type Asker interface {
	Ask(ctx context.Context, field, hint string) (answer string, ok bool)
}

// ParseField reads the value of field out of a free-text answer. When the
// oracle is unreachable the answer itself is used, as a number for numeric
// fields.
func ParseField(ctx context.Context, o oracle.Oracle, field, answer string) (any, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, false
	}
	var reply struct {
		Value any `json:"value"`
	}
	err := oracle.Ask(ctx, o, fieldPrompt(field, answer), &reply)
	var v any
	switch {
	case errors.Is(err, oracle.ErrUnavailable):
		v = normalizeValue(field, answer)
	case err != nil:
		return nil, false
	default:
		v = normalizeValue(field, reply.Value)
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func (r *Runner) interaction(field, answer string) domain.Interaction {
	return domain.Interaction{Field: field, UserResponse: answer, Timestamp: r.now().UTC().Format(time.RFC3339)}
}

// mergePresupplied applies caller answers right after a design lookup so a
// resume against a stored design fills its gaps before validation.
func (r *Runner) mergePresupplied(ctx context.Context, st *State) {
	if !st.hasPendingResponses() {
		return
	}
	for _, f := range domain.RequiredFields {
		answer, ok := st.HITLResponses[f]
		if !ok || !st.Attributes.IsMissing(f) {
			continue
		}
		if v, ok := ParseField(ctx, r.Oracle, f, answer); ok {
			st.Attributes[f] = v
			st.ConversationHistory = append(st.ConversationHistory, r.interaction(f, answer))
		}
	}
}

// prepareHITL decides whether answers can be collected inside this run.
// Without pending answers or an Asker the run ends and the caller is
// expected to resume with answers.
func (r *Runner) prepareHITL(st *State) {
	st.SkipHITLCollection = !st.hasPendingResponses() && r.Asker == nil
}

// askMissing makes progress on the missing fields: all pending caller answers
// at once, or else one field through the Asker.
func (r *Runner) askMissing(ctx context.Context, st *State) {
	if st.hasPendingResponses() {
		r.mergeBulk(ctx, st)
		return
	}
	if r.Asker == nil || len(st.MissingAttributes) == 0 {
		return
	}
	r.askOne(ctx, st, st.MissingAttributes[0])
}

func (r *Runner) mergeBulk(ctx context.Context, st *State) {
	for _, f := range domain.RequiredFields {
		answer, ok := st.HITLResponses[f]
		if !ok || !st.isMissing(f) {
			continue
		}
		st.ConversationHistory = append(st.ConversationHistory, r.interaction(f, answer))
		if v, ok := ParseField(ctx, r.Oracle, f, answer); ok {
			st.Attributes[f] = v
		}
		// Dropped either way so an unparseable answer cannot stall the run.
		st.dropMissing(f)
	}
	st.HITLResponsesProcessed = true
}

func (r *Runner) askOne(ctx context.Context, st *State, field string) {
	answer, ok := r.Asker.Ask(ctx, field, hintFor(st, field))
	if !ok {
		st.dropMissing(field)
		return
	}
	st.HITLRetryCount[field]++
	st.ConversationHistory = append(st.ConversationHistory, r.interaction(field, answer))
	if v, ok := ParseField(ctx, r.Oracle, field, answer); ok {
		st.Attributes[field] = v
		st.dropMissing(field)
		delete(st.HITLRetryCount, field)
		return
	}
	if st.HITLRetryCount[field] >= st.HITLMaxRetries {
		r.log().Info("dropping field after retries", zap.String("field", field), zap.Int("attempts", st.HITLRetryCount[field]))
		st.dropMissing(field)
	}
}

func hintFor(st *State, field string) string {
	for _, it := range st.Validation {
		if it.Field == field {
			return it.Comment
		}
	}
	return ""
}

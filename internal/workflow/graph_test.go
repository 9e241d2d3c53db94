package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func newService(o oracle.Oracle) *Service {
	return &Service{Oracle: o, Designs: seedDesigns(), MaxRetries: 3, StepLimit: DefaultStepLimit, Now: fixedNow}
}

func statusOf(res Result, field string) domain.Status {
	for _, it := range res.Validation {
		if it.Field == field {
			return it.Status
		}
	}
	return ""
}

func TestValidateDesignWithGapsAsksForResume(t *testing.T) {
	svc := newService(oracle.Offline{})
	res, err := svc.Validate(context.Background(), "Validate DESIGN-002", true)
	require.NoError(t, err)

	assert.Equal(t, string(domain.RouteFetchDesign), res.Route)
	assert.Equal(t, "DESIGN-002", res.DesignID)
	assert.Equal(t, []string{domain.FieldConductorClass, domain.FieldInsulationThickness}, res.MissingAttributes)
	assert.True(t, res.HITLRequired)
	assert.Len(t, res.Validation, 7)
	assert.Equal(t, domain.StatusWarn, statusOf(res, domain.FieldConductorClass))
	assert.Equal(t, domain.StatusWarn, statusOf(res, domain.FieldInsulationThickness))
	assert.Empty(t, res.HITLInteractions)
}

func TestValidateWithoutHITLModeNeverAsks(t *testing.T) {
	res, err := newService(oracle.Offline{}).Validate(context.Background(), "Validate DESIGN-002", false)
	require.NoError(t, err)
	assert.False(t, res.HITLRequired)
	assert.Len(t, res.MissingAttributes, 2)
}

func TestResumeFillsDesignGaps(t *testing.T) {
	svc := newService(oracle.Func(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, hdrField) && strings.Contains(prompt, `"conductor_class"`):
			return `{"value": "Class 2"}`, nil
		case strings.Contains(prompt, hdrField) && strings.Contains(prompt, `"insulation_thickness"`):
			return `{"value": 1.2}`, nil
		}
		return "", oracle.ErrUnavailable
	}))

	res, err := svc.Resume(context.Background(), "Validate DESIGN-002", map[string]string{
		"conductor_class":      "Class 2",
		"insulation_thickness": "1.2",
	})
	require.NoError(t, err)
	assert.Empty(t, res.MissingAttributes)
	assert.Equal(t, "Class 2", res.Attributes[domain.FieldConductorClass])
	assert.Equal(t, 1.2, res.Attributes[domain.FieldInsulationThickness])
	assert.NotEqual(t, domain.StatusWarn, statusOf(res, domain.FieldConductorClass))
	assert.NotEqual(t, domain.StatusWarn, statusOf(res, domain.FieldInsulationThickness))
	assert.False(t, res.HITLRequired)
	assert.True(t, res.HITLMode)
	require.Len(t, res.HITLInteractions, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", res.HITLInteractions[0].Timestamp)
}

func TestResumeWithOfflineOracleUsesLiteralAnswers(t *testing.T) {
	res, err := newService(oracle.Offline{}).Resume(context.Background(), "Validate DESIGN-002", map[string]string{
		"Conductor_Class ":     "Class 2",
		"insulation_thickness": "1.2 mm",
	})
	require.NoError(t, err)
	assert.Empty(t, res.MissingAttributes)
	assert.Equal(t, 1.2, res.Attributes[domain.FieldInsulationThickness])
	assert.Equal(t, domain.StatusPass, statusOf(res, domain.FieldInsulationThickness))
}

func TestResumeExtractPathMergesInBulk(t *testing.T) {
	o := newScripted(map[string]string{
		hdrRoute:   `{"route":"EXTRACT_FROM_TEXT"}`,
		hdrExtract: `{"standard":"IEC 60502-1","voltage":"0.6/1 kV","conductor_material":"Cu","conductor_class":null,"csa":10,"insulation_material":"PVC","insulation_thickness":null}`,
		hdrField:   `garbage`,
	})
	res, err := newService(o).Resume(context.Background(), "IEC 60502-1 0.6/1 kV 10mm² Cu PVC", map[string]string{
		"conductor_class": "stranded, class two",
		"voltage":         "ignored because not missing",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldInsulationThickness}, res.MissingAttributes, "unparseable answers still leave the missing list")
	assert.Nil(t, res.Attributes[domain.FieldConductorClass])
	require.Len(t, res.HITLInteractions, 1)
	assert.Equal(t, domain.FieldConductorClass, res.HITLInteractions[0].Field)
	assert.Equal(t, 1, o.count(hdrField))
	assert.False(t, res.HITLRequired)
}

func TestIgnoreRouteEndsImmediately(t *testing.T) {
	res, err := newService(oracle.Offline{}).Validate(context.Background(), "what's the weather", true)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RouteIgnore), res.Route)
	assert.Empty(t, res.Validation)
	assert.Empty(t, res.Attributes)
	assert.False(t, res.HITLRequired)
}

func TestUnknownDesignIsAllMissing(t *testing.T) {
	res, err := newService(oracle.Offline{}).Validate(context.Background(), "Validate DESIGN-999", true)
	require.NoError(t, err)
	assert.Equal(t, "DESIGN-999", res.DesignID)
	assert.Equal(t, domain.RequiredFields, res.MissingAttributes)
	assert.Len(t, res.Validation, 7)
	for _, it := range res.Validation {
		assert.Equal(t, domain.StatusWarn, it.Status)
	}
	assert.True(t, res.HITLRequired)
	assert.InDelta(t, 0.3, *res.Confidence, 1e-9)
}

func TestDegradedValidationDoesNotPrompt(t *testing.T) {
	o := newScripted(map[string]string{hdrValidate: "no idea"})
	res, err := newService(o).Validate(context.Background(), "Validate DESIGN-002", true)
	require.NoError(t, err)
	assert.Empty(t, res.Validation)
	assert.Equal(t, "Validation could not be completed", *res.Reasoning)
	assert.Zero(t, *res.Confidence)
	assert.True(t, res.HITLRequired)
}

func TestInteractiveRetryIsBounded(t *testing.T) {
	o := newScripted(map[string]string{hdrField: `{"value": null}`})
	asker := &scriptedAsker{answers: []string{"no idea"}}
	svc := newService(o)
	res, err := svc.Interactive(context.Background(), "Validate DESIGN-002", asker)
	require.NoError(t, err)

	assert.Empty(t, res.MissingAttributes)
	assert.Equal(t, []string{
		domain.FieldConductorClass, domain.FieldConductorClass, domain.FieldConductorClass,
		domain.FieldInsulationThickness, domain.FieldInsulationThickness, domain.FieldInsulationThickness,
	}, asker.asked)
	assert.Equal(t, 6, o.count(hdrField))
	assert.Len(t, res.HITLInteractions, 6)
	assert.False(t, res.HITLRequired)
}

func TestInteractiveSuccessResetsRetries(t *testing.T) {
	asker := &scriptedAsker{answers: []string{"Class 2", "1.0"}}
	res, err := newService(oracle.Offline{}).Interactive(context.Background(), "Validate DESIGN-002", asker)
	require.NoError(t, err)
	assert.Empty(t, res.MissingAttributes)
	assert.Equal(t, "Class 2", res.Attributes[domain.FieldConductorClass])
	assert.Equal(t, 1.0, res.Attributes[domain.FieldInsulationThickness])
	assert.Equal(t, domain.StatusPass, statusOf(res, domain.FieldInsulationThickness))
}

func TestInteractiveDeclineDropsField(t *testing.T) {
	asker := &scriptedAsker{}
	res, err := newService(oracle.Offline{}).Interactive(context.Background(), "Validate DESIGN-002", asker)
	require.NoError(t, err)
	assert.Len(t, asker.asked, 2)
	assert.Empty(t, res.MissingAttributes)
	assert.Empty(t, res.HITLInteractions)
}

func TestStepBudgetIsFatal(t *testing.T) {
	o := newScripted(map[string]string{hdrField: `{"value": null}`})
	svc := newService(o)
	svc.MaxRetries = 1000
	_, err := svc.Interactive(context.Background(), "Validate DESIGN-002", &scriptedAsker{answers: []string{"?"}})
	require.ErrorIs(t, err, ErrStepBudgetExceeded)

	svc = newService(oracle.Offline{})
	svc.StepLimit = 2
	_, err = svc.Validate(context.Background(), "Validate DESIGN-001", false)
	require.ErrorIs(t, err, ErrStepBudgetExceeded)
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newService(oracle.Offline{}).Validate(ctx, "Validate DESIGN-001", false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "ask_missing", StepAskMissing.String())
	assert.Equal(t, "step(42)", Step(42).String())
}

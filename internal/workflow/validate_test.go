package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablecheck/internal/domain"
)

func TestToleranceBoundaries(t *testing.T) {
	cases := []struct {
		v, n float64
		want domain.Status
	}{
		{0.85, 1.0, domain.StatusWarn},
		{0.849, 1.0, domain.StatusFail},
		{0.5, 1.0, domain.StatusFail},
		{0.9, 1.0, domain.StatusWarn},
		{1.0, 1.0, domain.StatusPass},
		{1.10, 1.0, domain.StatusWarn},
		{1.05, 1.0, domain.StatusWarn},
		{1.11, 1.0, domain.StatusPass},
		{1.2, 1.0, domain.StatusPass},
		{0.85 * 1.4, 1.4, domain.StatusWarn},
		{1.10 * 1.4, 1.4, domain.StatusWarn},
		{1.0, 0, domain.StatusWarn},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Tolerance(tc.v, tc.n), "v=%g n=%g", tc.v, tc.n)
	}
}

func items(statuses ...domain.Status) []domain.ValidationItem {
	out := make([]domain.ValidationItem, len(statuses))
	for i, s := range statuses {
		out[i] = domain.ValidationItem{Field: domain.RequiredFields[i], Status: s}
	}
	return out
}

func TestRecalibrateCeiling(t *testing.T) {
	p, w, f := domain.StatusPass, domain.StatusWarn, domain.StatusFail

	assert.InDelta(t, 0.95, Recalibrate(0.95, items(p, p, p, p, p, p, p), 0, false), 1e-9)
	// two WARN that are also missing: 1 - 0.2 - 0.3
	assert.InDelta(t, 0.5, Recalibrate(0.98, items(p, p, p, w, p, p, w), 2, false), 1e-9)
	assert.InDelta(t, 0.4, Recalibrate(0.4, items(p, p, p, w, p, p, w), 2, false), 1e-9)
	// one FAIL: 1 - 0.05
	assert.InDelta(t, 0.95, Recalibrate(1.0, items(p, p, p, p, p, p, f), 0, false), 1e-9)
	// standard missing costs more than an ordinary missing field
	assert.Less(t, Recalibrate(1, items(w, p, p, p, p, p, p), 1, true), Recalibrate(1, items(p, p, p, w, p, p, p), 1, false))
	// floor
	assert.InDelta(t, 0.3, Recalibrate(0.9, items(w, w, w, w, w, w, w), 7, true), 1e-9)
	assert.InDelta(t, 0.1, Recalibrate(0.1, items(w, w, w, w, w, w, w), 7, true), 1e-9)
	// clamp
	assert.InDelta(t, 0.0, Recalibrate(-2, items(p), 0, false), 1e-9)
	assert.InDelta(t, 1.0, Recalibrate(7, nil, 0, false), 1e-9)
}

func TestRecalibrateNeverExceedsCeiling(t *testing.T) {
	statuses := []domain.Status{domain.StatusPass, domain.StatusWarn, domain.StatusFail}
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			for missing := 0; missing <= 2; missing++ {
				its := items(statuses[a], statuses[b], domain.StatusPass, domain.StatusPass, domain.StatusPass, domain.StatusPass, domain.StatusPass)
				warn, fail := 0, 0
				for _, it := range its {
					if it.Status == domain.StatusWarn {
						warn++
					}
					if it.Status == domain.StatusFail {
						fail++
					}
				}
				ceiling := 1 - 0.10*float64(warn) - 0.15*float64(missing) - 0.05*float64(fail)
				if ceiling < 0.3 {
					ceiling = 0.3
				}
				assert.LessOrEqual(t, Recalibrate(1, its, missing, false), ceiling+1e-9)
			}
		}
	}
}

func TestAssessNormalizesOracleReply(t *testing.T) {
	attrs := seedDesigns()["DESIGN-002"].Attributes()
	o := newScripted(map[string]string{hdrValidate: "```json\n" + `{
  "validation": [
    {"field": "standard", "status": "pass", "expected": "IEC 60502-1", "comment": "ok"},
    {"field": "voltage", "status": "PASS", "expected": "0.6/1 kV"},
    {"field": "conductor_class", "status": "PASS", "comment": "assumed"},
    {"field": "csa", "status": "PASS", "expected": 16},
    {"field": "bogus", "status": "FAIL"},
    {"field": "insulation_material", "status": "MAYBE"}
  ],
  "reasoning": "mostly fine",
  "confidence": 0.99
}` + "\n```"})

	a := Validator{Oracle: o}.Assess(context.Background(), attrs, DetectMissing(attrs), true)
	require.False(t, a.Degraded)
	require.Len(t, a.Items, len(domain.RequiredFields))
	for i, it := range a.Items {
		assert.Equal(t, domain.RequiredFields[i], it.Field)
	}
	byField := map[string]domain.ValidationItem{}
	for _, it := range a.Items {
		byField[it.Field] = it
	}
	assert.Equal(t, domain.StatusPass, byField[domain.FieldStandard].Status)
	assert.Equal(t, "16", byField[domain.FieldCSA].Expected)
	assert.Equal(t, domain.StatusWarn, byField[domain.FieldConductorClass].Status, "missing fields are WARN whatever the oracle says")
	assert.Equal(t, domain.StatusWarn, byField[domain.FieldInsulationThickness].Status)
	assert.Equal(t, domain.StatusPass, byField[domain.FieldInsulationMaterial].Status, "filled from rule tables")
	assert.Equal(t, "mostly fine", a.Reasoning)
	assert.InDelta(t, 0.5, a.Confidence, 1e-9)
}

func TestAssessMissingConfidence(t *testing.T) {
	o := newScripted(map[string]string{hdrValidate: `{"validation": [
  {"field": "standard", "status": "PASS"},
  {"field": "voltage", "status": "PASS"},
  {"field": "conductor_material", "status": "PASS"},
  {"field": "conductor_class", "status": "PASS"},
  {"field": "csa", "status": "PASS"},
  {"field": "insulation_material", "status": "PASS"},
  {"field": "insulation_thickness", "status": "PASS"}
], "reasoning": "all compliant"}`})
	attrs := seedDesigns()["DESIGN-001"].Attributes()
	a := Validator{Oracle: o}.Assess(context.Background(), attrs, nil, true)
	require.False(t, a.Degraded)
	require.Len(t, a.Items, 7)
	assert.Zero(t, a.Confidence, "an absent confidence is not raised to the ceiling")
}

func TestAssessDegradedOnUnparseableReply(t *testing.T) {
	o := newScripted(map[string]string{hdrValidate: "I think it is fine."})
	attrs := seedDesigns()["DESIGN-001"].Attributes()
	a := Validator{Oracle: o}.Assess(context.Background(), attrs, nil, true)
	assert.True(t, a.Degraded)
	assert.Empty(t, a.Items)
	assert.Equal(t, "Validation could not be completed", a.Reasoning)
	assert.Zero(t, a.Confidence)
}

func TestAssessFallsBackToRules(t *testing.T) {
	attrs := domain.Attributes{
		domain.FieldVoltage:             "0.6/1 kV",
		domain.FieldConductorMaterial:   "Cu",
		domain.FieldConductorClass:      "Class 2",
		domain.FieldCSA:                 10.0,
		domain.FieldInsulationMaterial:  "PVC",
		domain.FieldInsulationThickness: 0.8,
	}
	missing := DetectMissing(attrs)
	a := Validator{Oracle: newScripted(nil)}.Assess(context.Background(), attrs, missing, true)
	require.True(t, a.FromRules)
	require.Len(t, a.Items, 7)
	assert.Equal(t, domain.StatusWarn, a.Items[0].Status)
	assert.Equal(t, domain.StatusFail, a.Items[6].Status, "0.8 mm is below 85 percent of 1.0 mm")
	assert.Equal(t, "1 mm", a.Items[6].Expected)
	// 1 - 0.10 (warn) - 0.15 (missing) - 0.05 (fail) - 0.10 (standard)
	assert.InDelta(t, 0.6, a.Confidence, 1e-9)
}

func TestRules(t *testing.T) {
	all := Rules(seedDesigns()["DESIGN-001"].Attributes())
	for _, it := range all {
		assert.Equal(t, domain.StatusPass, it.Status, it.Field)
	}

	odd := Rules(domain.Attributes{
		domain.FieldStandard:            "BS 7671",
		domain.FieldVoltage:             "0.7/1 kV",
		domain.FieldConductorMaterial:   "Gold",
		domain.FieldConductorClass:      "Class 3",
		domain.FieldCSA:                 11.0,
		domain.FieldInsulationMaterial:  "Rubber",
		domain.FieldInsulationThickness: 1.0,
	})
	want := []domain.Status{
		domain.StatusWarn, domain.StatusFail, domain.StatusFail, domain.StatusFail,
		domain.StatusFail, domain.StatusWarn, domain.StatusWarn,
	}
	for i, it := range odd {
		assert.Equal(t, want[i], it.Status, it.Field)
	}

	n, ok := NominalThickness("xlpe", 95)
	assert.True(t, ok)
	assert.Equal(t, 1.1, n)
	_, ok = NominalThickness("PVC", 11)
	assert.False(t, ok)
}

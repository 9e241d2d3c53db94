package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"cablecheck/internal/domain"
)

func routePrompt(input string) string {
	return fmt.Sprintf(`You are a routing supervisor for a cable design validation service.

Classify the input into exactly one route:

FETCH_DESIGN: the input names a stored design by id (DESIGN-<digits>).
  Examples: "Validate DESIGN-001", "check design-002 please"
EXTRACT_FROM_TEXT: the input states cable specifications directly.
  Examples: "IEC 60502-1, 10mm² Cu", "0.6/1kV cable with PVC insulation"
IGNORE: the input is unrelated to cable design.
  Examples: "What's the weather?", "Tell me a joke"

Input: %q

Reply with JSON only: {"route":"FETCH_DESIGN"} or {"route":"EXTRACT_FROM_TEXT"} or {"route":"IGNORE"}`, input)
}

func designIDPrompt(input string) string {
	return fmt.Sprintf(`Extract design ID from the input. A design ID looks like DESIGN-<digits>.

Input: %q

Reply with JSON only: {"design_id":"DESIGN-001"} or {"design_id":null} when none is present.`, input)
}

func extractPrompt(input string) string {
	return fmt.Sprintf(`Extract cable specifications from text.

Only report values that are explicitly stated. Use null for anything not stated; never guess.
Fields:
  standard (string, e.g. "IEC 60502-1")
  voltage (string, e.g. "0.6/1 kV")
  conductor_material (string, e.g. "Cu" or "Al")
  conductor_class (string, e.g. "Class 2")
  csa (number, cross-sectional area in mm²)
  insulation_material (string, e.g. "PVC", "XLPE")
  insulation_thickness (number, mm)

Text: %q

Reply with JSON only, exactly these seven keys.`, input)
}

func fieldPrompt(field, answer string) string {
	kind := "a string"
	if domain.IsNumericField(field) {
		kind = "a number without units"
	}
	return fmt.Sprintf(`Extract ONLY the value for %q from the user's answer. The value must be %s.

User input: %q

Reply with JSON only: {"value": ...} or {"value": null} when the answer does not contain it.`, field, kind, answer)
}

func validationPrompt(attrs domain.Attributes, missing []string, initial bool) string {
	data, _ := json.MarshalIndent(attrs, "", "  ")
	pass := "Re-validation after human input"
	if initial {
		pass = "Initial validation; missing fields are WARN"
	}
	missingText := "none"
	if len(missing) > 0 {
		missingText = strings.Join(missing, ", ")
	}
	var fields strings.Builder
	for _, f := range domain.RequiredFields {
		fmt.Fprintf(&fields, `    {"field": %q, "status": "PASS|WARN|FAIL", "expected": "...", "comment": "..."},`+"\n", f)
	}
	return fmt.Sprintf(`You are an expert cable design validation engineer.

Design attributes:
%s

Missing fields: %s
Pass: %s

Status rules:
  PASS: value matches the IEC nominal, or exceeds it by more than 10%%.
  WARN: value is 85%% to 99%% of nominal, or 101%% to 110%% of nominal.
  WARN: field is null. A null standard is WARN because the validation basis is uncertain.
  FAIL: value is below 85%% of nominal, does not exist in the IEC tables, or is a prohibited combination.

References:
  IEC 60228 covers conductor_material, conductor_class and csa (nominal sizes 1.5, 2.5, 4, 6, 10, 16, 25, 35, 50, 70, 95, 120 ...).
  IEC 60502-1 covers voltage (0.6/1 kV to 18/30 kV), insulation_material and insulation_thickness per CSA.

Confidence starts at 1.0: subtract 0.15 per missing field, 0.10 per WARN, 0.05 per FAIL and 0.25 for a missing standard.

Reply with JSON only:
{
  "validation": [
%s  ],
  "reasoning": "overall assessment",
  "confidence": 0.0
}`, data, missingText, pass, fields.String())
}

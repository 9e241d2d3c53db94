package workflow

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"cablecheck/internal/domain"
)

// Nominal conductor sizes of IEC 60228, mm².
var standardCSA = []float64{1.5, 2.5, 4, 6, 10, 16, 25, 35, 50, 70, 95, 120, 150, 185, 240, 300, 400, 500, 630}

var ratedVoltages = map[string]bool{
	"0.6/1kv": true, "1.8/3kv": true, "3.6/6kv": true, "6/10kv": true,
	"8.7/15kv": true, "12/20kv": true, "18/30kv": true,
}

// Nominal insulation thickness in mm for 0.6/1 kV cables, IEC 60502-1
// tables 5 and 6, keyed by CSA.
var nominalThickness = map[string]map[float64]float64{
	"PVC": {
		1.5: 0.8, 2.5: 0.8, 4: 1.0, 6: 1.0, 10: 1.0, 16: 1.0, 25: 1.2, 35: 1.2,
		50: 1.4, 70: 1.4, 95: 1.6, 120: 1.6, 150: 1.8, 185: 2.0, 240: 2.2, 300: 2.4,
	},
	"XLPE": {
		1.5: 0.7, 2.5: 0.7, 4: 0.7, 6: 0.7, 10: 0.7, 16: 0.7, 25: 0.9, 35: 0.9,
		50: 1.0, 70: 1.1, 95: 1.1, 120: 1.2, 150: 1.4, 185: 1.6, 240: 1.7, 300: 1.8,
	},
	"EPR": {
		1.5: 1.0, 2.5: 1.0, 4: 1.0, 6: 1.0, 10: 1.0, 16: 1.0, 25: 1.2, 35: 1.2,
		50: 1.4, 70: 1.4, 95: 1.6, 120: 1.6, 150: 1.8, 185: 2.0, 240: 2.2, 300: 2.4,
	},
}

var (
	voltagePattern = regexp.MustCompile(`^\d+(\.\d+)?/\d+(\.\d+)?kv$`)
	classPattern   = regexp.MustCompile(`^(class)?([0-9])$`)
)

// NominalThickness returns the reference insulation thickness for material
// and csa at 0.6/1 kV.
func NominalThickness(material string, csa float64) (float64, bool) {
	table, ok := nominalThickness[insulationKey(material)]
	if !ok {
		return 0, false
	}
	for size, n := range table {
		if math.Abs(size-csa) < epsilon {
			return n, true
		}
	}
	return 0, false
}

func insulationKey(material string) string {
	m := strings.ToUpper(strings.TrimSpace(material))
	switch {
	case strings.Contains(m, "XLPE"):
		return "XLPE"
	case strings.Contains(m, "EPR"):
		return "EPR"
	case strings.Contains(m, "PVC"):
		return "PVC"
	}
	return ""
}

func isStandardCSA(v float64) bool {
	for _, s := range standardCSA {
		if math.Abs(s-v) < epsilon {
			return true
		}
	}
	return false
}

func compact(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Rules grades attrs without the oracle. It is used when the oracle cannot
// be reached and to fill entries the oracle left out.
func Rules(attrs domain.Attributes) []domain.ValidationItem {
	items := make([]domain.ValidationItem, 0, len(domain.RequiredFields))
	for _, f := range domain.RequiredFields {
		items = append(items, ruleFor(f, attrs))
	}
	return items
}

func ruleFor(field string, attrs domain.Attributes) domain.ValidationItem {
	item := domain.ValidationItem{Field: field}
	if attrs.IsMissing(field) {
		item.Status = domain.StatusWarn
		item.Comment = missingComment(field)
		return item
	}
	v := attrs[field]
	switch field {
	case domain.FieldStandard:
		item.Expected = "IEC 60502-1"
		s := compact(v)
		if strings.Contains(s, "60502") || strings.Contains(s, "60228") {
			item.Status = domain.StatusPass
			item.Comment = "Recognized IEC standard."
		} else {
			item.Status = domain.StatusWarn
			item.Comment = fmt.Sprintf("Standard %v is not covered by the reference tables.", v)
		}
	case domain.FieldVoltage:
		item.Expected = "0.6/1 kV to 18/30 kV"
		s := compact(v)
		switch {
		case ratedVoltages[s]:
			item.Status = domain.StatusPass
			item.Comment = "Rated voltage listed in IEC 60502-1."
		case voltagePattern.MatchString(s):
			item.Status = domain.StatusFail
			item.Comment = fmt.Sprintf("%v is not a rated voltage of IEC 60502-1.", v)
		default:
			item.Status = domain.StatusWarn
			item.Comment = fmt.Sprintf("Cannot interpret voltage %v as Uo/U.", v)
		}
	case domain.FieldConductorMaterial:
		item.Expected = "Cu or Al"
		switch compact(v) {
		case "cu", "copper", "al", "aluminium", "aluminum":
			item.Status = domain.StatusPass
			item.Comment = "Conductor material permitted by IEC 60228."
		default:
			item.Status = domain.StatusFail
			item.Comment = fmt.Sprintf("Conductor material %v is not permitted by IEC 60228.", v)
		}
	case domain.FieldConductorClass:
		item.Expected = "Class 1, 2, 5 or 6"
		m := classPattern.FindStringSubmatch(compact(v))
		switch {
		case m == nil:
			item.Status = domain.StatusWarn
			item.Comment = fmt.Sprintf("Cannot interpret conductor class %v.", v)
		case m[2] == "1" || m[2] == "2" || m[2] == "5" || m[2] == "6":
			item.Status = domain.StatusPass
			item.Comment = "Conductor class defined by IEC 60228."
		default:
			item.Status = domain.StatusFail
			item.Comment = fmt.Sprintf("Class %s is not defined by IEC 60228.", m[2])
		}
	case domain.FieldCSA:
		item.Expected = "IEC 60228 nominal size"
		n, ok := numericValue(v)
		switch {
		case !ok:
			item.Status = domain.StatusWarn
			item.Comment = fmt.Sprintf("Cannot read CSA %v as a number.", v)
		case isStandardCSA(n):
			item.Status = domain.StatusPass
			item.Comment = fmt.Sprintf("%g mm² is a nominal size in IEC 60228 table 1.", n)
		default:
			item.Status = domain.StatusFail
			item.Comment = fmt.Sprintf("%g mm² is not a nominal size in IEC 60228 table 1.", n)
		}
	case domain.FieldInsulationMaterial:
		item.Expected = "PVC, XLPE or EPR"
		if insulationKey(fmt.Sprint(v)) != "" {
			item.Status = domain.StatusPass
			item.Comment = "Insulation compound covered by IEC 60502-1."
		} else {
			item.Status = domain.StatusWarn
			item.Comment = fmt.Sprintf("No reference thickness table for %v.", v)
		}
	case domain.FieldInsulationThickness:
		thicknessRule(&item, v, attrs)
	}
	return item
}

func thicknessRule(item *domain.ValidationItem, v any, attrs domain.Attributes) {
	t, ok := numericValue(v)
	if !ok {
		item.Status = domain.StatusWarn
		item.Comment = fmt.Sprintf("Cannot read insulation thickness %v as a number.", v)
		return
	}
	if !attrs.IsMissing(domain.FieldVoltage) && !ratedVoltages[compact(attrs[domain.FieldVoltage])] {
		item.Status = domain.StatusWarn
		item.Comment = "Reference thickness is only tabulated for 0.6/1 kV."
		return
	}
	csa, csaOK := numericValue(attrs[domain.FieldCSA])
	material, _ := attrs[domain.FieldInsulationMaterial].(string)
	n, found := NominalThickness(material, csa)
	if !csaOK || !found {
		item.Status = domain.StatusWarn
		item.Comment = "Nominal thickness unknown without a standard CSA and insulation material."
		return
	}
	item.Expected = fmt.Sprintf("%g mm", n)
	item.Status = Tolerance(t, n)
	pct := t / n * 100
	switch item.Status {
	case domain.StatusPass:
		item.Comment = fmt.Sprintf("%g mm is %.0f%% of the nominal %g mm.", t, pct, n)
	case domain.StatusWarn:
		item.Comment = fmt.Sprintf("%g mm is %.0f%% of the nominal %g mm; review against manufacturing tolerance.", t, pct, n)
	default:
		item.Comment = fmt.Sprintf("%g mm is only %.0f%% of the nominal %g mm.", t, pct, n)
	}
}

func missingComment(field string) string {
	if field == domain.FieldStandard {
		return "No standard specified; the validation basis is uncertain."
	}
	return fmt.Sprintf("%s not provided; cannot verify compliance.", strings.ReplaceAll(field, "_", " "))
}

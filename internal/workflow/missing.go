package workflow

import "cablecheck/internal/domain"

// DetectMissing lists required fields that are absent, null or empty, in
// required-field order.
func DetectMissing(attrs domain.Attributes) []string {
	missing := []string{}
	for _, f := range domain.RequiredFields {
		if attrs.IsMissing(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

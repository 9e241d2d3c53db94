package workflow

import (
	"context"
	"strings"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

var cableKeywords = []string{"iec", "kv", "copper", "cu", "cable", "insulation"}

// Classify asks the oracle for a route and falls back to FallbackRoute when
// the oracle is down, unparseable, or names a route that does not exist.
func Classify(ctx context.Context, o oracle.Oracle, input string) domain.Route {
	var reply struct {
		Route string `json:"route"`
	}
	if err := oracle.Ask(ctx, o, routePrompt(input), &reply); err == nil {
		if route, ok := domain.ParseRoute(reply.Route); ok {
			return route
		}
	}
	return FallbackRoute(input)
}

// FallbackRoute classifies input with keyword matching alone.
func FallbackRoute(input string) domain.Route {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "design-") {
		return domain.RouteFetchDesign
	}
	for _, kw := range cableKeywords {
		if strings.Contains(lower, kw) {
			return domain.RouteExtractFromText
		}
	}
	return domain.RouteIgnore
}

package oracle

import (
	"context"
	"fmt"
)

// Offline never reaches a model; every call degrades to the deterministic
// fallbacks of the workflow.
type Offline struct {
	Reason string
}

func (o Offline) Complete(context.Context, string) (string, error) {
	if o.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, o.Reason)
}

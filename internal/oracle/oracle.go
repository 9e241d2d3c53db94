// Package oracle wraps the language model used to classify requests, extract
// attributes and assess compliance. Callers only see prompt in, text out.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable marks a failure to reach the model at all, as opposed to a
// reply that could not be understood.
var ErrUnavailable = errors.New("oracle unavailable")

type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ParseError reports a reply that did not contain the expected JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable oracle reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err came from decoding a reply.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Ask sends prompt and decodes the first JSON object of the reply into dst.
// Transport failures wrap ErrUnavailable; decoding failures are *ParseError.
func Ask(ctx context.Context, o Oracle, prompt string, dst any) error {
	if o == nil {
		return ErrUnavailable
	}
	raw, err := o.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	obj, err := ExtractObject(raw)
	if err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

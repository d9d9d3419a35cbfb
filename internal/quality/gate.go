// Package quality scores generated content and wraps generation calls in an
// attempt, validate and retry discipline.
package quality

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoResult is returned in Outcome.Err when every attempt failed and no
// fallback was supplied.
var ErrNoResult = errors.New("quality gate: no attempt produced a result")

// GateOptions configures one gated call.
type GateOptions struct {
	Name       string  // Stage name for logs
	Threshold  float64 // Acceptance score, 0..100
	MaxRetries int     // Extra attempts after the first
}

// Outcome is the result of a gated call.
type Outcome[T any] struct {
	Value    T
	Score    float64 // 0..100
	Attempts int
	Accepted bool  // Score reached the threshold
	FellBack bool  // Value came from the fallback
	Err      error // Last attempt error, set when no attempt succeeded
}

// Degraded reports whether the value came from an attempt but is below threshold.
func (o Outcome[T]) Degraded() bool {
	return !o.Accepted && o.Err == nil
}

// Usable reports whether Value holds an attempt or fallback result.
func (o Outcome[T]) Usable() bool {
	return o.Err == nil || o.FellBack
}

// Normalized returns the score in the 0..1 storage range.
func (o Outcome[T]) Normalized() float64 {
	return Normalize(o.Score)
}

// Attempt produces a candidate result.
type Attempt[T any] func(ctx context.Context) (T, error)

// Validator scores a candidate on a 0..100 scale.
type Validator[T any] func(T) float64

// Gate calls attempt at most MaxRetries+1 times. The first result scoring at
// or above Threshold is returned. If none reaches it, the best scoring result
// is returned with Accepted false. If every attempt returned an error,
// Outcome.Err holds the last one and the fallback result, when supplied,
// becomes the value.
//
// Retries are immediate. Backoff for transport errors belongs to the
// generator's own retry wrapper.
func Gate[T any](ctx context.Context, opts GateOptions, attempt Attempt[T], validate Validator[T], fallback func() T) Outcome[T] {
	var (
		out     Outcome[T]
		have    bool
		lastErr error
	)

	for i := 0; i <= max(0, opts.MaxRetries); i++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		out.Attempts++
		value, err := attempt(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		score := clamp(validate(value))
		if !have || score > out.Score {
			out.Value, out.Score, have = value, score, true
		}
		if score >= opts.Threshold {
			out.Value, out.Score = value, score
			out.Accepted = true
			return out
		}
	}

	if have {
		return out
	}

	if lastErr == nil {
		lastErr = ErrNoResult
	}
	out.Err = fmt.Errorf("%s: %w", gateName(opts), lastErr)

	if fallback != nil {
		out.Value = fallback()
		out.FellBack = true
	}
	return out
}

func gateName(opts GateOptions) string {
	if opts.Name == "" {
		return "quality gate"
	}
	return opts.Name
}

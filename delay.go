package pricingflow

import (
	"time"
)

// delayGrace is added to a delay step's timeout so the wait itself never
// trips it
const delayGrace = 30 * time.Second

// NewDelayStep returns a step that waits for d and then passes its input
// through unchanged. The wait ends early, with the context's error, when the
// run is cancelled.
func NewDelayStep[T any](id, name string, d time.Duration) *Step[T, T] {
	return NewStep(id, name,
		func(ctx *StepContext, input T) (T, error) {
			ctx.Logger.Info().Dur("delay", d).Msg("Waiting before next step")

			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case <-timer.C:
				return input, nil
			case <-ctx.Done():
				return input, ctx.Err()
			}
		},
		WithTimeout(d+delayGrace),
	)
}

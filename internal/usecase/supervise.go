package usecase

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// supervise runs a timer task so that neither its error nor a panic leaves
// the callback.
func supervise(ctx context.Context, logger Logger, name string, task func(context.Context) error) {
	var pc panics.Catcher
	pc.Try(func() {
		if err := task(ctx); err != nil {
			logger.Debugf("[%s] run ended with error: %v", name, err)
		}
	})
	if r := pc.Recovered(); r != nil {
		logger.Errorf("[%s] run panicked: %v", name, r.AsError())
	}
}

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
)

// Strategy is one way of performing an operation.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ErrNoStrategies is returned by RunFallback when given nothing to run.
var ErrNoStrategies = errors.New("no strategies")

// RunFallback tries strategies in order and returns the first success along
// with the name of the strategy that produced it. Each fallback is logged and
// counted. Cancellation and authorization failures stop the chain, since a
// later strategy would fail the same way. When every strategy fails the
// errors are joined.
func RunFallback[T any](ctx context.Context, log hclog.Logger, metrics *goSession.Metrics, strategies ...Strategy[T]) (T, string, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, "", ErrNoStrategies
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	var errs []error
	for i, s := range strategies {
		if i > 0 {
			metrics.Inc(goSession.MetricUploadFallback)
			log.Info("falling back", "from", strategies[i-1].Name, "to", s.Name)
		}
		v, err := s.Run(ctx)
		if err == nil {
			return v, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		log.Warn("strategy failed", "strategy", s.Name, "status", goSession.StatusCode(err), "error", err)
		if stopsFallback(ctx, err) {
			break
		}
	}
	return zero, "", errors.Join(errs...)
}

func stopsFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, goSession.ErrUnauthorized) || errors.Is(err, goSession.ErrForbidden)
}

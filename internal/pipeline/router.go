package pipeline

import (
	"fmt"
	"log/slog"

	"context"

	"uvcal/internal/metrics"
	"uvcal/internal/response"
)

// router implements Processor and routes jobs to their estimation strategy.
type router struct {
	log        *slog.Logger
	estimators map[Method]response.Estimator
}

func newRouter(logger *slog.Logger, estimators map[Method]response.Estimator) Processor {
	return &router{
		log:        logger,
		estimators: estimators,
	}
}

func (r *router) Process(ctx context.Context, job Job) Result {
	est, ok := r.estimators[job.Method]
	if !ok {
		return Result{Job: job, Error: fmt.Errorf("unknown estimation method: %s", job.Method)}
	}

	res, err := metrics.ObserveEstimate(string(job.Method), string(job.Request.Band), func() (response.Result, error) {
		return est.Estimate(ctx, job.Request)
	})
	return Result{Job: job, Response: res, Error: err}
}

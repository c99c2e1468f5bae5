package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"uvcal/internal/response"
)

type stubEstimator struct {
	res   response.Result
	err   error
	calls int
}

func (s *stubEstimator) Estimate(ctx context.Context, req response.Request) (response.Result, error) {
	s.calls++
	return s.res, s.err
}

func testJob(id string, method Method) Job {
	return Job{
		ID:     id,
		Method: method,
		Request: response.Request{
			Band:     response.FUV,
			RA:       176.9,
			Dec:      0.25,
			Aperture: 0.01,
			Ranges:   []response.TimeRange{{Start: 1000, End: 1100}},
		},
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for result")
		return Result{}
	}
}

func TestPipelineRoutesToSelectedMethod(t *testing.T) {
	aperture := &stubEstimator{res: response.Result{Response: 0.9, Exposure: 100}}
	mapEst := &stubEstimator{res: response.Result{Response: 0.7, Exposure: 100}}

	p := New(context.Background(), 2, slog.Default(), nil, map[Method]response.Estimator{
		MethodAperture: aperture,
		MethodMap:      mapEst,
	})
	defer p.Stop()

	ch, unsub := p.Subscribe()
	defer unsub()

	if err := p.Submit(testJob("j-1", MethodMap)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res := waitResult(t, ch)
	if res.Error != nil {
		t.Fatalf("unexpected error: %v", res.Error)
	}
	if res.Response.Response != 0.7 {
		t.Fatalf("wrong estimator ran: %+v", res.Response)
	}
	if mapEst.calls != 1 || aperture.calls != 0 {
		t.Fatalf("routing miscounted: map=%d aperture=%d", mapEst.calls, aperture.calls)
	}
}

func TestPipelineReportsEstimatorError(t *testing.T) {
	failing := &stubEstimator{err: response.ErrNoAspectCoverage}
	p := New(context.Background(), 1, slog.Default(), nil, map[Method]response.Estimator{
		MethodAperture: failing,
	})
	defer p.Stop()

	ch, unsub := p.Subscribe()
	defer unsub()

	if err := p.Submit(testJob("j-2", MethodAperture)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res := waitResult(t, ch)
	if !errors.Is(res.Error, response.ErrNoAspectCoverage) {
		t.Fatalf("expected ErrNoAspectCoverage, got %v", res.Error)
	}
}

func TestPipelineRejectsUnknownMethod(t *testing.T) {
	p := New(context.Background(), 1, slog.Default(), nil, map[Method]response.Estimator{})
	defer p.Stop()

	ch, unsub := p.Subscribe()
	defer unsub()

	if err := p.Submit(testJob("j-3", Method("nonsense"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res := waitResult(t, ch)
	if res.Error == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	est := &stubEstimator{res: response.Result{Response: 1}}
	p := New(context.Background(), 1, slog.Default(), nil, map[Method]response.Estimator{
		MethodAperture: est,
	})
	defer p.Stop()

	ch, unsub := p.Subscribe()
	unsub()

	// Channel must be closed after unsubscribe.
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/model"
)

func TestHandlerRegistry_Resolve(t *testing.T) {
	reg := NewHandlerRegistry()
	wildcard := NewManualHandler()
	specific := NewManualHandler()
	reg.Register(WildcardPhase, model.ActivityKindTask, wildcard)
	reg.Register("planning", model.ActivityKindTask, specific)

	def := model.ActivityDefinition{Phase: "planning", Code: "a", Kind: model.ActivityKindTask, Manual: true}
	h, err := reg.Resolve(def)
	if err != nil {
		t.Fatal(err)
	}
	if h != Handler(specific) {
		t.Error("phase-specific registration must win over wildcard")
	}

	def.Phase = "execution"
	h, err = reg.Resolve(def)
	if err != nil {
		t.Fatal(err)
	}
	if h != Handler(wildcard) {
		t.Error("expected wildcard fallback")
	}
}

func TestHandlerRegistry_Resolve_miss(t *testing.T) {
	reg := NewHandlerRegistry()
	reg.Register(WildcardPhase, model.ActivityKindTask, NewManualHandler())

	_, err := reg.Resolve(model.ActivityDefinition{Phase: "planning", Kind: model.ActivityKindReview, Manual: true})
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrHandlerNotFound {
		t.Errorf("Resolve = %v, want HANDLER_NOT_FOUND", err)
	}
}

// An automated registration that rejects a manual definition must fall
// through to a compatible wildcard instead of shadowing it.
func TestHandlerRegistry_Resolve_capabilityFallthrough(t *testing.T) {
	reg := NewHandlerRegistry()
	manual := NewManualHandler()
	reg.Register("execution", model.ActivityKindTask, NewAutomatedHandler(nil, RetryPolicy{MaxAttempts: 1}, nil))
	reg.Register(WildcardPhase, model.ActivityKindTask, manual)

	def := model.ActivityDefinition{Phase: "execution", Code: "upload", Kind: model.ActivityKindTask, Manual: true}
	h, err := reg.Resolve(def)
	if err != nil {
		t.Fatal(err)
	}
	if h != Handler(manual) {
		t.Error("manual activity must fall through to the manual wildcard")
	}
}

func TestManualHandler_Execute_pending(t *testing.T) {
	h := NewManualHandler()

	res, err := h.Execute(context.Background(), model.ActivityDefinition{Manual: true}, model.ActivityInstance{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed {
		t.Error("manual execute must never complete inline")
	}
}

func TestAutomatedHandler_Retries(t *testing.T) {
	var attempts int
	h := NewAutomatedHandler(
		func(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) (map[string]any, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return map[string]any{"generated": true}, nil
		},
		RetryPolicy{MaxAttempts: 3, BackoffInitial: time.Millisecond, BackoffMultiplier: 2, BackoffMax: 5 * time.Millisecond},
		nil,
	)

	res, err := h.Execute(context.Background(), model.ActivityDefinition{}, model.ActivityInstance{})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}
	if !res.Completed || res.Metadata["generated"] != true {
		t.Errorf("result = %+v", res)
	}
}

func TestAutomatedHandler_ExhaustsAttempts(t *testing.T) {
	var attempts int
	h := NewAutomatedHandler(
		func(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) (map[string]any, error) {
			attempts++
			return nil, errors.New("permanent")
		},
		RetryPolicy{MaxAttempts: 2, BackoffInitial: time.Millisecond, BackoffMultiplier: 2, BackoffMax: 5 * time.Millisecond},
		nil,
	)

	_, err := h.Execute(context.Background(), model.ActivityDefinition{Phase: "execution", Code: "validate"}, model.ActivityInstance{})
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrHandlerExecutionFailed {
		t.Fatalf("Execute = %v, want HANDLER_EXECUTION_FAILED", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestRetryPolicy_NextBackoff(t *testing.T) {
	p := RetryPolicy{BackoffInitial: 100 * time.Millisecond, BackoffMultiplier: 2, BackoffMax: 300 * time.Millisecond}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 300 * time.Millisecond},
	}
	for _, c := range cases {
		if got := p.NextBackoff(c.attempt); got != c.want {
			t.Errorf("NextBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestKeyedMutex_Serializes(t *testing.T) {
	km := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same-key")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d", counter)
	}
	if len(km.locks) != 0 {
		t.Errorf("lock table size = %d, entries should be reclaimed", len(km.locks))
	}
}

func TestAutomatedHandler_RetriesRecorded(t *testing.T) {
	m := observability.InitMetrics(prometheus.NewRegistry())

	var attempts int
	h := NewAutomatedHandler(
		func(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) (map[string]any, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return nil, nil
		},
		RetryPolicy{MaxAttempts: 3, BackoffInitial: time.Millisecond, BackoffMultiplier: 2, BackoffMax: 5 * time.Millisecond},
		nil,
	).WithMetrics(m)

	def := model.ActivityDefinition{Phase: "execution", Code: "validate", Kind: model.ActivityKindTask}
	if _, err := h.Execute(context.Background(), def, model.ActivityInstance{}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	// Attempts 2 and 3 are retries; the first attempt is not.
	got := testutil.ToFloat64(m.HandlerRetriesTotal.WithLabelValues("execution", model.ActivityKindTask))
	if got != 2 {
		t.Errorf("retries recorded = %v, want 2", got)
	}
}

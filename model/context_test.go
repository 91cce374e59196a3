package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	rctx := &RequestContext{SubjectID: "user-1"}
	if err := rctx.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	empty := &RequestContext{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for missing SubjectID")
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rctx := &RequestContext{Roles: []string{"test_manager", "executive"}}
	if !rctx.HasRole("executive") {
		t.Error("expected HasRole(executive) = true")
	}
	if rctx.HasRole("admin") {
		t.Error("expected HasRole(admin) = false")
	}
}

func TestRequestContext_roundTrip(t *testing.T) {
	rctx := &RequestContext{SubjectID: "user-1", CorrelationID: "corr-1"}
	ctx := WithRequestContext(context.Background(), rctx)

	got := RequestContextFrom(ctx)
	if got == nil || got.SubjectID != "user-1" {
		t.Fatalf("RequestContextFrom = %+v", got)
	}

	if RequestContextFrom(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

func TestMustRequestContext_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustRequestContext(context.Background())
}

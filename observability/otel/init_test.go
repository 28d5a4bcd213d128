package otel

import (
	"context"
	"errors"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "treasuryd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant = treasury,, broken ,=empty")
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["x-tenant"] != "treasury" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitRejectsSampleRatio(t *testing.T) {
	if _, err := Init(context.Background(), Config{ServiceName: "treasuryd", Traces: true, SampleRatio: 1.5}); err == nil {
		t.Fatalf("expected an out of range ratio to be rejected")
	}
}

func TestCombineShutdownReportsEveryFailure(t *testing.T) {
	var order []int
	first := errors.New("first")
	second := errors.New("second")
	shutdown := combineShutdown([]shutdownFunc{
		func(context.Context) error { order = append(order, 1); return first },
		func(context.Context) error { order = append(order, 2); return second },
	})
	err := shutdown(context.Background())
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected both errors, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 {
		t.Fatalf("expected reverse order, got %v", order)
	}
}

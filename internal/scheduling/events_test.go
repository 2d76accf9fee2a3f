package scheduling

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestEventsCaptureTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")
	if _, err := f.bookings.Create(ctx, uuid.New(), f.provider.ID, monday, clock(t, "10:00"), clock(t, "11:00")); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	events := f.repo.Events()
	last := events[len(events)-1]
	if last.EventType != EventBookingCreated {
		t.Fatalf("last event = %s", last.EventType)
	}
	if !strings.Contains(last.TraceContext["traceparent"], traceID.String()) {
		t.Fatalf("trace context = %v, want traceparent for %s", last.TraceContext, traceID)
	}
}

func TestEventsWithoutSpanHaveNoTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")
	f.book(t, uuid.New(), monday, "10:00", "11:00")

	for _, ev := range f.repo.Events() {
		if len(ev.TraceContext) != 0 {
			t.Fatalf("%s: trace context = %v, want none", ev.EventType, ev.TraceContext)
		}
	}
}

package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTopic(t *testing.T) {
	if got := Topic("BOOKING_CREATED"); got != "scheduling.booking_created" {
		t.Fatalf("Topic = %q", got)
	}
}

func TestToMessageCarriesKeyAndHeaders(t *testing.T) {
	id := uuid.New()
	created := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	msg := toMessage(Record{
		ID:          42,
		EventType:   "BOOKING_CANCELLED",
		AggregateID: &id,
		Payload:     []byte(`{"cancelled_by":"client"}`),
		CreatedAt:   created,
	})

	if msg.Topic != "scheduling.booking_cancelled" {
		t.Fatalf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != id.String() {
		t.Fatalf("key = %q, want aggregate id", msg.Key)
	}
	if string(msg.Value) != `{"cancelled_by":"client"}` {
		t.Fatalf("value = %q", msg.Value)
	}
	if !msg.Time.Equal(created) {
		t.Fatalf("time = %s", msg.Time)
	}

	c := &headerCarrier{headers: msg.Headers}
	if c.Get("event_id") != "42" || c.Get("event_type") != "BOOKING_CANCELLED" {
		t.Fatalf("headers = %+v", msg.Headers)
	}
}

func TestToMessageWithoutAggregate(t *testing.T) {
	msg := toMessage(Record{ID: 1, EventType: "X"})
	if msg.Key != nil {
		t.Fatalf("key = %q, want nil", msg.Key)
	}
}

func TestToMessageCarriesStoredTraceContext(t *testing.T) {
	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg := toMessage(Record{
		ID:           7,
		EventType:    "BOOKING_CREATED",
		TraceContext: []byte(`{"traceparent":"` + parent + `","tracestate":"vendor=1"}`),
	})

	c := &headerCarrier{headers: msg.Headers}
	if c.Get("traceparent") != parent || c.Get("tracestate") != "vendor=1" {
		t.Fatalf("headers = %+v", msg.Headers)
	}
	if c.Get("event_id") != "7" {
		t.Fatalf("event_id = %q", c.Get("event_id"))
	}
}

func TestToMessageIgnoresEmptyTraceContext(t *testing.T) {
	for _, raw := range []string{"", "{}", "not json"} {
		msg := toMessage(Record{ID: 1, EventType: "X", TraceContext: []byte(raw)})
		if len(msg.Headers) != 2 {
			t.Fatalf("trace context %q: headers = %+v, want only event_id and event_type", raw, msg.Headers)
		}
	}
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	c := &headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	if len(c.Keys()) != 1 || c.Get("traceparent") != "b" {
		t.Fatalf("headers = %+v", c.headers)
	}
}

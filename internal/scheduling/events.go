package scheduling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// recordEvent appends an event to the log inside the caller's transaction,
// so the event exists if and only if the mutation it describes committed.
func recordEvent(ctx context.Context, tx Store, aggregateID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	id := aggregateID
	ev := EventLog{
		EventType:   eventType,
		AggregateID: &id,
		Payload:     data,
	}
	if len(carrier) > 0 {
		ev.TraceContext = carrier
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

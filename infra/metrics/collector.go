package metrics

import (
	"context"

	"github.com/kilianp07/planboard/core/events"
	coremetrics "github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/internal/eventbus"
)

// StartDocumentCollector records every planboard transition published on bus
// until the context is canceled or the bus closes. Sink errors are dropped.
func StartDocumentCollector(ctx context.Context, bus *eventbus.TypedBus[events.DocumentEvent], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	bus.Consume(ctx, func(ev events.DocumentEvent) {
		_ = sink.RecordDocumentTransition(coremetrics.DocumentTransition{
			DocumentType:      ev.Key.Type.String(),
			ConnectionGroupID: ev.ConnectionGroupID,
			From:              ev.From.String(),
			To:                ev.To.String(),
			Time:              ev.At,
		})
	})
}

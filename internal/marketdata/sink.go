package marketdata

import "github.com/you/dex-arb/internal/types"

// Sink receives best-effort observability records. Implementations must not block.
type Sink interface {
	RecordQuote(types.QuoteRecord)
	RecordCycle(types.CycleRecord)
}

type NopSink struct{}

func (NopSink) RecordQuote(types.QuoteRecord) {}
func (NopSink) RecordCycle(types.CycleRecord) {}

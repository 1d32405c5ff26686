package marketdata

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/dex-arb/internal/dex/core"
	imetrics "github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/retry"
	"github.com/you/dex-arb/internal/types"
)

var (
	usdc = types.TokenRef{Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6}
	dai  = types.TokenRef{Symbol: "DAI", Address: common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"), Decimals: 18}
)

func fixed(out int64) core.Adapter {
	return core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
		return types.Quote{AmountOut: big.NewInt(out)}, nil
	})
}

func failing(err error) core.Adapter {
	return core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
		return types.Quote{}, err
	})
}

func venue(id string, a core.Adapter) core.Venue {
	return core.Venue{Config: types.VenueConfig{ID: types.VenueID(id)}, Adapter: a}
}

type recordingSink struct {
	mu     sync.Mutex
	quotes []types.QuoteRecord
}

func (s *recordingSink) RecordQuote(r types.QuoteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, r)
}

func (s *recordingSink) RecordCycle(types.CycleRecord) {}

func TestCollect_KeepsConfigOrderAndDropsFailures(t *testing.T) {
	// slower venues first so completion order differs from config order
	slow := core.AdapterFunc(func(ctx context.Context, _ core.Request) (types.Quote, error) {
		time.Sleep(30 * time.Millisecond)
		return types.Quote{AmountOut: big.NewInt(1)}, nil
	})
	f := New([]core.Venue{
		venue("a", slow),
		venue("b", failing(core.ErrNoPool)),
		venue("c", fixed(3)),
		venue("d", fixed(0)),
		venue("e", failing(errors.New("boom"))),
		venue("f", fixed(6)),
	}, Config{Timeout: time.Second}, nil, nil)

	qs := f.Collect(context.Background(), usdc, dai, big.NewInt(10_000_000))
	require.Len(t, qs, 3)
	assert.Equal(t, types.VenueID("a"), qs[0].Venue)
	assert.Equal(t, types.VenueID("c"), qs[1].Venue)
	assert.Equal(t, types.VenueID("f"), qs[2].Venue)
}

func TestResults_ClassifiesOutcomes(t *testing.T) {
	f := New([]core.Venue{
		venue("ok", fixed(5)),
		venue("none", failing(core.ErrNoPool)),
		venue("zero", fixed(0)),
	}, Config{Timeout: time.Second}, nil, nil)

	res := f.Results(context.Background(), usdc, dai, big.NewInt(1))
	require.Len(t, res, 3)
	assert.True(t, res[0].OK())
	assert.ErrorIs(t, res[1].Err, core.ErrNoPool)
	assert.ErrorIs(t, res[2].Err, core.ErrNoQuote)
}

func TestCollect_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	hang := core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
		<-release
		return types.Quote{AmountOut: big.NewInt(100)}, nil
	})
	before := testutil.ToFloat64(imetrics.QuoteRequests.WithLabelValues("hang", imetrics.OutcomeTimeout))

	timeout := 100 * time.Millisecond
	f := New([]core.Venue{venue("hang", hang), venue("fast", fixed(7))}, Config{Timeout: timeout}, nil, nil)

	start := time.Now()
	qs := f.Collect(context.Background(), usdc, dai, big.NewInt(1))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, timeout+250*time.Millisecond)
	require.Len(t, qs, 1)
	assert.Equal(t, types.VenueID("fast"), qs[0].Venue)
	assert.Equal(t, before+1, testutil.ToFloat64(imetrics.QuoteRequests.WithLabelValues("hang", imetrics.OutcomeTimeout)))
}

func TestCollect_QueuedVenuesShareDeadline(t *testing.T) {
	hang := core.AdapterFunc(func(ctx context.Context, _ core.Request) (types.Quote, error) {
		<-ctx.Done()
		return types.Quote{}, ctx.Err()
	})
	venues := make([]core.Venue, 0, 7)
	for i := 0; i < 6; i++ {
		venues = append(venues, venue(string(rune('a'+i)), hang))
	}
	venues = append(venues, venue("fast", fixed(3)))

	timeout := 100 * time.Millisecond
	f := New(venues, Config{Timeout: timeout, MaxParallel: 5}, nil, nil)

	start := time.Now()
	res := f.Results(context.Background(), usdc, dai, big.NewInt(1))
	elapsed := time.Since(start)

	require.Len(t, res, 7)
	assert.Less(t, elapsed, timeout+60*time.Millisecond)
	for _, r := range res[:6] {
		assert.ErrorIs(t, r.Err, retry.ErrTimeout, string(r.Venue))
	}
}

func TestCollect_RetriesTransportNotAbsence(t *testing.T) {
	var flaky, absent atomic.Int32
	f := New([]core.Venue{
		venue("flaky", core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
			if flaky.Add(1) == 1 {
				return types.Quote{}, errors.New("connection reset")
			}
			return types.Quote{AmountOut: big.NewInt(9)}, nil
		})),
		venue("absent", core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
			absent.Add(1)
			return types.Quote{}, core.ErrNoPool
		})),
	}, Config{Timeout: time.Second, Attempts: 3, BaseDelay: time.Millisecond}, nil, nil)

	qs := f.Collect(context.Background(), usdc, dai, big.NewInt(1))
	require.Len(t, qs, 1)
	assert.EqualValues(t, 2, flaky.Load())
	assert.EqualValues(t, 1, absent.Load())
}

func TestCollect_PanicIsIsolated(t *testing.T) {
	f := New([]core.Venue{
		venue("bad", core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) { panic("nil pointer") })),
		venue("good", fixed(4)),
	}, Config{Timeout: time.Second}, nil, nil)

	res := f.Results(context.Background(), usdc, dai, big.NewInt(1))
	assert.ErrorContains(t, res[0].Err, "adapter panic")
	assert.True(t, res[1].OK())
}

func TestCollect_PublishesQuotes(t *testing.T) {
	sink := &recordingSink{}
	f := New([]core.Venue{
		venue("a", core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
			return types.Quote{Venue: "a", FeeTier: 500, AmountOut: big.NewInt(11)}, nil
		})),
		venue("b", failing(core.ErrNoQuote)),
	}, Config{Timeout: time.Second}, sink, nil)

	f.Collect(context.Background(), usdc, dai, big.NewInt(10))

	require.Len(t, sink.quotes, 1)
	r := sink.quotes[0]
	assert.Equal(t, "USDC", r.TokenIn)
	assert.Equal(t, "DAI", r.TokenOut)
	assert.Equal(t, int64(10), r.AmountIn.Int64())
	assert.Equal(t, int64(11), r.AmountOut.Int64())
	assert.Equal(t, uint32(500), r.FeeTier)
}

func TestCollect_ParallelLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	a := core.AdapterFunc(func(context.Context, core.Request) (types.Quote, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return types.Quote{AmountOut: big.NewInt(1)}, nil
	})
	venues := make([]core.Venue, 6)
	for i := range venues {
		venues[i] = venue(string(rune('a'+i)), a)
	}
	f := New(venues, Config{Timeout: time.Second, MaxParallel: 2}, nil, nil)

	assert.Len(t, f.Collect(context.Background(), usdc, dai, big.NewInt(1)), 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBestOut(t *testing.T) {
	_, ok := BestOut(nil)
	assert.False(t, ok)

	best, ok := BestOut([]types.Quote{
		{Venue: "a", AmountOut: big.NewInt(5)},
		{Venue: "b", AmountOut: big.NewInt(9)},
		{Venue: "c", AmountOut: big.NewInt(9)},
		{Venue: "d"},
	})
	require.True(t, ok)
	assert.Equal(t, types.VenueID("b"), best.Venue)
}

func TestRetryTimeoutSentinel(t *testing.T) {
	// a hung venue surfaces as ErrTimeout, not as absence
	hang := core.AdapterFunc(func(ctx context.Context, _ core.Request) (types.Quote, error) {
		<-ctx.Done()
		return types.Quote{}, ctx.Err()
	})
	f := New([]core.Venue{venue("h", hang)}, Config{Timeout: 20 * time.Millisecond}, nil, nil)
	res := f.Results(context.Background(), usdc, dai, big.NewInt(1))
	assert.ErrorIs(t, res[0].Err, retry.ErrTimeout)
	assert.False(t, core.IsAbsence(res[0].Err))
}

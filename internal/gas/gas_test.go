package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/dex-arb/internal/types"
)

var (
	usdc = types.TokenRef{Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6}
	weth = types.TokenRef{Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18}
)

type fakeReader struct {
	baseFee  *big.Int
	tip      *big.Int
	price    *big.Int
	headErr  error
	tipErr   error
	priceErr error
}

func (f *fakeReader) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &gethtypes.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeReader) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, f.tipErr }
func (f *fakeReader) SuggestGasPrice(context.Context) (*big.Int, error)  { return f.price, f.priceErr }

type fakeQuoter struct {
	quotes []types.Quote
	calls  int
	in     types.TokenRef
	amount *big.Int
}

func (f *fakeQuoter) Collect(_ context.Context, in, _ types.TokenRef, amount *big.Int) []types.Quote {
	f.calls++
	f.in, f.amount = in, amount
	return f.quotes
}

func gwei(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000)) }

func TestEstimate_LiveInputs(t *testing.T) {
	r := &fakeReader{baseFee: gwei(1), tip: gwei(1)}
	q := &fakeQuoter{quotes: []types.Quote{
		{Venue: "a", AmountOut: big.NewInt(2_400_000_000)},
		{Venue: "b", AmountOut: big.NewInt(2_500_000_000)},
	}}
	e := New(r, q, Config{Native: weth}, nil)

	est := e.Estimate(context.Background(), 200_000, usdc)

	// 2 gwei * 200k = 4e14 wei = 0.0004 ETH * 2500 USDC = 1 USDC
	assert.Equal(t, gwei(2), est.GasPrice)
	assert.Equal(t, "2500000000", est.NativePrice.String())
	assert.Equal(t, "1000000", est.Cost.String())
	assert.False(t, est.StaticGasPrice || est.StaticGasUnits || est.StaticNativePrice)

	assert.Equal(t, weth, q.in)
	assert.Equal(t, "1000000000000000000", q.amount.String())
}

func TestEstimate_TipFallback(t *testing.T) {
	r := &fakeReader{baseFee: gwei(3), tipErr: errors.New("not supported")}
	e := New(r, &fakeQuoter{quotes: []types.Quote{{AmountOut: big.NewInt(1)}}}, Config{Native: weth}, nil)

	est := e.Estimate(context.Background(), 1, usdc)
	assert.Equal(t, gwei(4), est.GasPrice)
	assert.False(t, est.StaticGasPrice)
}

func TestEstimate_LegacyGasPrice(t *testing.T) {
	r := &fakeReader{price: gwei(5)}
	e := New(r, &fakeQuoter{quotes: []types.Quote{{AmountOut: big.NewInt(1)}}}, Config{Native: weth}, nil)

	est := e.Estimate(context.Background(), 1, usdc)
	assert.Equal(t, gwei(5), est.GasPrice)
}

func TestEstimate_AllStatic(t *testing.T) {
	r := &fakeReader{headErr: errors.New("dial"), priceErr: errors.New("dial")}
	e := New(r, &fakeQuoter{}, Config{Native: weth}, nil)

	est := e.Estimate(context.Background(), 0, usdc)
	require.NotNil(t, est.Cost)
	assert.True(t, est.StaticGasPrice)
	assert.True(t, est.StaticGasUnits)
	assert.True(t, est.StaticNativePrice)

	// 20 gwei * 500k = 0.01 ETH * 2000 USDC = 20 USDC
	assert.Equal(t, DefaultGasUnits, est.GasUnits)
	assert.Equal(t, "2000000000", est.NativePrice.String())
	assert.Equal(t, "20000000", est.Cost.String())
}

func TestEstimate_NilReader(t *testing.T) {
	e := New(nil, nil, Config{Native: weth, NativePrice: "3000"}, nil)
	est := e.Estimate(context.Background(), 0, usdc)
	assert.Equal(t, "30000000", est.Cost.String())
}

func TestEstimate_SettlementIsNative(t *testing.T) {
	q := &fakeQuoter{}
	e := New(&fakeReader{baseFee: gwei(1), tip: gwei(1)}, q, Config{Native: weth}, nil)

	est := e.Estimate(context.Background(), 100_000, weth)
	assert.Equal(t, "200000000000000", est.Cost.String())
	assert.Zero(t, q.calls)
}

type stalledReader struct{}

func (stalledReader) HeaderByNumber(ctx context.Context, _ *big.Int) (*gethtypes.Header, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledReader) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEstimate_StalledNodeFallsBackInTime(t *testing.T) {
	e := New(stalledReader{}, nil, Config{Native: weth, Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	est := e.Estimate(context.Background(), 0, usdc)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.True(t, est.StaticGasPrice)
	assert.Equal(t, DefaultGasPrice.String(), est.GasPrice.String())
	require.NotNil(t, est.Cost)
}

func TestNew_DefaultTimeout(t *testing.T) {
	e := New(nil, nil, Config{}, nil)
	assert.Equal(t, DefaultTimeout, e.cfg.Timeout)
}

type fakeEstimator struct {
	n   uint64
	err error
}

func (f fakeEstimator) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.n, f.err
}

func TestUnits(t *testing.T) {
	assert.Equal(t, uint64(321_000), Units(context.Background(), fakeEstimator{n: 321_000}, ethereum.CallMsg{}))
	assert.Zero(t, Units(context.Background(), fakeEstimator{err: errors.New("revert")}, ethereum.CallMsg{}))
	assert.Zero(t, Units(context.Background(), nil, ethereum.CallMsg{}))
}

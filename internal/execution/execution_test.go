package execution

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/dex-arb/internal/types"
)

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000A4b17")
	usdc         = types.TokenRef{Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6}
	chainID      = big.NewInt(8453)
)

type fakeBackend struct {
	mu        sync.Mutex
	abi       abi.ABI
	balance   *big.Int
	estimate  uint64
	estErr    error
	sent      []*gethtypes.Transaction
	rcptAfter int // lookups returning NotFound before the receipt shows up
	lookups   int
	status    uint64
}

func newBackend(t *testing.T) *fakeBackend {
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	require.NoError(t, err)
	return &fakeBackend{abi: parsed, balance: big.NewInt(0), estimate: 300_000, status: gethtypes.ReceiptStatusSuccessful}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.abi.Methods["getContractBalance"].Outputs.Pack(f.balance)
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estErr
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{BaseFee: big.NewInt(100_000_000)}, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(10_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeBackend) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookups <= f.rcptAfter {
		return nil, ethereum.NotFound
	}
	return &gethtypes.Receipt{
		Status:            f.status,
		TxHash:            h,
		GasUsed:           250_000,
		EffectiveGasPrice: big.NewInt(110_000_000),
		BlockNumber:       big.NewInt(1234),
	}, nil
}

func newSettlement(t *testing.T, b Backend) (*Settlement, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hex := common.Bytes2Hex(crypto.FromECDSA(key))
	s, err := NewSettlement(b, contractAddr, chainID, "0x"+hex, nil)
	require.NoError(t, err)
	s.PollEvery = 5 * time.Millisecond
	return s, crypto.PubkeyToAddress(key.PublicKey)
}

func TestSettlement_ExecuteBuildsSignedTx(t *testing.T) {
	b := newBackend(t)
	b.rcptAfter = 2
	s, from := newSettlement(t, b)
	assert.Equal(t, from, s.From())

	rcpt, hash, err := s.Execute(context.Background(), usdc.Address, big.NewInt(10_000_000), big.NewInt(500_000))
	require.NoError(t, err)
	require.NotNil(t, rcpt)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, contractAddr, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(360_000), tx.Gas())
	assert.Equal(t, "210000000", tx.GasFeeCap().String())
	assert.Equal(t, "10000000", tx.GasTipCap().String())

	sender, err := gethtypes.Sender(gethtypes.NewLondonSigner(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	args, err := b.abi.Methods["executeArbitrage"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, usdc.Address, args[0].(common.Address))
	assert.Equal(t, "10000000", args[1].(*big.Int).String())
	assert.Equal(t, "500000", args[2].(*big.Int).String())
	assert.Equal(t, 3, b.lookups)
}

func TestSettlement_DefaultGasLimit(t *testing.T) {
	b := newBackend(t)
	b.estErr = errors.New("execution reverted")
	s, _ := newSettlement(t, b)

	_, _, err := s.Execute(context.Background(), usdc.Address, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), b.sent[0].Gas())
	assert.Zero(t, s.EstimateUnits(context.Background(), usdc.Address, big.NewInt(1), big.NewInt(1)))
}

func TestSettlement_ReadOnly(t *testing.T) {
	b := newBackend(t)
	b.balance = big.NewInt(42)
	s, err := NewSettlement(b, contractAddr, chainID, "", nil)
	require.NoError(t, err)

	_, _, err = s.Execute(context.Background(), usdc.Address, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrReadOnly)

	bal, err := s.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())
	assert.Equal(t, uint64(300_000), s.EstimateUnits(context.Background(), usdc.Address, big.NewInt(1), big.NewInt(1)))
}

func TestSettlement_ReceiptWaitHonoursContext(t *testing.T) {
	b := newBackend(t)
	b.rcptAfter = 1 << 30
	s, _ := newSettlement(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, hash, err := s.Execute(ctx, usdc.Address, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestNewSettlement_BadKey(t *testing.T) {
	_, err := NewSettlement(newBackend(t), contractAddr, chainID, "0xnothex", nil)
	assert.Error(t, err)
}

type fakeRisk struct {
	err      error
	recorded []types.TradeStatus
}

func (r *fakeRisk) AllowTrade(types.Opportunity) error { return r.err }
func (r *fakeRisk) Record(s types.TradeStatus)         { r.recorded = append(r.recorded, s) }

type fakeSettler struct {
	rcpt   *gethtypes.Receipt
	err    error
	calls  int
	minArg *big.Int
}

func (f *fakeSettler) Execute(_ context.Context, _ common.Address, _, minProfit *big.Int) (*gethtypes.Receipt, common.Hash, error) {
	f.calls++
	f.minArg = minProfit
	return f.rcpt, common.HexToHash("0xabc"), f.err
}

func opportunity() types.Opportunity {
	return types.Opportunity{
		ID:                "opp-1",
		Pair:              "USDC/DAI",
		Base:              usdc,
		AmountIn:          big.NewInt(10_000_000),
		NetProfit:         big.NewInt(1_000_000),
		MinProfit:         big.NewInt(500_000),
		ExpectedMinProfit: big.NewInt(950_000),
		Profitable:        true,
	}
}

func TestExecutor_ScanOnly(t *testing.T) {
	st := &fakeSettler{}
	e := NewExecutor(st, &fakeRisk{}, Options{ScanOnly: true, Network: "base"}, nil)

	rec := e.Execute(context.Background(), opportunity())
	assert.Equal(t, types.TradeSkipped, rec.Status)
	assert.Equal(t, "opp-1", rec.OpportunityID)
	assert.Equal(t, "base", rec.Network)
	assert.Zero(t, st.calls)
}

func TestExecutor_RiskRejects(t *testing.T) {
	st := &fakeSettler{}
	e := NewExecutor(st, &fakeRisk{err: errors.New("gas above cap")}, Options{}, nil)

	rec := e.Execute(context.Background(), opportunity())
	assert.Equal(t, types.TradeSkipped, rec.Status)
	assert.Contains(t, rec.Error, "gas above cap")
	assert.Zero(t, st.calls)
}

func TestExecutor_Success(t *testing.T) {
	st := &fakeSettler{rcpt: &gethtypes.Receipt{
		Status: gethtypes.ReceiptStatusSuccessful, GasUsed: 210_000,
		EffectiveGasPrice: big.NewInt(5), BlockNumber: big.NewInt(99),
	}}
	r := &fakeRisk{}
	e := NewExecutor(st, r, Options{Network: "base"}, nil)

	rec := e.Execute(context.Background(), opportunity())
	assert.Equal(t, types.TradeSuccess, rec.Status)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), rec.TxHash)
	assert.Equal(t, uint64(210_000), rec.GasUsed)
	assert.Equal(t, uint64(99), rec.BlockNumber)
	assert.Equal(t, "1000000", rec.RealizedProfit.String())
	assert.Equal(t, "950000", st.minArg.String())
	assert.Equal(t, []types.TradeStatus{types.TradeSuccess}, r.recorded)
}

func TestExecutor_Reverted(t *testing.T) {
	st := &fakeSettler{rcpt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, GasUsed: 90_000, BlockNumber: big.NewInt(5)}}
	r := &fakeRisk{}
	e := NewExecutor(st, r, Options{}, nil)

	rec := e.Execute(context.Background(), opportunity())
	assert.Equal(t, types.TradeFailed, rec.Status)
	assert.Equal(t, "transaction reverted", rec.Error)
	assert.Nil(t, rec.RealizedProfit)
	assert.Equal(t, []types.TradeStatus{types.TradeFailed}, r.recorded)
}

func TestExecutor_SendError(t *testing.T) {
	st := &fakeSettler{err: errors.New("nonce too low")}
	e := NewExecutor(st, nil, Options{}, nil)

	o := opportunity()
	o.ExpectedMinProfit = nil
	rec := e.Execute(context.Background(), o)
	assert.Equal(t, types.TradeFailed, rec.Status)
	assert.Contains(t, rec.Error, "nonce too low")
	assert.Equal(t, "500000", st.minArg.String())
}

package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/gas"
)

const settlementABI = `[
 {"inputs":[
   {"internalType":"address","name":"token","type":"address"},
   {"internalType":"uint256","name":"amount","type":"uint256"},
   {"internalType":"uint256","name":"minProfit","type":"uint256"}],
  "name":"executeArbitrage",
  "outputs":[{"internalType":"bool","name":"","type":"bool"}],
  "stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"getContractBalance",
  "outputs":[{"internalType":"uint256","name":"","type":"uint256"}],
  "stateMutability":"view","type":"function"}
]`

var ErrReadOnly = errors.New("settlement client has no signing key")

// Backend is the part of ethclient.Client the settlement client uses.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Settlement talks to the on-chain arbitrage contract.
type Settlement struct {
	b       Backend
	abi     abi.ABI
	addr    common.Address
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	log     *zap.Logger

	// PollEvery is the receipt polling interval.
	PollEvery time.Duration
}

// NewSettlement builds a client. An empty keyHex gives a read-only client.
func NewSettlement(b Backend, addr common.Address, chainID *big.Int, keyHex string, log *zap.Logger) (*Settlement, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement abi: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Settlement{b: b, abi: parsed, addr: addr, chainID: chainID, log: log, PollEvery: 2 * time.Second}
	if keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("wallet key: %w", err)
		}
		s.key = key
		s.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return s, nil
}

func (s *Settlement) Address() common.Address { return s.addr }
func (s *Settlement) From() common.Address    { return s.from }

// Balance calls getContractBalance().
func (s *Settlement) Balance(ctx context.Context) (*big.Int, error) {
	data, err := s.abi.Pack("getContractBalance")
	if err != nil {
		return nil, err
	}
	raw, err := s.b.CallContract(ctx, ethereum.CallMsg{To: &s.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getContractBalance: %w", err)
	}
	out, err := s.abi.Unpack("getContractBalance", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("decode getContractBalance: %v", err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode getContractBalance: unexpected %T", out[0])
	}
	return bal, nil
}

// EstimateUnits returns the node's gas estimate for executeArbitrage, or 0.
func (s *Settlement) EstimateUnits(ctx context.Context, token common.Address, amount, minProfit *big.Int) uint64 {
	data, err := s.abi.Pack("executeArbitrage", token, amount, minProfit)
	if err != nil {
		return 0
	}
	return gas.Units(ctx, s.b, ethereum.CallMsg{From: s.from, To: &s.addr, Data: data})
}

// Execute signs and sends executeArbitrage, then waits for the receipt.
func (s *Settlement) Execute(ctx context.Context, token common.Address, amount, minProfit *big.Int) (*gethtypes.Receipt, common.Hash, error) {
	if s.key == nil {
		return nil, common.Hash{}, ErrReadOnly
	}
	data, err := s.abi.Pack("executeArbitrage", token, amount, minProfit)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("pack executeArbitrage: %w", err)
	}

	tip, err := s.b.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(1_000_000_000)
	}
	header, err := s.b.HeaderByNumber(ctx, nil)
	if err != nil || header == nil || header.BaseFee == nil {
		return nil, common.Hash{}, fmt.Errorf("get header/base fee: %v", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)

	nonce, err := s.b.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}

	// 20% headroom over the node estimate
	limit := gas.Units(ctx, s.b, ethereum.CallMsg{From: s.from, To: &s.addr, Data: data})
	if limit == 0 {
		limit = gas.DefaultGasUnits
	} else {
		limit = limit * 120 / 100
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       limit,
		To:        &s.addr,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.NewLondonSigner(s.chainID), s.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.b.SendTransaction(ctx, signed); err != nil {
		return nil, signed.Hash(), fmt.Errorf("send transaction: %w", err)
	}
	s.log.Info("settlement tx sent",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", limit),
	)

	rcpt, err := s.waitReceipt(ctx, signed.Hash())
	return rcpt, signed.Hash(), err
}

func (s *Settlement) waitReceipt(ctx context.Context, h common.Hash) (*gethtypes.Receipt, error) {
	t := time.NewTicker(s.PollEvery)
	defer t.Stop()
	for {
		rcpt, err := s.b.TransactionReceipt(ctx, h)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.log.Debug("receipt lookup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", h.Hex(), ctx.Err())
		case <-t.C:
		}
	}
}

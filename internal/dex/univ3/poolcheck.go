package univ3

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/you/dex-arb/internal/chain"
)

type poolKey struct {
	a, b common.Address
	fee  uint32
}

// PoolChecker отвечает «есть ли пул для (a, b, fee)» через factory, с LRU спереди.
type PoolChecker struct {
	c       ethereum.ContractCaller
	factory common.Address
	fabi    abi.ABI
	cache   *lru.Cache
}

func NewPoolChecker(c ethereum.ContractCaller, factory common.Address) (*PoolChecker, error) {
	fabi, err := abi.JSON(strings.NewReader(v3FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	if factory == (common.Address{}) {
		factory = UniswapV3Factory
	}
	cache, err := lru.New(1024)
	if err != nil {
		return nil, fmt.Errorf("pool cache: %w", err)
	}
	return &PoolChecker{c: c, factory: factory, fabi: fabi, cache: cache}, nil
}

// Pool возвращает адрес пула или нулевой адрес, если на этом tier пула нет.
func (p *PoolChecker) Pool(ctx context.Context, a, b common.Address, fee uint32) (common.Address, error) {
	// в Uniswap пул упорядочен по адресу: token0 < token1
	if bytes.Compare(b.Bytes(), a.Bytes()) < 0 {
		a, b = b, a
	}
	key := poolKey{a: a, b: b, fee: fee}
	if v, ok := p.cache.Get(key); ok {
		return v.(common.Address), nil
	}

	data, err := p.fabi.Pack("getPool", a, b, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	res, err := p.c.CallContract(cctx, ethereum.CallMsg{To: &p.factory, Data: data}, nil)
	cancel()
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool(fee=%d): %w", fee, err)
	}
	out, err := p.fabi.Unpack("getPool", res)
	if err != nil || len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack getPool(fee=%d): %w", fee, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getPool type %T", out[0])
	}
	p.cache.Add(key, addr)
	return addr, nil
}

// Available — tiers, у которых есть пул, и адреса пулов.
func (p *PoolChecker) Available(ctx context.Context, a, b common.Address, tiers []uint32) (present []uint32, pools map[uint32]common.Address, err error) {
	if (a == common.Address{}) || (b == common.Address{}) {
		return nil, nil, fmt.Errorf("base/quote address is zero")
	}
	pools = make(map[uint32]common.Address, len(tiers))
	for _, fee := range tiers {
		addr, err := p.Pool(ctx, a, b, fee)
		if err != nil {
			return nil, nil, err
		}
		if addr != (common.Address{}) {
			present = append(present, fee)
			pools[fee] = addr
		}
	}
	return present, pools, nil
}

// CheckAvailableFeeTiers подключается к rpcURL и перечисляет tiers с пулом BASE↔QUOTE.
func CheckAvailableFeeTiers(ctx context.Context, rpcURL string, factory, base, quote common.Address, tiers []uint32) (present []uint32, pools map[uint32]common.Address, err error) {
	ec, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	defer ec.Close()

	pc, err := NewPoolChecker(ec, factory)
	if err != nil {
		return nil, nil, err
	}
	return pc.Available(ctx, base, quote, tiers)
}

// Package dash keeps the latest evaluation per pair and serves it as JSON.
package dash

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

// Row — последний вердикт по паре, суммы в человеческих единицах.
type Row struct {
	Pair       string `json:"pair"`
	Base       string `json:"base"`
	Token      string `json:"token"`
	BuyVenue   string `json:"buyVenue,omitempty"`
	BuyFee     uint32 `json:"buyFee,omitempty"`
	SellVenue  string `json:"sellVenue,omitempty"`
	SellFee    uint32 `json:"sellFee,omitempty"`
	AmountIn   string `json:"amountIn"`
	Returned   string `json:"returned,omitempty"`
	GasCost    string `json:"gasCost"`
	NetProfit  string `json:"netProfit,omitempty"`
	Profitable bool   `json:"profitable"`
	Reason     string `json:"reason"`
	TS         int64  `json:"ts"`
}

type Store struct {
	mu   sync.RWMutex
	rows map[string]Row // ключ: пара
}

func NewStore() *Store { return &Store{rows: make(map[string]Row, 64)} }

func (s *Store) Update(opp types.Opportunity) {
	dec := opp.Base.Decimals
	row := Row{
		Pair:       opp.Pair,
		Base:       opp.Base.Symbol,
		Token:      opp.Token.Symbol,
		AmountIn:   units.Format(opp.AmountIn, dec),
		GasCost:    units.Format(opp.GasCost, dec),
		Profitable: opp.Profitable,
		Reason:     opp.Reason,
		TS:         opp.Ts.UnixMilli(),
	}
	if opp.Buy != nil {
		row.BuyVenue, row.BuyFee = string(opp.Buy.Venue), opp.Buy.FeeTier
	}
	if opp.Sell != nil {
		row.SellVenue, row.SellFee = string(opp.Sell.Venue), opp.Sell.FeeTier
		row.Returned = units.Format(opp.Returned, dec)
	}
	if opp.NetProfit != nil {
		row.NetProfit = units.Format(opp.NetProfit, dec)
	}

	s.mu.Lock()
	s.rows[opp.Pair] = row
	s.mu.Unlock()
}

func (s *Store) List() []Row {
	s.mu.RLock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Handler отдаёт List как JSON.
func (s *Store) Handler() http.Handler {
	return withCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.List())
	}))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package options implements the long-only American-style stock options
// Engine: buying and selling (closing) contracts against the surrogate
// Black-Scholes pricer, live mark-to-market, and expiry settlement. There
// is no short-option / premium-collection path — every position is a
// long call or long put bought for a debit.
package options

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/crossengine/internal/broadcast"
	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/metrics"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/pricing"
	"github.com/atmx/crossengine/internal/quote"
	"github.com/atmx/crossengine/internal/store"
)

// ContractMultiplier is shares-per-contract for every listed series.
const ContractMultiplier = 100

// CashLedger is the subset of the Portfolio Ledger the Options Engine
// needs.
type CashLedger interface {
	AdjustCash(delta float64) error
	Cash() float64
}

// Engine is the Options Engine. All public operations are serialized by
// mu.
type Engine struct {
	mu          sync.Mutex
	store       *store.FileStore[*model.OptionsAccount]
	data        *model.OptionsAccount
	ledger      CashLedger
	quotes      quote.Provider
	broadcaster broadcast.Broadcaster
}

// New loads (or first-run-defaults) the options account from fileStore.
func New(fileStore *store.FileStore[*model.OptionsAccount], ledger CashLedger, quotes quote.Provider, broadcaster broadcast.Broadcaster) (*Engine, error) {
	data, err := fileStore.Load()
	if err != nil {
		return nil, err
	}
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}
	return &Engine{store: fileStore, data: data, ledger: ledger, quotes: quotes, broadcaster: broadcaster}, nil
}

// BuyOption opens a long position in underlying at strike expiring on
// expiryDate (YYYY-MM-DD). isPut selects a put over a call. contracts is
// the number of 100-share contracts.
func (e *Engine) BuyOption(ctx context.Context, underlying string, strike float64, expiryDate string, isPut bool, contracts float64) (*model.OptionPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	underlying = strings.ToUpper(underlying)
	if contracts <= 0 || strike <= 0 {
		return nil, fmt.Errorf("%w: contracts and strike must be positive", engineerr.ErrInvalidParam)
	}

	dte, err := pricing.DaysToExpiryClamped(expiryDate, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry date %s", engineerr.ErrInvalidParam, expiryDate)
	}
	if dte <= 0 {
		return nil, fmt.Errorf("%w: expiry %s has already passed", engineerr.ErrInvalidParam, expiryDate)
	}

	q, err := e.quotes.FetchQuote(ctx, underlying)
	if err != nil {
		return nil, err
	}
	spot := q.Price

	iv := pricing.ImpliedVol(underlying)
	premiumPerShare := pricing.Premium(spot, strike, iv, dte, isPut)
	totalCost := premiumPerShare * ContractMultiplier * contracts

	if e.ledger.Cash() < totalCost {
		return nil, fmt.Errorf("%w: need %.2f premium", engineerr.ErrInsufficientFunds, totalCost)
	}
	if err := e.ledger.AdjustCash(-totalCost); err != nil {
		return nil, err
	}

	optType := model.Call
	if isPut {
		optType = model.Put
	}
	contract := model.OptionContract{
		Underlying:  underlying,
		Type:        optType,
		StrikePrice: strike,
		ExpiryDate:  expiryDate,
		Multiplier:  ContractMultiplier,
		ImpliedVol:  iv,
	}

	pos := &model.OptionPosition{
		ID:              uuid.NewString(),
		Contract:        contract,
		AssetClass:      model.AssetUSStockOption,
		Contracts:       contracts,
		PremiumPaid:     totalCost,
		PremiumPerShare: premiumPerShare,
		CurrentPremium:  premiumPerShare,
		CurrentValue:    totalCost,
		DaysToExpiry:    dte,
		OpenedAtISO:     time.Now().Format(time.RFC3339),
		ExpiryDate:      expiryDate,
	}
	e.data.Positions[pos.ID] = pos

	txType := "buy_call"
	if isPut {
		txType = "buy_put"
	}
	e.appendTransaction(txType, underlying, strike, expiryDate, contracts, premiumPerShare, totalCost, 0)

	if err := e.save(); err != nil {
		return nil, err
	}
	metrics.OpenOptionsPositions.Set(float64(len(e.data.Positions)))
	return clonePosition(pos), nil
}

// SellOption closes all or part of a long position at the current mark,
// crediting proceeds back to cash.
func (e *Engine) SellOption(ctx context.Context, id string, contracts float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.data.Positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: position %s", engineerr.ErrNotFound, id)
	}
	if contracts <= 0 {
		contracts = pos.Contracts
	}
	if contracts <= 0 || contracts > pos.Contracts {
		return 0, fmt.Errorf("%w: close contracts exceeds position", engineerr.ErrInvalidParam)
	}

	q, err := e.quotes.FetchQuote(ctx, pos.Contract.Underlying)
	if err != nil {
		return 0, err
	}
	spot := q.Price

	dte, _ := pricing.DaysToExpiryClamped(pos.Contract.ExpiryDate, time.Now())
	premiumPerShare := pricing.Premium(spot, pos.Contract.StrikePrice, pos.Contract.ImpliedVol, dte, pos.Contract.Type == model.Put)
	proceeds := premiumPerShare * ContractMultiplier * contracts
	costBasis := (contracts / pos.Contracts) * pos.PremiumPaid
	pnl := proceeds - costBasis

	if err := e.ledger.AdjustCash(proceeds); err != nil {
		return 0, err
	}

	remaining := pos.Contracts - contracts
	if remaining <= 0 {
		delete(e.data.Positions, id)
	} else {
		pos.Contracts = remaining
		pos.PremiumPaid -= costBasis
	}

	txType := "sell_call"
	if pos.Contract.Type == model.Put {
		txType = "sell_put"
	}
	e.appendTransaction(txType, pos.Contract.Underlying, pos.Contract.StrikePrice, pos.Contract.ExpiryDate, contracts, premiumPerShare, proceeds, pnl)

	if err := e.save(); err != nil {
		return 0, err
	}
	metrics.OpenOptionsPositions.Set(float64(len(e.data.Positions)))
	return pnl, nil
}

// Quote is the priced-but-not-yet-bought view of a contract: what
// BuyOption would charge right now, broken into its intrinsic and time
// components.
type Quote struct {
	PremiumPerShare    float64
	PremiumPerContract float64
	IntrinsicValue     float64
	TimeValue          float64
	DaysToExpiry       float64
	ImpliedVol         float64
}

// GetQuote prices a hypothetical underlying/strike/expiry/type contract
// against the live underlying quote, without opening a position.
func (e *Engine) GetQuote(ctx context.Context, underlying string, strike float64, expiryDate string, isPut bool) (Quote, error) {
	underlying = strings.ToUpper(underlying)
	if strike <= 0 {
		return Quote{}, fmt.Errorf("%w: strike must be positive", engineerr.ErrInvalidParam)
	}

	dte, err := pricing.DaysToExpiryClamped(expiryDate, time.Now())
	if err != nil {
		return Quote{}, fmt.Errorf("%w: invalid expiry date %s", engineerr.ErrInvalidParam, expiryDate)
	}

	q, err := e.quotes.FetchQuote(ctx, underlying)
	if err != nil {
		return Quote{}, err
	}
	spot := q.Price

	iv := pricing.ImpliedVol(underlying)
	intrinsic := pricing.IntrinsicValue(spot, strike, isPut)
	timeValue := pricing.TimeValue(spot, iv, dte)
	premiumPerShare := intrinsic + timeValue

	return Quote{
		PremiumPerShare:    premiumPerShare,
		PremiumPerContract: premiumPerShare * ContractMultiplier,
		IntrinsicValue:     intrinsic,
		TimeValue:          timeValue,
		DaysToExpiry:       dte,
		ImpliedVol:         iv,
	}, nil
}

// GetTransactions returns the most recent limit transactions,
// reverse-chronological.
func (e *Engine) GetTransactions(limit int) []model.OptionsTransaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	n := len(e.data.Transactions)
	if n > limit {
		n = limit
	}
	out := make([]model.OptionsTransaction, n)
	for i := 0; i < n; i++ {
		out[i] = e.data.Transactions[len(e.data.Transactions)-1-i]
	}
	return out
}

// GetPositions refreshes every position's mark-to-market fields against
// live underlying quotes and returns a copy.
func (e *Engine) GetPositions(ctx context.Context) []*model.OptionPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	spots := e.refreshSpotsLocked(ctx)
	out := make([]*model.OptionPosition, 0, len(e.data.Positions))
	for _, pos := range e.data.Positions {
		e.recomputeLocked(pos, spots[pos.Contract.Underlying])
		out = append(out, clonePosition(pos))
	}
	return out
}

// Positions returns a raw snapshot without refreshing marks.
func (e *Engine) Positions() []*model.OptionPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.OptionPosition, 0, len(e.data.Positions))
	for _, pos := range e.data.Positions {
		out = append(out, clonePosition(pos))
	}
	return out
}

// SettlementInfo describes one contract's forced expiry settlement.
type SettlementInfo struct {
	Underlying      string
	StrikePrice     float64
	ExpiryDate      string
	Contracts       float64
	IntrinsicPerSh  float64
	Proceeds        float64
	Pnl             float64
	SettledAtISO    string
	ExpiredITM      bool
}

// SettleExpiredOptions forces settlement on every position whose expiry
// instant has passed: ITM contracts pay intrinsic value, OTM contracts
// expire worthless. A position whose underlying quote cannot be fetched
// is left open for a later call. Returns one SettlementInfo per position
// settled.
func (e *Engine) SettleExpiredOptions(ctx context.Context) ([]SettlementInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	var expired []*model.OptionPosition
	for _, pos := range e.data.Positions {
		dte, err := pricing.DaysToExpiry(pos.ExpiryDate, now)
		if err != nil {
			continue
		}
		if dte <= 0 {
			expired = append(expired, pos)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}

	spots := map[string]float64{}
	for _, pos := range expired {
		underlying := pos.Contract.Underlying
		if _, ok := spots[underlying]; ok {
			continue
		}
		q, err := e.quotes.FetchQuote(ctx, underlying)
		if err != nil {
			continue // left open and retried on the next sweep
		}
		spots[underlying] = q.Price
	}

	var results []SettlementInfo
	for _, pos := range expired {
		spot, ok := spots[pos.Contract.Underlying]
		if !ok {
			continue
		}
		intrinsic := pricing.IntrinsicValue(spot, pos.Contract.StrikePrice, pos.Contract.Type == model.Put)
		proceeds := intrinsic * ContractMultiplier * pos.Contracts
		pnl := proceeds - pos.PremiumPaid
		itm := intrinsic > 0

		if proceeds > 0 {
			if err := e.ledger.AdjustCash(proceeds); err != nil {
				return results, err
			}
		}

		txType := "expire_otm"
		outcome := "otm"
		if itm {
			txType = "expire_itm"
			outcome = "itm"
		}
		e.appendTransaction(txType, pos.Contract.Underlying, pos.Contract.StrikePrice, pos.Contract.ExpiryDate, pos.Contracts, intrinsic, proceeds, pnl)
		delete(e.data.Positions, pos.ID)
		metrics.OptionsSettlementsTotal.WithLabelValues(outcome).Inc()

		info := SettlementInfo{
			Underlying:     pos.Contract.Underlying,
			StrikePrice:    pos.Contract.StrikePrice,
			ExpiryDate:     pos.Contract.ExpiryDate,
			Contracts:      pos.Contracts,
			IntrinsicPerSh: intrinsic,
			Proceeds:       proceeds,
			Pnl:            pnl,
			SettledAtISO:   now.Format(time.RFC3339),
			ExpiredITM:     itm,
		}
		results = append(results, info)
		e.broadcaster.Emit("options.expired", info)
	}

	if err := e.save(); err != nil {
		return results, err
	}
	metrics.OpenOptionsPositions.Set(float64(len(e.data.Positions)))
	return results, nil
}

func (e *Engine) refreshSpotsLocked(ctx context.Context) map[string]float64 {
	underlyings := map[string]bool{}
	for _, pos := range e.data.Positions {
		underlyings[pos.Contract.Underlying] = true
	}

	spots := map[string]float64{}
	for underlying := range underlyings {
		q, err := e.quotes.FetchQuote(ctx, underlying)
		if err != nil {
			continue
		}
		spots[underlying] = q.Price
	}
	return spots
}

func (e *Engine) recomputeLocked(pos *model.OptionPosition, spot float64) {
	dte, err := pricing.DaysToExpiryClamped(pos.ExpiryDate, time.Now())
	if err != nil {
		return
	}
	pos.DaysToExpiry = dte
	if spot <= 0 {
		return
	}
	premiumPerShare := pricing.Premium(spot, pos.Contract.StrikePrice, pos.Contract.ImpliedVol, dte, pos.Contract.Type == model.Put)
	pos.CurrentPremium = premiumPerShare
	pos.CurrentValue = premiumPerShare * ContractMultiplier * pos.Contracts
	pos.UnrealizedPnl = pos.CurrentValue - pos.PremiumPaid
	if pos.PremiumPaid > 0 {
		pos.UnrealizedPnlPercent = pos.UnrealizedPnl / pos.PremiumPaid * 100
	}
}

func (e *Engine) appendTransaction(txType, underlying string, strike float64, expiryDate string, contracts, premiumPerShare, totalAmount, pnl float64) {
	e.data.Transactions = append(e.data.Transactions, model.OptionsTransaction{
		Type:            txType,
		Underlying:      underlying,
		StrikePrice:     strike,
		ExpiryDate:      expiryDate,
		Contracts:       contracts,
		PremiumPerShare: premiumPerShare,
		TotalAmount:     totalAmount,
		Pnl:             pnl,
		DateISO:         time.Now().Format(time.RFC3339),
	})
}

func (e *Engine) save() error {
	if err := e.store.Save(e.data); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrPersistence, err)
	}
	return nil
}

func clonePosition(pos *model.OptionPosition) *model.OptionPosition {
	clone := *pos
	return &clone
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// MockStore is an in-memory Store whose transactions commit only when fn succeeds
type MockStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position // key: userID:symbol
	trades    []*models.Trade
	nextPosID int
	nextTrdID int

	SaveTradeErr  error
	SavePricesErr error
	ListErr       error

	SavePricesCalls  int
	BeforeSavePrices func()
}

func NewMockStore() *MockStore {
	return &MockStore{
		positions: make(map[string]*models.Position),
		nextPosID: 1,
		nextTrdID: 1,
	}
}

func key(userID int, symbol string) string {
	return fmt.Sprintf("%d:%s", userID, symbol)
}

type mockTx struct {
	store    *MockStore
	position *models.Position
	trade    *models.Trade
}

func (tx *mockTx) PositionForUpdate(_ context.Context, userID int, symbol string) (*models.Position, error) {
	p, ok := tx.store.positions[key(userID, symbol)]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (tx *mockTx) TradeExistsByRequestID(_ context.Context, userID int, requestID string) (bool, error) {
	for _, t := range tx.store.trades {
		if t.UserID == userID && t.RequestID == requestID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *mockTx) InsertTrade(_ context.Context, t *models.Trade) error {
	if tx.store.SaveTradeErr != nil {
		return tx.store.SaveTradeErr
	}
	tx.trade = t
	return nil
}

func (tx *mockTx) SavePosition(_ context.Context, p *models.Position) error {
	tx.position = p
	return nil
}

func (m *MockStore) WithTradeLock(_ context.Context, _ int, _ string, fn func(tx TradeTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.trade != nil {
		tx.trade.ID = m.nextTrdID
		m.nextTrdID++
		m.trades = append(m.trades, tx.trade)
	}
	if tx.position != nil {
		if tx.position.ID == 0 {
			tx.position.ID = m.nextPosID
			m.nextPosID++
		}
		m.positions[key(tx.position.UserID, tx.position.Symbol)] = tx.position.Clone()
	}
	return nil
}

func (m *MockStore) GetActivePositionsByUser(_ context.Context, userID int) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*models.Position
	for _, p := range m.positions {
		if p.UserID == userID && p.IsActive() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MockStore) SavePositionPrices(_ context.Context, prices []models.PositionPrice) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SavePricesCalls++
	if m.SavePricesErr != nil {
		return nil, m.SavePricesErr
	}
	if m.BeforeSavePrices != nil {
		m.BeforeSavePrices()
	}
	var updated []int
	for _, pp := range prices {
		for _, p := range m.positions {
			if p.ID == pp.PositionID && p.IsActive() {
				at := pp.PricedAt
				p.LastPrice = pp.Price
				p.LastPriceAt = &at
				p.CurrentValue = p.Units.Mul(pp.Price)
				updated = append(updated, p.ID)
			}
		}
	}
	return updated, nil
}

func (m *MockStore) Position(userID int, symbol string) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[key(userID, symbol)]
	if !ok {
		return nil
	}
	return p.Clone()
}

// MockPrices is a PriceSource backed by a map
type MockPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
}

func NewMockPrices() *MockPrices {
	return &MockPrices{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (m *MockPrices) Set(symbol, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = decimal.RequireFromString(price)
	delete(m.errs, symbol)
}

func (m *MockPrices) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

func (m *MockPrices) LivePrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol]++
	if err, ok := m.errs[symbol]; ok {
		return decimal.Zero, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote found for %s", symbol)
	}
	return p, nil
}

type mockEvents struct {
	applied   int
	refreshed int
	err       error
}

func (m *mockEvents) PublishTradeApplied(context.Context, *models.Trade, *models.Position) error {
	m.applied++
	return m.err
}

func (m *mockEvents) PublishPositionsRefreshed(context.Context, int, []string, []models.SymbolFailure) error {
	m.refreshed++
	return m.err
}

func newTestEngine(t *testing.T) (*Engine, *MockStore, *MockPrices, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	store := NewMockStore()
	prices := NewMockPrices()
	return NewEngine(store, prices, logger), store, prices, hook
}

func trade(userID int, symbol, side, qty string) models.TradeRequest {
	return models.TradeRequest{
		UserID:   userID,
		Symbol:   symbol,
		Type:     side,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestEngine_ApplyTrade_TCSScenario(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()

	prices.Set("TCS", "100")
	tr, pos, err := engine.ApplyTrade(ctx, trade(1, " tcs", "buy", "10"))
	require.NoError(t, err)
	assert.Equal(t, "TCS", tr.Symbol)
	assert.Equal(t, models.TradeTypeBuy, tr.Type)
	assert.True(t, tr.Price.Equal(d("100")), "price comes from the source")
	assert.NotZero(t, tr.ID)
	assert.False(t, tr.ExecutedAt.IsZero())
	assert.True(t, pos.CostBasis.Equal(d("1000")))

	prices.Set("TCS", "110")
	_, _, err = engine.ApplyTrade(ctx, trade(1, "TCS", "BUY", "5"))
	require.NoError(t, err)

	stored := store.Position(1, "TCS")
	require.NotNil(t, stored)
	assert.True(t, stored.Units.Equal(d("15")))
	assert.True(t, stored.CostBasis.Equal(d("1550")))
	assert.True(t, stored.AvgBuyPrice.Round(2).Equal(d("103.33")))
	assert.True(t, stored.CurrentValue.Equal(d("1650")))

	prices.Set("TCS", "120")
	_, pos, err = engine.ApplyTrade(ctx, trade(1, "TCS", "SELL", "15"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, pos.Status)
	assert.True(t, pos.CurrentValue.IsZero())
	assert.True(t, pos.AvgBuyPrice.Round(2).Equal(d("103.33")))
	assert.Equal(t, stored.ID, pos.ID)
	assert.Len(t, store.trades, 3)
}

func TestEngine_ApplyTrade_RejectedSellChangesNothing(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("AAPL", "100")

	_, _, err := engine.ApplyTrade(ctx, trade(1, "AAPL", "SELL", "1"))
	require.ErrorIs(t, err, models.ErrInsufficientUnits)
	assert.Empty(t, store.trades)
	assert.Nil(t, store.Position(1, "AAPL"))

	_, _, err = engine.ApplyTrade(ctx, trade(1, "AAPL", "BUY", "2"))
	require.NoError(t, err)
	before := store.Position(1, "AAPL")

	prices.Set("AAPL", "250")
	_, _, err = engine.ApplyTrade(ctx, trade(1, "AAPL", "SELL", "3"))
	require.ErrorIs(t, err, models.ErrInsufficientUnits)
	assert.Len(t, store.trades, 1, "no trade recorded for the rejected sell")
	assert.Equal(t, before, store.Position(1, "AAPL"))
}

func TestEngine_ApplyTrade_PriceErrors(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("unavailable", func(t *testing.T) {
		prices.Fail("NOPE", errors.New("no quote found"))
		_, _, err := engine.ApplyTrade(ctx, trade(1, "NOPE", "BUY", "1"))
		require.ErrorIs(t, err, models.ErrPriceUnavailable)
		assert.Contains(t, err.Error(), "no quote found")
	})

	t.Run("zero price", func(t *testing.T) {
		prices.Set("ZERO", "0")
		_, _, err := engine.ApplyTrade(ctx, trade(1, "ZERO", "BUY", "1"))
		require.ErrorIs(t, err, models.ErrInvalidSymbol)
	})

	assert.Empty(t, store.trades)
}

func TestEngine_ApplyTrade_ValidatesBeforePricing(t *testing.T) {
	engine, _, prices, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []models.TradeRequest{
		trade(1, "", "BUY", "1"),
		trade(1, "AAPL", "HOLD", "1"),
		trade(1, "AAPL", "BUY", "0"),
		trade(1, "AAPL", "BUY", "-1"),
		trade(0, "AAPL", "BUY", "1"),
		{UserID: 1, Symbol: "AAPL", Type: "BUY", Quantity: d("1"), Fees: d("-1")},
	}
	for _, req := range cases {
		_, _, err := engine.ApplyTrade(ctx, req)
		require.ErrorIs(t, err, models.ErrInvalidTrade, "%+v", req)
	}
	assert.Zero(t, prices.calls["AAPL"])
}

func TestEngine_ApplyTrade_RejectsOverlongSymbol(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	long := strings.Repeat("X", 33)
	prices.Set(long, "1")

	_, _, err := engine.ApplyTrade(context.Background(), trade(1, long, "BUY", "1"))
	require.ErrorIs(t, err, models.ErrInvalidTrade)
	assert.Zero(t, prices.calls[long])
	assert.Empty(t, store.trades)

	edge := strings.Repeat("Y", 32)
	prices.Set(edge, "1")
	_, _, err = engine.ApplyTrade(context.Background(), trade(1, edge, "BUY", "1"))
	require.NoError(t, err)
}

func TestEngine_ApplyTrade_PersistenceFailureIsTagged(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	prices.Set("AAPL", "100")
	store.SaveTradeErr = errors.New("connection reset")

	_, _, err := engine.ApplyTrade(context.Background(), trade(1, "AAPL", "BUY", "1"))
	require.ErrorIs(t, err, models.ErrPersistence)
	assert.Nil(t, store.Position(1, "AAPL"))
}

func TestEngine_ApplyTrade_DuplicateRequestID(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("AAPL", "100")

	req := trade(1, "AAPL", "BUY", "1")
	req.RequestID = "order-1"
	_, _, err := engine.ApplyTrade(ctx, req)
	require.NoError(t, err)

	_, _, err = engine.ApplyTrade(ctx, req)
	require.ErrorIs(t, err, models.ErrDuplicateTrade)
	assert.Len(t, store.trades, 1)
	assert.True(t, store.Position(1, "AAPL").Units.Equal(d("1")))
}

func TestEngine_ApplyTrade_ConcurrentTradesAreSerialized(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("AAPL", "10")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := engine.ApplyTrade(ctx, trade(1, "AAPL", "BUY", "1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pos := store.Position(1, "AAPL")
	assert.True(t, pos.Units.Equal(d("50")))
	assert.True(t, pos.CostBasis.Equal(d("500")))
}

func TestEngine_ApplyTrade_PublishesEvents(t *testing.T) {
	engine, _, prices, hook := newTestEngine(t)
	events := &mockEvents{err: errors.New("broker down")}
	engine.WithEvents(events)
	prices.Set("AAPL", "100")

	_, _, err := engine.ApplyTrade(context.Background(), trade(1, "AAPL", "BUY", "1"))
	require.NoError(t, err, "publish failures never fail the trade")
	assert.Equal(t, 1, events.applied)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestEngine_RefreshPositions_PartialFailure(t *testing.T) {
	engine, store, prices, hook := newTestEngine(t)
	ctx := context.Background()

	prices.Set("A", "10")
	prices.Set("B", "20")
	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "2"))
	require.NoError(t, err)
	_, _, err = engine.ApplyTrade(ctx, trade(1, "B", "BUY", "3"))
	require.NoError(t, err)
	bBefore := store.Position(1, "B")

	prices.Set("A", "15")
	prices.Fail("B", errors.New("rate limited"))

	result, err := engine.RefreshPositions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, result.Refreshed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "B", result.Failed[0].Symbol)
	assert.Contains(t, result.Failed[0].Reason, "rate limited")

	a := store.Position(1, "A")
	assert.True(t, a.LastPrice.Equal(d("15")))
	assert.True(t, a.CurrentValue.Equal(d("30")))
	assert.Equal(t, bBefore, store.Position(1, "B"), "failed symbol is untouched")

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["symbol"] == "B" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestEngine_RefreshPositions_SkipsInactiveAndOtherUsers(t *testing.T) {
	engine, _, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("A", "10")
	prices.Set("C", "5")

	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "1"))
	require.NoError(t, err)
	_, _, err = engine.ApplyTrade(ctx, trade(1, "A", "SELL", "1"))
	require.NoError(t, err)
	_, _, err = engine.ApplyTrade(ctx, trade(2, "C", "BUY", "1"))
	require.NoError(t, err)
	callsBefore := prices.calls["A"]

	result, err := engine.RefreshPositions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, result.Refreshed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, callsBefore, prices.calls["A"])
}

func TestEngine_RefreshPositions_IsIdempotent(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("A", "10")
	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "3"))
	require.NoError(t, err)
	prices.Set("A", "12.5")

	_, err = engine.RefreshPositions(ctx, 1)
	require.NoError(t, err)
	first := store.Position(1, "A")

	_, err = engine.RefreshPositions(ctx, 1)
	require.NoError(t, err)
	second := store.Position(1, "A")

	assert.True(t, first.Units.Equal(second.Units))
	assert.True(t, first.CostBasis.Equal(second.CostBasis))
	assert.True(t, first.AvgBuyPrice.Equal(second.AvgBuyPrice))
	assert.True(t, first.LastPrice.Equal(second.LastPrice))
	assert.True(t, first.CurrentValue.Equal(second.CurrentValue))
	assert.True(t, second.CurrentValue.Equal(d("37.5")))
}

func TestEngine_RefreshPositions_PersistenceError(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("A", "10")
	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "1"))
	require.NoError(t, err)

	store.SavePricesErr = errors.New("disk full")
	_, err = engine.RefreshPositions(ctx, 1)
	require.ErrorIs(t, err, models.ErrPersistence)

	store.SavePricesErr = nil
	store.ListErr = errors.New("connection refused")
	_, err = engine.RefreshPositions(ctx, 1)
	require.ErrorIs(t, err, models.ErrPersistence)
}

func TestEngine_RefreshPositions_AllFailedSkipsPersist(t *testing.T) {
	engine, store, prices, _ := newTestEngine(t)
	ctx := context.Background()
	prices.Set("A", "10")
	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "1"))
	require.NoError(t, err)

	prices.Fail("A", errors.New("timeout"))
	store.SavePricesErr = errors.New("should not be called")

	result, err := engine.RefreshPositions(ctx, 1)
	require.NoError(t, err, "price failures never fail the sweep")
	assert.Len(t, result.Failed, 1)
	assert.Zero(t, store.SavePricesCalls)
}

func TestEngine_usesInjectedClock(t *testing.T) {
	engine, _, prices, _ := newTestEngine(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }
	prices.Set("A", "1")

	tr, pos, err := engine.ApplyTrade(context.Background(), trade(1, "A", "BUY", "1"))
	require.NoError(t, err)
	assert.Equal(t, fixed, tr.ExecutedAt)
	assert.Equal(t, fixed, *pos.LastPriceAt)
}

func TestEngine_RefreshPositions_PositionClosedBeforeWrite(t *testing.T) {
	engine, store, prices, hook := newTestEngine(t)
	ctx := context.Background()
	prices.Set("A", "10")
	prices.Set("B", "20")
	_, _, err := engine.ApplyTrade(ctx, trade(1, "A", "BUY", "1"))
	require.NoError(t, err)
	_, _, err = engine.ApplyTrade(ctx, trade(1, "B", "BUY", "1"))
	require.NoError(t, err)

	// B is deleted after the sweep read it but before the batch write
	store.BeforeSavePrices = func() { delete(store.positions, key(1, "B")) }
	prices.Set("A", "11")
	prices.Set("B", "21")

	result, err := engine.RefreshPositions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, result.Refreshed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "B", result.Failed[0].Symbol)
	assert.Equal(t, "position is no longer active", result.Failed[0].Reason)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["symbol"] == "B" {
			warned = true
		}
	}
	assert.True(t, warned)
}

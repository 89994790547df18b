package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type fixedPrices map[string]decimal.Decimal

func (f fixedPrices) LivePrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := f[symbol]
	if !ok {
		return decimal.Zero, models.ErrPriceUnavailable
	}
	return p, nil
}

func buy(userID int, symbol, qty string) models.TradeRequest {
	return models.TradeRequest{UserID: userID, Symbol: symbol, Type: models.TradeTypeBuy, Quantity: decimal.RequireFromString(qty)}
}

func sell(userID int, symbol, qty string) models.TradeRequest {
	return models.TradeRequest{UserID: userID, Symbol: symbol, Type: models.TradeTypeSell, Quantity: decimal.RequireFromString(qty)}
}

func TestLedgerAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	t.Run("TCS scenario persists exact decimals", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "tcs")
		prices := fixedPrices{"TCS": decimal.NewFromInt(100)}
		engine := ledger.NewEngine(testDB.DB, prices, logger)

		_, _, err := engine.ApplyTrade(ctx, buy(user.ID, "tcs", "10"))
		require.NoError(t, err)
		prices["TCS"] = decimal.NewFromInt(110)
		_, pos, err := engine.ApplyTrade(ctx, buy(user.ID, "TCS", "5"))
		require.NoError(t, err)

		stored, err := testDB.GetPositionByID(ctx, pos.ID)
		require.NoError(t, err)
		assert.True(t, stored.Units.Equal(decimal.NewFromInt(15)))
		assert.True(t, stored.CostBasis.Equal(decimal.NewFromInt(1550)))
		assert.Equal(t, "103.33", stored.AvgBuyPrice.StringFixed(2))
		assert.True(t, stored.CurrentValue.Equal(decimal.NewFromInt(1650)))

		prices["TCS"] = decimal.NewFromInt(120)
		_, _, err = engine.ApplyTrade(ctx, sell(user.ID, "TCS", "15"))
		require.NoError(t, err)

		stored, err = testDB.GetPositionByID(ctx, pos.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInactive, stored.Status)
		assert.True(t, stored.CurrentValue.IsZero())

		trades, err := testDB.GetTradesByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, trades, 3)
	})

	t.Run("rejected sell leaves no transaction", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "seller")
		engine := ledger.NewEngine(testDB.DB, fixedPrices{"AAPL": decimal.NewFromInt(10)}, logger)

		_, _, err := engine.ApplyTrade(ctx, buy(user.ID, "AAPL", "1"))
		require.NoError(t, err)
		_, _, err = engine.ApplyTrade(ctx, sell(user.ID, "AAPL", "2"))
		require.ErrorIs(t, err, models.ErrInsufficientUnits)

		trades, err := testDB.GetTradesByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, trades, 1)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		testDB.TruncateAll(t)
		engine := ledger.NewEngine(testDB.DB, fixedPrices{"AAPL": decimal.NewFromInt(10)}, logger)

		_, _, err := engine.ApplyTrade(ctx, buy(999, "AAPL", "1"))
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent first buys create one row", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "racer")
		engine := ledger.NewEngine(testDB.DB, fixedPrices{"BTC": decimal.NewFromInt(5)}, logger)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := engine.ApplyTrade(ctx, buy(user.ID, "BTC", "0.5"))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		positions, err := testDB.GetPositionsByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.True(t, positions[0].Units.Equal(decimal.NewFromInt(10)))
		assert.True(t, positions[0].CostBasis.Equal(decimal.NewFromInt(50)))
	})

	t.Run("duplicate request id is rejected", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "idem")
		engine := ledger.NewEngine(testDB.DB, fixedPrices{"ETH": decimal.NewFromInt(2)}, logger)

		req := buy(user.ID, "ETH", "1")
		req.RequestID = "req-1"
		_, _, err := engine.ApplyTrade(ctx, req)
		require.NoError(t, err)
		_, _, err = engine.ApplyTrade(ctx, req)
		require.ErrorIs(t, err, models.ErrDuplicateTrade)
	})

	t.Run("refresh updates only priced symbols", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "refresh")
		prices := fixedPrices{"A": decimal.NewFromInt(10), "B": decimal.NewFromInt(20)}
		engine := ledger.NewEngine(testDB.DB, prices, logger)

		_, posA, err := engine.ApplyTrade(ctx, buy(user.ID, "A", "2"))
		require.NoError(t, err)
		_, posB, err := engine.ApplyTrade(ctx, buy(user.ID, "B", "3"))
		require.NoError(t, err)
		before, err := testDB.GetPositionByID(ctx, posB.ID)
		require.NoError(t, err)

		prices["A"] = decimal.RequireFromString("12.5")
		delete(prices, "B")

		result, err := engine.RefreshPositions(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, result.Refreshed)
		assert.Len(t, result.Failed, 1)

		a, err := testDB.GetPositionByID(ctx, posA.ID)
		require.NoError(t, err)
		assert.True(t, a.CurrentValue.Equal(decimal.NewFromInt(25)))
		assert.True(t, a.LastPrice.Equal(decimal.RequireFromString("12.5")))

		after, err := testDB.GetPositionByID(ctx, posB.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("deleting a user cascades", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "gone")
		engine := ledger.NewEngine(testDB.DB, fixedPrices{"A": decimal.NewFromInt(1)}, logger)
		_, pos, err := engine.ApplyTrade(ctx, buy(user.ID, "A", "1"))
		require.NoError(t, err)

		goal := &models.Goal{UserID: user.ID, GoalType: "House", TargetAmount: decimal.NewFromInt(1000),
			TargetDate: time.Now().AddDate(1, 0, 0)}
		require.NoError(t, testDB.CreateGoal(ctx, goal))

		require.NoError(t, testDB.DeleteUser(ctx, user.ID))

		_, err = testDB.GetPositionByID(ctx, pos.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
		goals, err := testDB.GetGoalsByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, goals)
	})
}

func TestGoalsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	t.Run("progress sums contributions", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "saver")
		goal := &models.Goal{UserID: user.ID, GoalType: "Car", TargetAmount: decimal.NewFromInt(500),
			TargetDate: time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC), MonthlyContribution: decimal.NewFromInt(50)}
		require.NoError(t, testDB.CreateGoal(ctx, goal))
		assert.Equal(t, models.GoalStatusActive, goal.Status)

		progress, err := testDB.GetGoalProgress(ctx, goal.ID)
		require.NoError(t, err)
		assert.True(t, progress.TotalPaid.IsZero())

		for _, amt := range []string{"50", "75.25"} {
			c := &models.GoalContribution{UserID: user.ID, GoalID: goal.ID, Amount: decimal.RequireFromString(amt)}
			require.NoError(t, testDB.CreateGoalContribution(ctx, c))
			assert.NotZero(t, c.ID)
		}

		progress, err = testDB.GetGoalProgress(ctx, goal.ID)
		require.NoError(t, err)
		assert.True(t, progress.TotalPaid.Equal(decimal.RequireFromString("125.25")))

		contributions, err := testDB.GetGoalContributionsByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, contributions, 2)
	})

	t.Run("update and delete", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "planner")
		goal := &models.Goal{UserID: user.ID, GoalType: "Trip", TargetAmount: decimal.NewFromInt(100),
			TargetDate: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, testDB.CreateGoal(ctx, goal))

		goal.TargetAmount = decimal.NewFromInt(200)
		goal.Status = "Completed"
		require.NoError(t, testDB.UpdateGoal(ctx, goal))
		assert.True(t, goal.TargetAmount.Equal(decimal.NewFromInt(200)))
		assert.Equal(t, "Completed", goal.Status)

		require.NoError(t, testDB.DeleteGoal(ctx, goal.ID))
		require.ErrorIs(t, testDB.DeleteGoal(ctx, goal.ID), models.ErrNotFound)
		_, err := testDB.GetGoalProgress(ctx, goal.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("goals of another user are not found", func(t *testing.T) {
		testDB.TruncateAll(t)
		owner := testDB.CreateTestUser(t, "owner")
		other := testDB.CreateTestUser(t, "other")
		goal := &models.Goal{UserID: owner.ID, GoalType: "Car", TargetAmount: decimal.NewFromInt(500),
			TargetDate: time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, testDB.CreateGoal(ctx, goal))

		err := testDB.CreateGoalContribution(ctx, &models.GoalContribution{UserID: other.ID, GoalID: goal.ID, Amount: decimal.NewFromInt(10)})
		require.ErrorIs(t, err, models.ErrNotFound)

		hijack := *goal
		hijack.UserID = other.ID
		hijack.TargetAmount = decimal.NewFromInt(1)
		require.ErrorIs(t, testDB.UpdateGoal(ctx, &hijack), models.ErrNotFound)

		progress, err := testDB.GetGoalProgress(ctx, goal.ID)
		require.NoError(t, err)
		assert.True(t, progress.TotalPaid.IsZero())
		contributions, err := testDB.GetGoalContributionsByUser(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, contributions)
		goals, err := testDB.GetGoalsByUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, goals, 1)
		assert.True(t, goals[0].TargetAmount.Equal(decimal.NewFromInt(500)))
	})

	t.Run("contribution to missing goal", func(t *testing.T) {
		testDB.TruncateAll(t)
		user := testDB.CreateTestUser(t, "lost")
		err := testDB.CreateGoalContribution(ctx, &models.GoalContribution{UserID: user.ID, GoalID: 12345, Amount: decimal.NewFromInt(1)})
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

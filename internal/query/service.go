package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/core"
	"github.com/exactly/protocol-sub001/internal/lending"
	"github.com/exactly/protocol-sub001/internal/oracle"
)

// Service serves read-only views of the ledger. Live account and market
// state comes straight from the engine (closures scheduled on the engine
// goroutine, so reads never race command processing); event history comes
// from the Postgres event log.
type Service struct {
	engine *core.Engine
	db     *sql.DB
}

func NewService(engine *core.Engine, db *sql.DB) *Service {
	return &Service{engine: engine, db: db}
}

// AccountSnapshot returns the cross-market view of one account: entered
// markets, floating balances, debts per maturity, and the adjusted
// collateral/debt totals that decide liquidation eligibility.
func (s *Service) AccountSnapshot(ctx context.Context, account uuid.UUID, now int64) (*AccountResponse, error) {
	var resp *AccountResponse
	var viewErr error

	err := s.engine.View(ctx, func(a *lending.Auditor, _ *oracle.Store, seq int64) {
		collateral, debt, err := a.AccountLiquidity(account, nil, nil, nil, now)
		if err != nil {
			viewErr = err
			return
		}

		r := &AccountResponse{
			Account:      account,
			Collateral:   collateral.String(),
			Debt:         debt.String(),
			Healthy:      collateral.Cmp(debt) >= 0,
			AsOfSequence: seq,
		}

		for _, m := range a.Markets() {
			pos := MarketPositionView{
				Market:          m.Asset,
				Entered:         a.Entered(account, m),
				FloatingBalance: m.FloatingBalance(account).String(),
				TotalDebt:       m.TotalDebt(account, now).String(),
			}
			for _, maturity := range activeMaturities(m, now) {
				fixedDebt := m.FixedDebtAt(account, maturity, now)
				if fixedDebt.Sign() > 0 {
					pos.FixedDebts = append(pos.FixedDebts, FixedDebtView{
						Maturity: maturity,
						Debt:     fixedDebt.String(),
					})
				}
			}
			r.Positions = append(r.Positions, pos)
		}

		resp = r
	})
	if err != nil {
		return nil, err
	}
	if viewErr != nil {
		return nil, viewErr
	}
	return resp, nil
}

// MarketSnapshot returns the aggregate state of one market, including all
// maturity pools inside the active window.
func (s *Service) MarketSnapshot(ctx context.Context, asset string, now int64) (*MarketResponse, error) {
	var resp *MarketResponse
	var viewErr error

	err := s.engine.View(ctx, func(a *lending.Auditor, prices *oracle.Store, seq int64) {
		m, ok := a.MarketByAsset(asset)
		if !ok {
			viewErr = lending.ErrMarketNotListed
			return
		}

		price := "0"
		if p, err := prices.Price(asset); err == nil {
			price = p.String()
		}

		r := &MarketResponse{
			Market:              m.Asset,
			Price:               price,
			AdjustFactor:        a.AdjustFactor(m).String(),
			FloatingAssets:      m.FloatingAssets().String(),
			FloatingDebt:        m.FloatingDebt().String(),
			BackupBorrowed:      m.FloatingBackupBorrowed().String(),
			EarningsAccumulator: m.EarningsAccumulator().String(),
			AsOfSequence:        seq,
		}

		for _, maturity := range activeMaturities(m, now) {
			pool := m.FixedPoolSnapshot(maturity)
			if pool == nil {
				continue
			}
			r.FixedPools = append(r.FixedPools, FixedPoolView{
				Maturity:           maturity,
				Borrowed:           pool.Borrowed.String(),
				Supplied:           pool.Supplied.String(),
				UnassignedEarnings: pool.UnassignedEarnings.String(),
				LastAccrual:        pool.LastAccrual,
			})
		}

		resp = r
	})
	if err != nil {
		return nil, err
	}
	if viewErr != nil {
		return nil, viewErr
	}
	return resp, nil
}

// ListMarkets returns the assets of all enabled markets.
func (s *Service) ListMarkets(ctx context.Context) ([]string, error) {
	var assets []string
	err := s.engine.View(ctx, func(a *lending.Auditor, _ *oracle.Store, _ int64) {
		for _, m := range a.Markets() {
			assets = append(assets, m.Asset)
		}
	})
	return assets, err
}

// EventHistory returns persisted events in descending sequence order with
// cursor-based pagination: pass the last sequence of the previous page as
// afterSequence to fetch the next one.
func (s *Service) EventHistory(ctx context.Context, marketID *string, limit int, afterSequence *int64) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT sequence, event_type, idempotency_key, market_id,
		       payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if marketID != nil {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, *marketID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// VerifyIntegrity audits the event log: every sequence present exactly
// once and every event's prev_hash equal to its predecessor's state_hash.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{LastSequence: -1}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(sequence), -1) FROM event_log.events
	`).Scan(&report.EventCount, &report.LastSequence)
	if err != nil {
		return nil, err
	}

	gapRows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence + 1
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence + 1
		WHERE e2.sequence IS NULL AND e1.sequence < (SELECT MAX(sequence) FROM event_log.events)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer gapRows.Close()

	for gapRows.Next() {
		var seq int64
		if err := gapRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := gapRows.Err(); err != nil {
		return nil, err
	}

	chainRows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer chainRows.Close()

	for chainRows.Next() {
		var seq int64
		if err := chainRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := chainRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.SequenceGaps) == 0 && len(report.HashChainBreaks) == 0
	return report, nil
}

// activeMaturities lists the maturity grid points inside the market's
// future window, oldest first.
func activeMaturities(m *lending.Market, now int64) []int64 {
	base := now - now%lending.FixedInterval
	maturities := make([]int64, 0, m.MaxFuturePools())
	for i := 1; i <= m.MaxFuturePools(); i++ {
		maturities = append(maturities, base+int64(i)*lending.FixedInterval)
	}
	return maturities
}

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/exactly/protocol-sub001/internal/event"
	"github.com/exactly/protocol-sub001/internal/lending"
	"github.com/exactly/protocol-sub001/internal/observability"
	"github.com/exactly/protocol-sub001/internal/oracle"
)

// Output is one event leaving the engine: the envelope plus the typed
// payload for outbound publishing.
type Output struct {
	Envelope event.Envelope
	Payload  event.Event
}

// Engine is the single-threaded command processor. All market and auditor
// state is owned by the engine goroutine: commands arrive on a channel,
// execute one at a time, and every state change leaves as a hash-chained
// event on the persist channel. The engine never calls time.Now() for
// state decisions — command timestamps are versioned inputs.
type Engine struct {
	auditor *lending.Auditor
	prices  *oracle.Store

	sequence    int64
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	feed        *PriceFeedTracker

	// Events recorded by the lending core during the current command.
	pending []event.Event

	persistChan chan<- Output
	publishChan chan<- Output

	requests chan Request
	views    chan viewRequest

	metrics *observability.Metrics
	log     zerolog.Logger
}

type viewRequest struct {
	fn   func()
	done chan struct{}
}

func NewEngine(
	auditor *lending.Auditor,
	prices *oracle.Store,
	persistChan, publishChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	lruCapacity int,
	metrics *observability.Metrics,
) *Engine {
	e := &Engine{
		auditor:     auditor,
		prices:      prices,
		hasher:      NewStateHasher(),
		idempotency: NewIdempotencyChecker(lruCapacity, dbChecker),
		feed:        NewPriceFeedTracker(),
		persistChan: persistChan,
		publishChan: publishChan,
		requests:    make(chan Request, 1024),
		views:       make(chan viewRequest),
		metrics:     metrics,
		log:         observability.NewLogger("core"),
	}

	// Every state change inside the lending core flows back through
	// Record so the event log stays complete.
	auditor.SetRecorder(e)
	for _, m := range auditor.Markets() {
		m.SetRecorder(e)
	}

	return e
}

// Record buffers an event emitted by the lending core during command
// execution. Implements lending.Recorder.
func (e *Engine) Record(evt event.Event) {
	e.pending = append(e.pending, evt)
}

// Resume continues the event log from a persisted tip. Must be called
// before Run.
func (e *Engine) Resume(lastSequence int64, lastHash [32]byte) {
	e.sequence = lastSequence + 1
	e.hasher.SetPrevHash(lastHash)
}

// WarmLRU preloads recent idempotency keys.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.WarmFromKeys(keys)
}

// Run drains the command channel until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-e.requests:
			if !ok {
				return nil
			}
			res := e.execute(req.Cmd)
			if req.Reply != nil {
				req.Reply <- res
			}
		case v := <-e.views:
			v.fn()
			close(v.done)
		}
	}
}

// Submit sends a command to the engine loop and waits for its result.
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case e.requests <- Request{Cmd: cmd, Reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// View runs fn on the engine goroutine, giving it exclusive read access
// to the auditor and markets. fn must not retain references after return.
func (e *Engine) View(ctx context.Context, fn func(a *lending.Auditor, p *oracle.Store, sequence int64)) error {
	done := make(chan struct{})
	wrapped := func() { fn(e.auditor, e.prices, e.sequence) }
	select {
	case e.views <- viewRequest{fn: wrapped, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) execute(cmd Command) Result {
	start := time.Now()
	kind := cmd.Kind.String()
	key := cmd.ID.String()

	if e.idempotency.IsDuplicate(key) {
		if e.metrics != nil {
			e.metrics.IdempotencyDuplicates.WithLabelValues(kind).Inc()
			e.metrics.CoreCommandsRejected.WithLabelValues(kind, "duplicate").Inc()
		}
		return Result{Sequence: -1}
	}

	e.pending = e.pending[:0]
	value, extra, err := e.dispatch(cmd)

	// Events already recorded reflect applied state changes and are
	// emitted even when the command ultimately failed (a borrow can
	// auto-enter the market before the solvency check rejects it).
	firstSeq := int64(-1)
	for i, evt := range e.pending {
		seq := e.emit(evt, cmd, i)
		if firstSeq < 0 {
			firstSeq = seq
		}
	}
	e.pending = e.pending[:0]

	e.postCheckInvariants()

	if err != nil {
		if e.metrics != nil {
			e.metrics.CoreCommandsRejected.WithLabelValues(kind, "validation").Inc()
		}
		e.log.Debug().
			Str("kind", kind).
			Str("command_id", key).
			Err(err).
			Msg("command rejected")
		return Result{Sequence: firstSeq, Err: err}
	}

	e.idempotency.MarkProcessed(key)
	e.updateMarketGauges(cmd)

	if e.metrics != nil {
		e.metrics.CoreCommandsApplied.WithLabelValues(kind).Inc()
		e.metrics.CoreCommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))
	}

	return Result{Sequence: firstSeq, Value: value, Extra: extra}
}

// emit wraps one event into an envelope, extends the hash chain, and
// fans it out: blocking to persistence, best-effort to the publisher.
func (e *Engine) emit(evt event.Event, cmd Command, index int) int64 {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s event: %v", evt.EventType(), err))
	}

	idemKey := cmd.ID.String()
	if index > 0 {
		idemKey = fmt.Sprintf("%s#%d", idemKey, index)
	}

	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, payload)

	out := Output{
		Envelope: event.Envelope{
			Sequence:       e.sequence,
			IdempotencyKey: idemKey,
			EventType:      evt.EventType(),
			MarketID:       evt.MarketID(),
			Timestamp:      time.Unix(cmd.Timestamp, 0).UTC(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		Payload: evt,
	}

	seq := e.sequence
	e.sequence++

	// Blocking send: if the persistence worker falls behind, the engine
	// stalls rather than losing an event.
	select {
	case e.persistChan <- out:
	default:
		if e.metrics != nil {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}

	select {
	case e.publishChan <- out:
	default:
		if e.metrics != nil {
			e.metrics.PublishDrops.Inc()
		}
	}

	if e.metrics != nil {
		e.metrics.CoreEventsEmitted.WithLabelValues(evt.EventType().String()).Inc()
		if evt.EventType() == event.EventTypeBadDebtCleared {
			if mid := evt.MarketID(); mid != nil {
				e.metrics.BadDebtClearedTotal.WithLabelValues(*mid).Inc()
			}
		}
	}

	return seq
}

func (e *Engine) dispatch(cmd Command) (value, extra *big.Int, err error) {
	if cmd.Kind == CmdUpdatePrice {
		return e.applyPrice(cmd)
	}
	if cmd.Kind == CmdUpdateParam {
		return nil, nil, e.applyParam(cmd)
	}

	m, ok := e.auditor.MarketByAsset(cmd.Market)
	if !ok {
		return nil, nil, lending.ErrMarketNotListed
	}

	switch cmd.Kind {
	case CmdDepositFloating:
		shares, err := m.DepositFloating(cmd.Account, cmd.Amount, cmd.Timestamp)
		return shares, nil, err

	case CmdWithdrawFloating:
		assets, err := m.WithdrawFloating(cmd.Account, cmd.Amount, cmd.Timestamp)
		return assets, nil, err

	case CmdBorrowFloating:
		shares, err := m.BorrowFloating(cmd.Account, cmd.Amount, cmd.Timestamp)
		return shares, nil, err

	case CmdRepayFloating:
		actual, refund, err := m.RepayFloating(cmd.Account, cmd.Amount, cmd.Timestamp)
		return actual, refund, err

	case CmdDepositFixed:
		assetsOut, err := m.DepositFixed(cmd.Account, cmd.Maturity, cmd.Amount, cmd.Bound, cmd.Timestamp)
		return assetsOut, nil, err

	case CmdWithdrawFixed:
		assets, err := m.WithdrawFixed(cmd.Account, cmd.Maturity, cmd.Amount, cmd.Timestamp)
		return assets, nil, err

	case CmdBorrowFixed:
		assetsOwed, err := m.BorrowFixed(cmd.Account, cmd.Maturity, cmd.Amount, cmd.Bound, cmd.Timestamp)
		return assetsOwed, nil, err

	case CmdRepayFixed:
		reduction, err := m.RepayFixed(cmd.Account, cmd.Maturity, cmd.Amount, cmd.Timestamp)
		return reduction, nil, err

	case CmdLiquidate:
		collateral, ok := e.auditor.MarketByAsset(cmd.CollateralMarket)
		if !ok {
			return nil, nil, lending.ErrMarketNotListed
		}
		repaid, seized, err := m.Liquidate(cmd.Account, cmd.Borrower, cmd.Amount, cmd.Bound, collateral, cmd.Timestamp)
		if err == nil && e.metrics != nil {
			e.metrics.LiquidationsTotal.WithLabelValues(cmd.Market).Inc()
		}
		return repaid, seized, err

	case CmdEnterMarket:
		return nil, nil, e.auditor.EnterMarket(cmd.Account, m)

	case CmdExitMarket:
		return nil, nil, e.auditor.ExitMarket(cmd.Account, m, cmd.Timestamp)

	default:
		return nil, nil, fmt.Errorf("unknown command kind: %d", cmd.Kind)
	}
}

func (e *Engine) applyPrice(cmd Command) (value, extra *big.Int, err error) {
	if !e.feed.Accept(cmd.Market, cmd.PriceSequence) {
		if e.metrics != nil {
			e.metrics.PriceQuotesStale.WithLabelValues(cmd.Market).Inc()
		}
		return nil, nil, nil
	}

	if err := e.prices.Set(cmd.Market, cmd.Amount); err != nil {
		return nil, nil, err
	}

	e.Record(&event.PriceUpdated{
		Asset: cmd.Market,
		Price: new(big.Int).Set(cmd.Amount),
	})

	if e.metrics != nil {
		e.metrics.PriceQuotesApplied.WithLabelValues(cmd.Market).Inc()
		e.metrics.OraclePrice.WithLabelValues(cmd.Market).Set(observability.WadGauge(cmd.Amount))
	}

	return new(big.Int).Set(cmd.Amount), nil, nil
}

// applyParam routes a governance parameter update to its setter. The
// interest rate model is excluded: its nine coupled parameters ship via
// the markets file at boot, not piecemeal at runtime.
func (e *Engine) applyParam(cmd Command) error {
	if cmd.Amount == nil {
		return lending.ErrZeroAmount
	}

	switch cmd.Param {
	case "close_factor":
		e.auditor.SetCloseFactor(cmd.Amount)
		return nil
	case "liquidation_incentive":
		e.auditor.SetLiquidationIncentive(cmd.Amount, cmd.Bound)
		return nil
	}

	m, ok := e.auditor.MarketByAsset(cmd.Market)
	if !ok {
		return lending.ErrMarketNotListed
	}

	switch cmd.Param {
	case "adjust_factor":
		return e.auditor.SetAdjustFactor(m, cmd.Amount)
	case "penalty_rate":
		m.SetPenaltyRate(cmd.Amount)
	case "backup_fee_rate":
		m.SetBackupFeeRate(cmd.Amount)
	case "reserve_factor":
		m.SetReserveFactor(cmd.Amount)
	case "damp_speeds":
		m.SetDampSpeeds(cmd.Amount, cmd.Bound)
	case "max_future_pools":
		n := cmd.Amount.Int64()
		if n <= 0 || !cmd.Amount.IsInt64() {
			return lending.ErrZeroAmount
		}
		m.SetMaxFuturePools(int(n))
	default:
		return fmt.Errorf("unknown parameter %q", cmd.Param)
	}
	return nil
}

// postCheckInvariants re-verifies backup-debt bookkeeping and cash
// conservation after every command. A violation means the in-memory state
// has diverged from the accounting identity, so continuing would corrupt
// the event log.
func (e *Engine) postCheckInvariants() {
	for _, m := range e.auditor.Markets() {
		if !m.CheckBackupDebtConsistency() {
			panic(fmt.Sprintf("FATAL: backup debt inconsistency in market %s at sequence %d", m.Asset, e.sequence))
		}
		if !m.CheckCashConsistency() {
			panic(fmt.Sprintf("FATAL: cash conservation violation in market %s at sequence %d", m.Asset, e.sequence))
		}
	}
}

func (e *Engine) updateMarketGauges(cmd Command) {
	if e.metrics == nil {
		return
	}
	for _, asset := range []string{cmd.Market, cmd.CollateralMarket} {
		if asset == "" {
			continue
		}
		m, ok := e.auditor.MarketByAsset(asset)
		if !ok {
			continue
		}
		e.metrics.MarketFloatingAssets.WithLabelValues(asset).Set(observability.WadGauge(m.FloatingAssets()))
		e.metrics.MarketFloatingDebt.WithLabelValues(asset).Set(observability.WadGauge(m.FloatingDebt()))
		e.metrics.MarketBackupBorrowed.WithLabelValues(asset).Set(observability.WadGauge(m.FloatingBackupBorrowed()))
		e.metrics.MarketEarningsAccumulator.WithLabelValues(asset).Set(observability.WadGauge(m.EarningsAccumulator()))
	}
}

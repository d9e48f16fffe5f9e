package lottery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Purchase is the outcome of a successful BuyTicket
type Purchase struct {
	RoundID uint64 `json:"round_id"`
	Tickets uint64 `json:"tickets"` // whole tickets bought by this call
	Refund  uint64 `json:"refund"`  // payment remainder credited back to the caller
	Balance uint64 `json:"balance"` // caller's ticket balance after the purchase
}

// RevealReceipt is the outcome of a successful Reveal
type RevealReceipt struct {
	RoundID        uint64 `json:"round_id"`
	Tickets        uint64 `json:"tickets"`
	CandidateCount uint64 `json:"candidate_count"`
}

// LotteryEngine runs the round state machine. Every operation executes under
// one lock against a write-buffering transaction, so operations are totally
// ordered and either commit entirely or leave no trace.
type LotteryEngine struct {
	store     Store
	config    *LotteryConfig
	entropy   EntropySource
	publisher EventPublisher
	clock     Clock
	logger    Logger
	mu        sync.Mutex

	locker         Locker
	lockExpiration time.Duration

	performanceMonitor *PerformanceMonitor
}

// NewLotteryEngine creates an engine over store with the default logger
func NewLotteryEngine(store Store, config *LotteryConfig, entropy EntropySource) *LotteryEngine {
	return NewLotteryEngineWithLogger(store, config, entropy, NewDefaultLogger())
}

// NewLotteryEngineWithLogger creates an engine with a custom logger
func NewLotteryEngineWithLogger(store Store, config *LotteryConfig, entropy EntropySource, logger Logger) *LotteryEngine {
	if config == nil {
		config = DefaultLotteryConfig()
	}
	if entropy == nil {
		entropy = CryptoEntropy{}
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	return &LotteryEngine{
		store:     store,
		config:    config,
		entropy:   entropy,
		publisher: NewLogEventPublisher(),
		clock:     time.Now,
		logger:    logger,

		lockExpiration: DefaultLockExpiration,

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// SetLocker makes every operation also hold a cross-process lock
func (e *LotteryEngine) SetLocker(locker Locker, expiration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.locker = locker
	if expiration > 0 {
		e.lockExpiration = expiration
	}
}

// SetClock replaces the host clock
func (e *LotteryEngine) SetClock(clock Clock) {
	if clock != nil {
		e.mu.Lock()
		e.clock = clock
		e.mu.Unlock()
	}
}

// SetEventPublisher replaces the event publisher
func (e *LotteryEngine) SetEventPublisher(publisher EventPublisher) {
	if publisher != nil {
		e.mu.Lock()
		e.publisher = publisher
		e.mu.Unlock()
	}
}

// SetLogger updates the logger at runtime
func (e *LotteryEngine) SetLogger(logger Logger) {
	if logger != nil && logger != e.logger {
		e.mu.Lock()
		e.logger = logger
		e.mu.Unlock()
	}
}

// GetLogger returns the current logger
func (e *LotteryEngine) GetLogger() Logger { return e.logger }

// SetPerformanceMonitor shares a monitor, e.g. with the Redis store
func (e *LotteryEngine) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	if monitor != nil {
		e.mu.Lock()
		e.performanceMonitor = monitor
		e.mu.Unlock()
	}
}

// GetPerformanceMetrics 获取性能指标
func (e *LotteryEngine) GetPerformanceMetrics() PerformanceMetrics {
	return e.performanceMonitor.GetMetrics()
}

// Operator returns the operator account
func (e *LotteryEngine) Operator() Account { return e.config.Operator }

// session is the view of state one operation works on.
type session struct {
	ctx   context.Context
	tx    *txn
	now   time.Time
	round *Round
}

func (s *session) phase() Phase { return PhaseAt(s.now, s.round) }

func (s *session) requirePhase(want Phase) error {
	if got := s.phase(); got != want {
		return ErrWrongPhase.WithDetails("requires " + want.String() + ", round is " + got.String())
	}
	return nil
}

func (s *session) saveRound() error { return s.tx.putJSON(roundKey, s.round) }

func (s *session) ledger() ticketLedger { return ticketLedger{tx: s.tx} }
func (s *session) registry() commitRegistry { return commitRegistry{tx: s.tx} }
func (s *session) pool() candidatePoolStore { return candidatePoolStore{tx: s.tx} }
func (s *session) custody() fundsCustody { return fundsCustody{tx: s.tx} }

// execute runs fn as one atomic, serialized operation and publishes the
// events it emitted once the batch is committed.
func (e *LotteryEngine) execute(ctx context.Context, op string, fn func(s *session) error) error {
	start := time.Now()

	events, err := e.executeLocked(ctx, fn)
	e.performanceMonitor.RecordOperation(op, err, time.Since(start))

	if err != nil {
		if lotteryErr, ok := err.(*LotteryError); ok {
			err = lotteryErr.WithOperation(op)
		}
		if IsBusinessError(err) {
			e.logger.Debug("%s rejected: %v", op, err)
		} else {
			e.logger.Error("%s failed: %v", op, err)
		}
		return err
	}

	for _, event := range events {
		if pubErr := e.publisher.Publish(ctx, event); pubErr != nil {
			e.logger.Error("Publishing %s failed: %v", event.Type(), pubErr)
		}
	}
	return nil
}

func (e *LotteryEngine) executeLocked(ctx context.Context, fn func(s *session) error) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locker != nil {
		lockValue := uuid.New().String()
		acquired, err := e.locker.AcquireLock(ctx, RoundLockKey, lockValue, e.lockExpiration)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrLockAcquisitionFailed.WithDetails("round lock is held elsewhere")
		}
		defer func() {
			// A detached context: the lock must be released even if ctx was cancelled.
			if released, err := e.locker.ReleaseLock(context.WithoutCancel(ctx), RoundLockKey, lockValue); err != nil || !released {
				e.logger.Error("Round lock release failed: released=%v, error=%v", released, err)
			}
		}()
	}

	tx := newTxn(ctx, e.store, e.config.Namespace)
	round := newRound()
	if _, err := tx.getJSON(roundKey, round); err != nil {
		return nil, err
	}

	s := &session{ctx: ctx, tx: tx, now: e.clock(), round: round}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.events, nil
}

// Activate opens a round. Only the operator may call it, only while inactive.
func (e *LotteryEngine) Activate(ctx context.Context, caller Account, params RoundParams) (*RoundActivated, error) {
	e.logger.Debug("Activate called by %s: price=%d, divisor=%d, sale=%v, reveal=%v",
		caller, params.TicketPrice, params.CommissionDivisor, params.SaleDuration, params.RevealDuration)

	var event *RoundActivated
	err := e.execute(ctx, OpActivate, func(s *session) error {
		if caller != e.config.Operator {
			return ErrUnauthorized.WithDetails(string(caller) + " is not the operator")
		}
		if err := s.requirePhase(PhaseInactive); err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}

		r := s.round
		r.Active = true
		r.TicketPrice = params.TicketPrice
		r.CommissionDivisor = params.CommissionDivisor
		r.ActivatedAt = s.now
		r.SaleDeadline = s.now.Add(params.SaleDuration)
		r.RevealDeadline = r.SaleDeadline.Add(params.RevealDuration)
		if err := s.saveRound(); err != nil {
			return err
		}

		event = &RoundActivated{
			RoundID:        r.RoundID,
			TicketPrice:    r.TicketPrice,
			SaleDeadline:   r.SaleDeadline,
			RevealDeadline: r.RevealDeadline,
		}
		s.tx.emit(event)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Round %d activated: price=%d, sale until %v, reveal until %v",
		event.RoundID, event.TicketPrice, event.SaleDeadline, event.RevealDeadline)
	return event, nil
}

// BuyTicket buys floor(payment/price) tickets during Sale. The remainder is
// credited back to the caller. The commitment is stored only on the caller's
// first purchase of the round and never changed afterwards.
func (e *LotteryEngine) BuyTicket(ctx context.Context, caller Account, payment uint64, commitment Hash) (*Purchase, error) {
	e.logger.Debug("BuyTicket called by %s: payment=%d", caller, payment)

	var purchase *Purchase
	err := e.execute(ctx, OpBuyTicket, func(s *session) error {
		if err := s.requirePhase(PhaseSale); err != nil {
			return err
		}

		r := s.round
		tickets := payment / r.TicketPrice
		if tickets == 0 {
			return ErrInsufficientPayment.WithMetadata("payment", payment).WithMetadata("price", r.TicketPrice)
		}
		cost := tickets * r.TicketPrice
		refund := payment - cost

		custody := s.custody()
		if err := custody.deposit(cost); err != nil {
			return err
		}
		if err := custody.transfer(caller, refund); err != nil {
			return err
		}

		ledger := s.ledger()
		current, err := ledger.balance(r.RoundID, caller)
		if err != nil {
			return err
		}
		if current == 0 {
			if err := s.registry().register(r.RoundID, caller, commitment); err != nil {
				return err
			}
		}
		balance, err := ledger.add(r.RoundID, caller, tickets)
		if err != nil {
			return err
		}

		issued, ok := addUint64(r.TicketsIssued, tickets)
		if !ok {
			return ErrInvalidParameter.WithDetails("tickets issued overflow")
		}
		r.TicketsIssued = issued
		if err := s.saveRound(); err != nil {
			return err
		}

		purchase = &Purchase{RoundID: r.RoundID, Tickets: tickets, Refund: refund, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.performanceMonitor.RecordTicketsSold(purchase.Tickets)
	e.logger.Info("Round %d: %s bought %d tickets (balance %d, refund %d)",
		purchase.RoundID, caller, purchase.Tickets, purchase.Balance, purchase.Refund)
	return purchase, nil
}

// Reveal opens the caller's commitment during Reveal. A valid reveal folds
// the secret into the accumulator and adds one pool entry per ticket.
func (e *LotteryEngine) Reveal(ctx context.Context, caller Account, secret Hash) (*RevealReceipt, error) {
	e.logger.Debug("Reveal called by %s", caller)

	var receipt *RevealReceipt
	err := e.execute(ctx, OpReveal, func(s *session) error {
		if err := s.requirePhase(PhaseReveal); err != nil {
			return err
		}

		r := s.round
		registry := s.registry()
		rec, err := registry.get(r.RoundID, caller)
		if err != nil {
			return err
		}
		if rec.Revealed {
			return ErrAlreadyRevealed
		}

		tickets, err := s.ledger().balance(r.RoundID, caller)
		if err != nil {
			return err
		}
		if tickets == 0 {
			return ErrNoTickets
		}
		if !rec.matches(secret) {
			return ErrCommitmentMismatch
		}

		r.absorb(secret)
		if err := registry.markRevealed(r.RoundID, caller, rec); err != nil {
			return err
		}

		poolStore := s.pool()
		pool, err := poolStore.load()
		if err != nil {
			return err
		}
		if !pool.Append(caller, tickets) {
			return ErrAccountingInvariantViolated.WithDetails("candidate pool overflow")
		}
		if err := poolStore.save(pool); err != nil {
			return err
		}
		if err := s.saveRound(); err != nil {
			return err
		}

		receipt = &RevealReceipt{RoundID: r.RoundID, Tickets: tickets, CandidateCount: pool.Len()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Round %d: %s revealed %d tickets (pool size %d)",
		receipt.RoundID, caller, receipt.Tickets, receipt.CandidateCount)
	return receipt, nil
}

// FindWinner settles the round during Payout. Anyone may call it. The seed
// is keccak(accumulator ‖ entropy) so no participant could steer it while
// reveals were open; the winner is pool[seed mod len(pool)].
func (e *LotteryEngine) FindWinner(ctx context.Context, caller Account) (*RoundWon, error) {
	e.logger.Debug("FindWinner called by %s", caller)

	var event *RoundWon
	err := e.execute(ctx, OpFindWinner, func(s *session) error {
		if err := s.requirePhase(PhasePayout); err != nil {
			return err
		}

		r := s.round
		poolStore := s.pool()
		pool, err := poolStore.load()
		if err != nil {
			return err
		}
		candidates := pool.Len()
		if candidates == 0 {
			return ErrNoCandidates.WithDetails("nobody revealed; escrow stays held")
		}

		entropy, err := e.entropy.Entropy(s.ctx, r.RoundID)
		if err != nil {
			return ErrEntropyUnavailable.WithCause(err)
		}
		seed := WinnerSeed(r.Accumulator, entropy)
		index := WinningIndex(seed, candidates)
		winner, ok := pool.At(index)
		if !ok {
			return ErrAccountingInvariantViolated.WithDetails("winning index outside candidate pool")
		}

		custody := s.custody()
		escrow, err := custody.escrow()
		if err != nil {
			return err
		}
		prize, commission, err := custody.settle(e.config.Operator, winner, r.CommissionDivisor)
		if err != nil {
			return err
		}
		if prize+commission != escrow {
			return ErrAccountingInvariantViolated.WithDetails("prize and commission do not partition escrow")
		}

		event = &RoundWon{
			RoundID:        r.RoundID,
			Winner:         winner,
			Prize:          prize,
			Commission:     commission,
			TicketsIssued:  r.TicketsIssued,
			CandidateCount: candidates,
			Duration:       s.now.Sub(r.ActivatedAt),
			Seed:           seed,
			WinningIndex:   index,
		}
		s.tx.emit(event)

		return e.deactivate(s)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Round %d won by %s: prize=%d, commission=%d, tickets=%d, candidates=%d",
		event.RoundID, event.Winner, event.Prize, event.Commission, event.TicketsIssued, event.CandidateCount)
	return event, nil
}

// deactivate closes the round after payout. A non-zero escrow here means the
// payout arithmetic is broken, and the whole operation is aborted.
func (e *LotteryEngine) deactivate(s *session) error {
	escrow, err := s.custody().escrow()
	if err != nil {
		return err
	}
	if escrow != 0 {
		return ErrAccountingInvariantViolated.WithStackTrace().WithMetadata("escrow", escrow)
	}

	// Ticket and commitment records are left in place; the new round id
	// makes them unreachable until Reclaim erases them.
	s.round.reset()
	s.pool().clear()
	return s.saveRound()
}

// Reclaim erases the ticket and commitment records of (roundID, account) for
// a finished round. Any caller may do it; repeating it is a no-op.
func (e *LotteryEngine) Reclaim(ctx context.Context, caller Account, roundID uint64, account Account) error {
	e.logger.Debug("Reclaim called by %s for round %d, account %s", caller, roundID, account)

	return e.execute(ctx, OpReclaim, func(s *session) error {
		if roundID == 0 || roundID >= s.round.RoundID {
			return ErrInvalidParameter.WithDetails("only finished rounds can be reclaimed")
		}
		s.ledger().erase(roundID, account)
		s.registry().erase(roundID, account)
		return nil
	})
}

// TicketBalance returns account's tickets in the active round
func (e *LotteryEngine) TicketBalance(ctx context.Context, account Account) (uint64, error) {
	var balance uint64
	err := e.execute(ctx, OpRead, func(s *session) error {
		if !s.round.Active {
			return ErrWrongPhase.WithDetails("no active round")
		}
		var err error
		balance, err = s.ledger().balance(s.round.RoundID, account)
		return err
	})
	return balance, err
}

// Commitment returns account's commitment in the active round
func (e *LotteryEngine) Commitment(ctx context.Context, account Account) (Hash, error) {
	var rec CommitmentRecord
	err := e.execute(ctx, OpRead, func(s *session) error {
		if !s.round.Active {
			return ErrWrongPhase.WithDetails("no active round")
		}
		var err error
		rec, err = s.registry().get(s.round.RoundID, account)
		return err
	})
	return rec.Hash, err
}

// Revealed reports whether account revealed in the active round
func (e *LotteryEngine) Revealed(ctx context.Context, account Account) (bool, error) {
	var rec CommitmentRecord
	err := e.execute(ctx, OpRead, func(s *session) error {
		if !s.round.Active {
			return ErrWrongPhase.WithDetails("no active round")
		}
		var err error
		rec, err = s.registry().get(s.round.RoundID, account)
		return err
	})
	return rec.Revealed, err
}

// RoundInfo returns a snapshot of the current round
func (e *LotteryEngine) RoundInfo(ctx context.Context) (*RoundInfo, error) {
	var info *RoundInfo
	err := e.execute(ctx, OpRead, func(s *session) error {
		escrow, err := s.custody().escrow()
		if err != nil {
			return err
		}
		pool, err := s.pool().load()
		if err != nil {
			return err
		}
		r := s.round
		info = &RoundInfo{
			RoundID:           r.RoundID,
			Phase:             s.phase(),
			TicketPrice:       r.TicketPrice,
			CommissionDivisor: r.CommissionDivisor,
			ActivatedAt:       r.ActivatedAt,
			SaleDeadline:      r.SaleDeadline,
			RevealDeadline:    r.RevealDeadline,
			TicketsIssued:     r.TicketsIssued,
			Escrow:            escrow,
			CandidateCount:    pool.Len(),
		}
		return nil
	})
	return info, err
}

// CreditBalance returns the value credited to account by refunds and payouts
func (e *LotteryEngine) CreditBalance(ctx context.Context, account Account) (uint64, error) {
	var balance uint64
	err := e.execute(ctx, OpRead, func(s *session) error {
		var err error
		balance, err = s.custody().credit(account)
		return err
	})
	return balance, err
}

var _ Lottery = (*LotteryEngine)(nil)

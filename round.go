package lottery

import "time"

// Phase is the lifecycle state of the current round
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseSale
	PhaseReveal
	PhasePayout
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseSale:
		return "sale"
	case PhaseReveal:
		return "reveal"
	case PhasePayout:
		return "payout"
	default:
		return "unknown"
	}
}

// Round is the singleton record owned by the engine. Only one round is ever
// active; RoundID keeps increasing across cycles.
type Round struct {
	RoundID           uint64    `json:"round_id"`
	Active            bool      `json:"active"`
	TicketPrice       uint64    `json:"ticket_price"`
	CommissionDivisor uint64    `json:"commission_divisor"`
	ActivatedAt       time.Time `json:"activated_at"`
	SaleDeadline      time.Time `json:"sale_deadline"`
	RevealDeadline    time.Time `json:"reveal_deadline"`
	TicketsIssued     uint64    `json:"tickets_issued"`
	Accumulator       Hash      `json:"accumulator"`
}

// newRound returns the inactive record a fresh store starts from.
func newRound() *Round { return &Round{RoundID: firstRound} }

// PhaseAt evaluates the phase of r at now. Transitions are purely a clock
// comparison; nothing is scheduled.
func PhaseAt(now time.Time, r *Round) Phase {
	if r == nil || !r.Active {
		return PhaseInactive
	}
	switch {
	case now.Before(r.SaleDeadline):
		return PhaseSale
	case now.Before(r.RevealDeadline):
		return PhaseReveal
	default:
		return PhasePayout
	}
}

// reset clears round-scoped scalars and advances to the next round id.
func (r *Round) reset() {
	*r = Round{RoundID: r.RoundID + 1}
}

// RoundParams configures a round at activation.
type RoundParams struct {
	TicketPrice       uint64        `json:"ticket_price" mapstructure:"ticket_price"`
	CommissionDivisor uint64        `json:"commission_divisor" mapstructure:"commission_divisor"`
	SaleDuration      time.Duration `json:"sale_duration" mapstructure:"sale_duration"`
	RevealDuration    time.Duration `json:"reveal_duration" mapstructure:"reveal_duration"`
}

// Validate validates the round parameters
func (p RoundParams) Validate() error {
	if p.TicketPrice == 0 {
		return ErrInvalidParameter.WithDetails("ticket price must be positive")
	}
	if p.CommissionDivisor == 0 {
		return ErrInvalidParameter.WithDetails("commission divisor must be positive")
	}
	if p.SaleDuration <= 0 {
		return ErrInvalidParameter.WithDetails("sale duration must be positive")
	}
	if p.RevealDuration < p.SaleDuration {
		return ErrInvalidParameter.WithDetails("reveal duration must not be shorter than sale duration")
	}
	return nil
}

// RoundInfo is a read-only snapshot of the current round
type RoundInfo struct {
	RoundID           uint64    `json:"round_id"`
	Phase             Phase     `json:"phase"`
	TicketPrice       uint64    `json:"ticket_price"`
	CommissionDivisor uint64    `json:"commission_divisor"`
	ActivatedAt       time.Time `json:"activated_at"`
	SaleDeadline      time.Time `json:"sale_deadline"`
	RevealDeadline    time.Time `json:"reveal_deadline"`
	TicketsIssued     uint64    `json:"tickets_issued"`
	Escrow            uint64    `json:"escrow"`
	CandidateCount    uint64    `json:"candidate_count"`
}

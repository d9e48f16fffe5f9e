package lottery

import "math/bits"

// fundsCustody holds the escrow of the active round and the credit balance
// of every account. Value moves only inside the operation's batch, so a
// transfer either commits with the rest of the operation or not at all.
type fundsCustody struct {
	tx *txn
}

func creditKeyFor(account Account) string { return creditKey + string(account) }

func (c fundsCustody) escrow() (uint64, error) {
	var balance uint64
	if _, err := c.tx.getJSON(escrowKey, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (c fundsCustody) setEscrow(balance uint64) error {
	if balance == 0 {
		c.tx.del(escrowKey)
		return nil
	}
	return c.tx.putJSON(escrowKey, balance)
}

// deposit moves amount from the caller's attached payment into escrow.
func (c fundsCustody) deposit(amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := c.escrow()
	if err != nil {
		return err
	}
	next, ok := addUint64(balance, amount)
	if !ok {
		return ErrAccountingInvariantViolated.WithDetails("escrow overflow")
	}
	return c.setEscrow(next)
}

func (c fundsCustody) credit(account Account) (uint64, error) {
	var balance uint64
	if _, err := c.tx.getJSON(creditKeyFor(account), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// transfer credits amount to account. Refunds pass straight through; payouts
// are drawn from escrow by release.
func (c fundsCustody) transfer(to Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := c.credit(to)
	if err != nil {
		return err
	}
	next, ok := addUint64(balance, amount)
	if !ok {
		return ErrAccountingInvariantViolated.WithDetails("credit overflow for " + string(to))
	}
	return c.tx.putJSON(creditKeyFor(to), next)
}

// release moves amount out of escrow to account.
func (c fundsCustody) release(to Account, amount uint64) error {
	balance, err := c.escrow()
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrAccountingInvariantViolated.WithDetails("release exceeds escrow")
	}
	if err := c.setEscrow(balance - amount); err != nil {
		return err
	}
	return c.transfer(to, amount)
}

// settle pays commission = escrow / divisor to the operator and the rest to
// the winner. The two amounts always sum to the escrow.
func (c fundsCustody) settle(operator, winner Account, divisor uint64) (prize, commission uint64, err error) {
	balance, err := c.escrow()
	if err != nil {
		return 0, 0, err
	}
	commission = balance / divisor
	prize = balance - commission

	if err := c.release(operator, commission); err != nil {
		return 0, 0, err
	}
	if err := c.release(winner, prize); err != nil {
		return 0, 0, err
	}
	return prize, commission, nil
}

func addUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

package lottery

// TicketEntry is one participant's ticket count in one round
type TicketEntry struct {
	Balance uint64 `json:"balance"`
}

// ticketLedger addresses entries by keccak(account ‖ roundID); entries of
// past rounds stay in the store, unreachable, until reclaimed.
type ticketLedger struct {
	tx *txn
}

func ticketKeyFor(account Account, roundID uint64) string {
	return ticketKey + roundScopedKey(account, roundID)
}

func (l ticketLedger) balance(roundID uint64, account Account) (uint64, error) {
	var entry TicketEntry
	if _, err := l.tx.getJSON(ticketKeyFor(account, roundID), &entry); err != nil {
		return 0, err
	}
	return entry.Balance, nil
}

func (l ticketLedger) add(roundID uint64, account Account, tickets uint64) (uint64, error) {
	current, err := l.balance(roundID, account)
	if err != nil {
		return 0, err
	}
	next, ok := addUint64(current, tickets)
	if !ok {
		return 0, ErrInvalidParameter.WithDetails("ticket balance overflow")
	}
	if err := l.tx.putJSON(ticketKeyFor(account, roundID), TicketEntry{Balance: next}); err != nil {
		return 0, err
	}
	return next, nil
}

func (l ticketLedger) erase(roundID uint64, account Account) {
	l.tx.del(ticketKeyFor(account, roundID))
}

package lottery

// CommitmentRecord is the commitment a participant registered in a round.
// Hash is written once, on the first purchase; Revealed flips once.
type CommitmentRecord struct {
	Hash     Hash `json:"hash"`
	Revealed bool `json:"revealed"`
}

type commitRegistry struct {
	tx *txn
}

func commitKeyFor(account Account, roundID uint64) string {
	return commitKey + roundScopedKey(account, roundID)
}

func (r commitRegistry) get(roundID uint64, account Account) (CommitmentRecord, error) {
	var rec CommitmentRecord
	_, err := r.tx.getJSON(commitKeyFor(account, roundID), &rec)
	return rec, err
}

func (r commitRegistry) register(roundID uint64, account Account, commitment Hash) error {
	return r.tx.putJSON(commitKeyFor(account, roundID), CommitmentRecord{Hash: commitment})
}

func (r commitRegistry) markRevealed(roundID uint64, account Account, rec CommitmentRecord) error {
	rec.Revealed = true
	return r.tx.putJSON(commitKeyFor(account, roundID), rec)
}

// matches reports whether secret opens the commitment.
func (rec CommitmentRecord) matches(secret Hash) bool { return CommitmentFor(secret) == rec.Hash }

func (r commitRegistry) erase(roundID uint64, account Account) {
	r.tx.del(commitKeyFor(account, roundID))
}

package lottery

import "sort"

// poolSegment stands for Count consecutive pool entries of Account.
type poolSegment struct {
	Account Account `json:"account"`
	Count   uint64  `json:"count"`
	// End is the exclusive index one past this segment's last entry.
	End uint64 `json:"end"`
}

// CandidatePool is the ordered, append-only list of reveal entries, one per
// ticket. It is kept run-length encoded: Len and At behave exactly as on the
// expanded list.
type CandidatePool struct {
	Segments []poolSegment `json:"segments"`
}

// Len returns the number of entries
func (p *CandidatePool) Len() uint64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].End
}

// Append adds count copies of account at the end
func (p *CandidatePool) Append(account Account, count uint64) bool {
	if count == 0 {
		return true
	}
	end, ok := addUint64(p.Len(), count)
	if !ok {
		return false
	}
	p.Segments = append(p.Segments, poolSegment{Account: account, Count: count, End: end})
	return true
}

// At returns the account at index i
func (p *CandidatePool) At(i uint64) (Account, bool) {
	if i >= p.Len() {
		return "", false
	}
	n := sort.Search(len(p.Segments), func(k int) bool { return p.Segments[k].End > i })
	return p.Segments[n].Account, true
}

// Entries expands the pool, one account per ticket, for auditing.
func (p *CandidatePool) Entries() []Account {
	out := make([]Account, 0, p.Len())
	for _, seg := range p.Segments {
		for range seg.Count {
			out = append(out, seg.Account)
		}
	}
	return out
}

type candidatePoolStore struct {
	tx *txn
}

func (s candidatePoolStore) load() (*CandidatePool, error) {
	pool := &CandidatePool{}
	if _, err := s.tx.getJSON(poolKey, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (s candidatePoolStore) save(pool *CandidatePool) error { return s.tx.putJSON(poolKey, pool) }

func (s candidatePoolStore) clear() { s.tx.del(poolKey) }

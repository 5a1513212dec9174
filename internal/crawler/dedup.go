package crawler

// DedupStore is an insertion-ordered set of MessageRecord. It is owned by a
// single capture session and is not safe for concurrent use.
type DedupStore struct {
	seen    map[MessageRecord]struct{}
	records []MessageRecord
}

// NewDedupStore returns an empty store.
func NewDedupStore() *DedupStore {
	return &DedupStore{seen: make(map[MessageRecord]struct{})}
}

// Add inserts rec unless an equal record is already present. It reports
// whether the record was new.
func (s *DedupStore) Add(rec MessageRecord) bool {
	if _, ok := s.seen[rec]; ok {
		return false
	}
	s.seen[rec] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

// Len returns the number of distinct records.
func (s *DedupStore) Len() int {
	return len(s.records)
}

// Records returns a copy of the records in first-seen order.
func (s *DedupStore) Records() []MessageRecord {
	out := make([]MessageRecord, len(s.records))
	copy(out, s.records)
	return out
}

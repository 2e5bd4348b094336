package domain

// Pager is the cursor state of one history backfill chain. It is a
// transient value recreated per request chain, never persisted.
type Pager struct {
	RecPerPage int
	PageID     int // 1-based
	RecTotal   int // running total as last reported by the server
	Continued  bool
	Gid        string
}

// DefaultPager returns the pager used when a caller supplies none.
func DefaultPager() Pager {
	return Pager{
		RecPerPage: 50,
		PageID:     1,
		RecTotal:   0,
		Continued:  true,
	}
}

// IsFetchOver reports whether the chain has covered the full history.
// Computed strictly from the latest values, so a shrinking RecTotal can
// never yield a negative remaining count.
func (p Pager) IsFetchOver() bool {
	return p.PageID*p.RecPerPage >= p.RecTotal
}

// Next returns the pager for the following page of the same chain.
func (p Pager) Next() Pager {
	p.PageID++
	return p
}

package core

// BalanceDrift describes an account whose stored balance disagrees with the
// total recomputed from its transaction history.
type BalanceDrift struct {
	AccountID int64
	Name      string
	Stored    Money
	Computed  Money
}

// Difference is stored minus computed.
func (d BalanceDrift) Difference() Money {
	return d.Stored.Sub(d.Computed)
}

// ComputeBalances folds the postings of txs into per-account totals.
func ComputeBalances(txs []Transaction) map[int64]Money {
	out := make(map[int64]Money)
	for _, t := range txs {
		for _, p := range t.Posting() {
			out[p.AccountID] = out[p.AccountID].Add(p.Delta)
		}
	}
	return out
}

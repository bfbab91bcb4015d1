package ledger

// SeedBalance is a test helper that seeds an account balance when using the
// in-memory store.
func SeedBalance(s Store, walletID string, kind Kind, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		key := accountKey{walletID: walletID, kind: kind}
		if _, exists := mem.accounts[key]; !exists {
			mem.accounts[key] = &account{status: StatusActive}
		}
		mem.accounts[key].balance = amount
	}
}

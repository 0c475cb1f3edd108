package ledger

// TamperEntry is a test helper that mutates a stored entry in place when
// using the in-memory ledger, bypassing the append-only surface. It exists
// so integrity checks can be exercised against corrupted chains.
func TamperEntry(l Ledger, voterUUID string, sequence int, mutate func(*Entry)) bool {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return false
	}
	mem.mu.RLock()
	c, ok := mem.chains[voterUUID]
	mem.mu.RUnlock()
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].Sequence == sequence {
			mutate(&c.entries[i])
			return true
		}
	}
	return false
}

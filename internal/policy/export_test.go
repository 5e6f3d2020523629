package policy

// Reads reports how many times the loader parsed a policy file.
func (l *Loader) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

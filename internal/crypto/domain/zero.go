package domain

// Zero overwrites a byte slice with zeros to clear sensitive data from memory.
func Zero(b []byte) {
	clear(b)
}

// ZeroAll zeroes every slice given.
func ZeroAll(bs ...[]byte) {
	for _, b := range bs {
		clear(b)
	}
}

//go:build !linux

package secret

// Heap fallback. Contents are still zeroed on Close.
func allocate(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func release([]byte, bool) error {
	return nil
}

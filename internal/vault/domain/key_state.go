package domain

// KeyState is the key manager lifecycle state.
type KeyState int32

const (
	// Locked is the initial state: no private key material in memory.
	Locked KeyState = iota
	// Unlocking is held while a passphrase is being verified.
	Unlocking
	// Unlocked means the private key is held in protected memory.
	Unlocked
)

func (s KeyState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

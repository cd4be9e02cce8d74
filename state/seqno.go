package state

// Sequence numbers are compared as signed 32-bit differences so that
// rollover does not make a fresh value look stale.

func SeqnoLt(a, b uint32) bool {
	return int32(b-a) > 0
}

func SeqnoLe(a, b uint32) bool {
	return a == b || SeqnoLt(a, b)
}

func SeqnoGt(a, b uint32) bool {
	return !SeqnoLe(a, b)
}

func SeqnoGe(a, b uint32) bool {
	return !SeqnoLt(a, b)
}

// SeqnoMax returns the fresher of the two sequence numbers
func SeqnoMax(a, b uint32) uint32 {
	if SeqnoLt(a, b) {
		return b
	}
	return a
}

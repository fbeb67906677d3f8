package modbus

// frameBuffer is the fixed capacity rolling receive buffer of a handle.
// Message boundaries are unknown until the framer has seen enough bytes, so
// partial frames accumulate here and consumed frames are dropped with
// compact, keeping any residual bytes of the next message at the front.
type frameBuffer struct {
	data [maxPDULength]byte
	used int
}

// append adds incoming bytes. An append that would reach capacity discards
// everything, including the bytes already buffered, and reports false.
func (b *frameBuffer) append(p []byte) bool {
	if b.used+len(p) >= len(b.data) {
		b.used = 0
		return false
	}
	copy(b.data[b.used:], p)
	b.used += len(p)
	return true
}

func (b *frameBuffer) bytes() []byte {
	return b.data[:b.used]
}

func (b *frameBuffer) reset() {
	b.used = 0
}

// compact removes the first n consumed bytes and moves the residual to the
// front of the buffer.
func (b *frameBuffer) compact(n int) {
	if n >= b.used {
		b.used = 0
		return
	}
	copy(b.data[:], b.data[n:b.used])
	b.used -= n
}

package audio

// byteFIFO is a fixed capacity ring of bytes. It is not safe for concurrent
// use; transports guard it with their own lock.
type byteFIFO struct {
	buf   []byte
	start int
	n     int
}

func newByteFIFO(size int) *byteFIFO {
	return &byteFIFO{buf: make([]byte, size)}
}

func (f *byteFIFO) len() int  { return f.n }
func (f *byteFIFO) free() int { return len(f.buf) - f.n }
func (f *byteFIFO) cap() int  { return len(f.buf) }

func (f *byteFIFO) reset() {
	f.start, f.n = 0, 0
}

// write copies as much of b as fits and returns the number of bytes copied.
func (f *byteFIFO) write(b []byte) int {
	total := 0
	for len(b) > 0 && f.free() > 0 {
		end := (f.start + f.n) % len(f.buf)
		limit := len(f.buf)
		if end < f.start {
			limit = f.start
		}
		c := copy(f.buf[end:limit], b)
		f.n += c
		total += c
		b = b[c:]
	}
	return total
}

// read moves up to len(b) bytes into b.
func (f *byteFIFO) read(b []byte) int {
	total := 0
	for len(b) > 0 && f.n > 0 {
		limit := f.start + f.n
		if limit > len(f.buf) {
			limit = len(f.buf)
		}
		c := copy(b, f.buf[f.start:limit])
		f.start = (f.start + c) % len(f.buf)
		f.n -= c
		total += c
		b = b[c:]
	}
	return total
}

// peek copies up to len(b) bytes into b without consuming them.
func (f *byteFIFO) peek(b []byte) int {
	start, n := f.start, f.n
	c := f.read(b)
	f.start, f.n = start, n
	return c
}

// discard drops up to n bytes.
func (f *byteFIFO) discard(n int) {
	if n > f.n {
		n = f.n
	}
	f.start = (f.start + n) % len(f.buf)
	f.n -= n
}

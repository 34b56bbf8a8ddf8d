package events

// ring is a fixed-capacity FIFO; pushing past capacity drops the oldest.
type ring struct {
	buf   []ChangeEvent
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]ChangeEvent, capacity)}
}

func (r *ring) cap() int { return len(r.buf) }
func (r *ring) len() int { return r.n }

func (r *ring) push(ev ChangeEvent) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) at(i int) ChangeEvent { return r.buf[(r.start+i)%len(r.buf)] }

func (r *ring) all() []ChangeEvent {
	out := make([]ChangeEvent, r.n)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

func (r *ring) newest(limit int) []ChangeEvent {
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]ChangeEvent, limit)
	for i := range out {
		out[i] = r.at(r.n - 1 - i)
	}
	return out
}

func (r *ring) reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}

package mqtt

// bufferedMsg is a publish made while the broker was unreachable.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds publishes while disconnected, dropping the oldest when
// full. Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

// push appends msg, overwriting the oldest entry when full. It reports
// whether this push was the first to drop a message since the last drain.
func (r *ringBuffer) push(msg bufferedMsg) (firstDrop bool) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return false
	}
	r.dropped++
	return r.dropped == 1
}

// drain returns the buffered messages oldest first and how many were lost
// to overflow, and empties the buffer.
func (r *ringBuffer) drain() ([]bufferedMsg, int) {
	if r.count == 0 {
		return nil, 0
	}
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
		r.buf[(start+i)%len(r.buf)] = bufferedMsg{}
	}
	dropped := r.dropped
	r.head, r.count, r.dropped = 0, 0, 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}

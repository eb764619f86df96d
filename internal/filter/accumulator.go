package filter

// Accumulator is the incremental form of MeanOf. A state machine that must
// not block feeds it one attempt per tick and reads the result once Done.
type Accumulator struct {
	want     int
	attempts int
	samples  []float64
}

// NewAccumulator expects n attempts.
func NewAccumulator(n int) *Accumulator {
	if n < 1 {
		n = 1
	}
	return &Accumulator{want: n, samples: make([]float64, 0, n)}
}

// Add records a valid sample.
func (a *Accumulator) Add(v float64) {
	a.attempts++
	a.samples = append(a.samples, v)
}

// Miss records a failed read.
func (a *Accumulator) Miss() {
	a.attempts++
}

// Done reports whether all attempts have been made.
func (a *Accumulator) Done() bool {
	return a.attempts >= a.want
}

// Mean averages the valid samples seen so far.
func (a *Accumulator) Mean() (Result, error) {
	return Mean(a.samples)
}

// Window is a fixed-size moving average.
type Window struct {
	buf  []float64
	next int
}

// NewWindow creates a window of the given size with every slot set to seed.
func NewWindow(size int, seed float64) *Window {
	if size < 1 {
		size = 1
	}
	w := &Window{buf: make([]float64, size)}
	w.Fill(seed)
	return w
}

// Fill overwrites every slot with v.
func (w *Window) Fill(v float64) {
	for i := range w.buf {
		w.buf[i] = v
	}
	w.next = 0
}

// Push replaces the oldest slot and returns the new average.
func (w *Window) Push(v float64) float64 {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	return w.Average()
}

// Average returns the mean of all slots.
func (w *Window) Average() float64 {
	var sum float64
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}

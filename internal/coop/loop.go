package coop

import "time"

// Task is one unit of work advanced by the Loop.
type Task struct {
	Name  string
	Every time.Duration // 0 runs on every tick
	Run   func(now time.Time)

	last time.Time
}

// Loop is a single-threaded tick scheduler. Each Tick runs the due tasks in
// registration order, then yields once.
type Loop struct {
	tasks  []*Task
	waiter *Waiter
	ticks  uint64
}

// NewLoop creates a Loop that yields through w. w may be nil.
func NewLoop(w *Waiter) *Loop {
	return &Loop{waiter: w}
}

// Add registers a task.
func (l *Loop) Add(name string, every time.Duration, run func(now time.Time)) {
	l.tasks = append(l.tasks, &Task{Name: name, Every: every, Run: run})
}

// Tick runs every due task once.
func (l *Loop) Tick(now time.Time) {
	l.ticks++
	for _, t := range l.tasks {
		if t.Every > 0 && !t.last.IsZero() && now.Sub(t.last) < t.Every {
			continue
		}
		t.last = now
		t.Run(now)
	}
	if l.waiter != nil {
		l.waiter.Yield()
	}
}

// Ticks returns how many times Tick has run.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

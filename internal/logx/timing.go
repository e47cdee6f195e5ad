package logx

import (
	"time"
)

type Timer struct {
	start time.Time
	id    string
	comp  string
	op    string
}

func Start(id, comp, op string) *Timer {
	return &Timer{
		start: time.Now(),
		id:    id,
		comp:  comp,
		op:    op,
	}
}

// Duration returns the time elapsed since Start.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) End() time.Duration {
	elapsed := t.Duration()
	Info(t.comp, "[%s][TIMING] %s = %v", t.id, t.op, elapsed)
	return elapsed
}

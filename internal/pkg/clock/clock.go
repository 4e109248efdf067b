package clock

import "time"

// Clock abstracts "now" so scheduler windows can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func New() Clock { return realClock{} }

// Frozen is a Clock pinned to a fixed instant, advanced manually in tests.
type Frozen struct {
	Current time.Time
}

func (f *Frozen) Now() time.Time { return f.Current }

func (f *Frozen) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

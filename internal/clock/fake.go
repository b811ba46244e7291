package clock

import "time"

// FakeClock pins Now to a fixed instant so sync runs, lock TTLs and
// token-bucket refills can be tested deterministically.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward. Not safe for concurrent use;
// advance before handing the clock to the code under test.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

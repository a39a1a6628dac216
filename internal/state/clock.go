package state

import (
	"fmt"
	"strconv"
	"strings"
)

// AttachClock hands out numbers for attached background files. It only
// moves forward, so names it produced stay unique across repeated saves.
type AttachClock struct {
	counter int
}

// Tick increments the clock and returns the new value.
func (c *AttachClock) Tick() int {
	c.counter++
	return c.counter
}

// Update moves the clock up to n if n is ahead of it.
func (c *AttachClock) Update(n int) {
	if n > c.counter {
		c.counter = n
	}
}

// Value returns the last number handed out or observed.
func (c *AttachClock) Value() int { return c.counter }

// AttachName formats the side-file name for attach number n.
func AttachName(n int) string {
	return fmt.Sprintf("bg_%d.png", n)
}

// ParseAttachName extracts n from a name produced by AttachName.
func ParseAttachName(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "bg_")
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, ".png")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

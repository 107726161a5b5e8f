package detector

// Gate is the per-bucket refractory window and glow timer bookkeeping.
//
// Every processed frame calls Tick exactly once, whether or not counting is paused, so
// cooldowns keep draining while detection is suspended.
type Gate struct {
	cooldown []int
	glow     []int
}

// NewGate creates a gate for the given number of buckets with all timers at zero.
func NewGate(buckets int) *Gate {
	if buckets < 1 {
		buckets = 1
	}
	return &Gate{
		cooldown: make([]int, buckets),
		glow:     make([]int, buckets),
	}
}

// Len returns the number of buckets.
func (g *Gate) Len() int {
	return len(g.cooldown)
}

// Tick decrements every cooldown and glow timer by one, floored at zero.
func (g *Gate) Tick() {
	for i := range g.cooldown {
		if g.cooldown[i] > 0 {
			g.cooldown[i]--
		}
		if g.glow[i] > 0 {
			g.glow[i]--
		}
	}
}

// Admit reports whether a hit on bucket may be counted. On success it arms the bucket's
// cooldown and glow timers, so a second hit on the same bucket within the window, including
// later in the same frame, is refused.
//
// Arguments:
//   - bucket: The zero-based bucket index.
//   - cooldownFrames: Frames to block the bucket for.
//   - glowFrames: Frames to highlight the bucket for.
//
// Returns:
//   - bool: true if the hit counts.
func (g *Gate) Admit(bucket, cooldownFrames, glowFrames int) bool {
	if bucket < 0 || bucket >= len(g.cooldown) || g.cooldown[bucket] > 0 {
		return false
	}
	g.cooldown[bucket] = cooldownFrames
	g.glow[bucket] = glowFrames
	return true
}

// Cooldowns returns a copy of the remaining cooldown frames per bucket.
func (g *Gate) Cooldowns() []int {
	out := make([]int, len(g.cooldown))
	copy(out, g.cooldown)
	return out
}

// Glows returns a copy of the remaining glow frames per bucket.
func (g *Gate) Glows() []int {
	out := make([]int, len(g.glow))
	copy(out, g.glow)
	return out
}

// Reset zeroes all timers.
func (g *Gate) Reset() {
	clear(g.cooldown)
	clear(g.glow)
}

package candle

// tickRing is a fixed-size circular buffer of recent ticks kept purely for
// diagnostics. No resizing, memory stays bounded regardless of tick rate.
type tickRing struct {
	data     []Tick
	capacity int
	index    int // next write position
	size     int // current number of elements
}

func newTickRing(capacity int) *tickRing {
	if capacity <= 0 {
		capacity = 64
	}
	return &tickRing{
		data:     make([]Tick, capacity),
		capacity: capacity,
	}
}

func (r *tickRing) Append(t Tick) {
	r.data[r.index] = t
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Latest returns up to n most recent ticks, oldest first.
func (r *tickRing) Latest(n int) []Tick {
	if r.size == 0 || n <= 0 {
		return []Tick{}
	}

	count := n
	if count > r.size {
		count = r.size
	}

	result := make([]Tick, count)
	start := (r.index - count + r.capacity) % r.capacity
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.capacity]
	}
	return result
}

package midilist

// mpeAllocator hands out MPE member channels for notes processed in start
// order. Channel 1 is the zone master; members are 2..16 (0-based 1..15).
// Simultaneous notes get distinct channels where possible; once all
// members are busy the least-loaded one is reused.
type mpeAllocator struct {
	active []mpeNote
	next   int
}

type mpeNote struct {
	endBeat float64
	channel uint8
}

const (
	mpeFirstMember = 1 // 0-based; channel 2 on the wire
	mpeNumMembers  = 15
)

func (a *mpeAllocator) allocate(startBeat, endBeat float64) uint8 {
	// Retire notes that ended at or before this start.
	live := a.active[:0]
	for _, n := range a.active {
		if n.endBeat > startBeat {
			live = append(live, n)
		}
	}
	a.active = live

	load := [mpeNumMembers]int{}
	for _, n := range a.active {
		load[n.channel-mpeFirstMember]++
	}
	// Round-robin over the members, preferring a free one.
	best := -1
	for i := 0; i < mpeNumMembers; i++ {
		c := (a.next + i) % mpeNumMembers
		if best < 0 || load[c] < load[best] {
			best = c
		}
		if load[c] == 0 {
			best = c
			break
		}
	}
	a.next = (best + 1) % mpeNumMembers
	ch := uint8(best + mpeFirstMember)
	a.active = append(a.active, mpeNote{endBeat: endBeat, channel: ch})
	return ch
}

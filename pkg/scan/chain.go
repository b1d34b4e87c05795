package scan

import "github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"

// ShiftListener is called after every completed shift of a chain.
type ShiftListener func(chain NodeID)

type listenerEntry struct {
	id int
	fn ShiftListener
}

// Chain is the payload of a chain node: its opcode and the five per-chain
// bit vectors. The vectors always have the chain's current length; they are
// replaced, not resized, when the length changes.
type Chain struct {
	Opcode string

	// InBits is the pattern to shift in next.
	InBits *bitvec.Vector
	// OutBits is the pattern observed by the latest shift.
	OutBits *bitvec.Vector
	// OutBitsExpected is the prediction for the next shift's OutBits.
	OutBitsExpected *bitvec.Vector
	// OldOutBitsExpected is the prediction the latest shift was checked
	// against.
	OldOutBitsExpected *bitvec.Vector
	// ShadowState tracks shadow register contents per element.
	ShadowState *bitvec.Vector

	// Initialized is false until the first shift after creation or
	// invalidation.
	Initialized bool

	listeners []listenerEntry
	nextID    int
}

func (c *Chain) allocate(n int, path string) {
	c.InBits = bitvec.New(n, path+".inBits")
	c.OutBits = bitvec.New(n, path+".outBits")
	c.OutBitsExpected = bitvec.New(n, path+".outBitsExpected")
	c.OldOutBitsExpected = bitvec.New(n, path+".oldOutBitsExpected")
	c.ShadowState = bitvec.New(n, path+".shadowState")
	c.Initialized = false
}

// AddListener registers fn for shift notifications and returns a function
// that removes it again.
func (c *Chain) AddListener(fn ShiftListener) (remove func()) {
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// NotifyShift calls every registered listener in registration order.
func (c *Chain) NotifyShift(chain NodeID) {
	for _, l := range append([]listenerEntry(nil), c.listeners...) {
		l.fn(chain)
	}
}

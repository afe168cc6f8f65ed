package batching

import "fmt"

// State is the lifecycle state of one batch generation.
type State uint8

const (
	StateFilling State = iota
	StateClosing
	StateDispatching
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateClosing:
		return "closing"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Layout of the batch word, low bits first:
//
//	cursor     16 bits  reserved slots in this generation
//	completed  16 bits  committed writes (Filling/Closing) or pending deliveries (Draining)
//	state       3 bits
//	generation 29 bits  compared for equality only; wraps
const (
	cursorBits    = 16
	completedBits = 16
	stateBits     = 3
	genBits       = 64 - cursorBits - completedBits - stateBits

	completedShift = cursorBits
	stateShift     = completedShift + completedBits
	genShift       = stateShift + stateBits

	cursorMask    = 1<<cursorBits - 1
	completedMask = 1<<completedBits - 1
	stateMask     = 1<<stateBits - 1
	genMask       = 1<<genBits - 1

	// MaxCapacity is the largest batch capacity the packed word can count.
	MaxCapacity = cursorMask
)

type word uint64

func packWord(cursor, completed int, st State, gen uint64) word {
	return word(uint64(cursor)&cursorMask |
		(uint64(completed)&completedMask)<<completedShift |
		(uint64(st)&stateMask)<<stateShift |
		(gen&genMask)<<genShift)
}

func (w word) cursor() int    { return int(uint64(w) & cursorMask) }
func (w word) completed() int { return int(uint64(w) >> completedShift & completedMask) }
func (w word) state() State   { return State(uint64(w) >> stateShift & stateMask) }
func (w word) gen() uint64    { return uint64(w) >> genShift & genMask }

func (w word) withCursor(c int) word {
	return packWord(c, w.completed(), w.state(), w.gen())
}

func (w word) withCompleted(c int) word {
	return packWord(w.cursor(), c, w.state(), w.gen())
}

func (w word) withState(s State) word {
	return packWord(w.cursor(), w.completed(), s, w.gen())
}

// recycled is the Filling word of the next generation.
func (w word) recycled() word {
	return packWord(0, 0, StateFilling, (w.gen()+1)&genMask)
}

package memory

import "sync/atomic"

// Stack is RAM that grows down from Top. The Processor reports its live stack pointer; words
// below it have not been pushed yet and read as undefined even if they hold stale values.
type Stack struct {
	*RAM

	top uint32
	sp  uint32
}

// NewStack creates a stack of size bytes ending just below top.
func NewStack(name string, top uint32, size uint32) *Stack {
	return &Stack{
		RAM: NewRAM(name, top-size, size),
		top: top,
		sp:  top,
	}
}

func (s *Stack) Top() uint32 { return s.top }

func (s *Stack) StackPointer() uint32 {
	return atomic.LoadUint32(&s.sp)
}

func (s *Stack) SetStackPointer(sp uint32) {
	atomic.StoreUint32(&s.sp, sp)
}

func (s *Stack) Read(address uint32) uint32 {
	v, _ := s.Content(address)
	return v
}

func (s *Stack) Content(address uint32) (uint32, bool) {
	if address < s.StackPointer() {
		return 0, false
	}
	return s.RAM.Content(address)
}

// Clear empties the stack and moves the stack pointer back to the top.
func (s *Stack) Clear() {
	s.RAM.Clear()
	s.SetStackPointer(s.top)
}

package memory

import (
	"sort"
	"sync"
)

// Backing is word-addressed storage mapped onto the bus at [Base, Base+Size).
type Backing interface {
	Name() string
	Base() uint32
	Size() uint32

	Read(address uint32) uint32
	Write(address uint32, value uint32)
	// Content returns the stored word and whether it has ever been written.
	Content(address uint32) (uint32, bool)

	// Clear forgets every stored word.
	Clear()
}

// Word is one observed word of a region.
type Word struct {
	Address uint32 `json:"address"`
	Value   uint32 `json:"value"`
	Defined bool   `json:"defined"`
}

// RAM is a sparse word store. Addresses are aligned down to a word boundary; words never written
// read as 0 and are reported as undefined by Content.
type RAM struct {
	name string
	base uint32
	size uint32

	mu   sync.RWMutex
	data map[uint32]uint32
}

func NewRAM(name string, base uint32, size uint32) *RAM {
	return &RAM{
		name: name,
		base: base,
		size: size,
		data: make(map[uint32]uint32),
	}
}

func (m *RAM) Name() string { return m.name }
func (m *RAM) Base() uint32 { return m.base }
func (m *RAM) Size() uint32 { return m.size }

func (m *RAM) Read(address uint32) uint32 {
	v, _ := m.Content(address)
	return v
}

func (m *RAM) Write(address uint32, value uint32) {
	defer m.mu.Unlock()
	m.mu.Lock()
	m.data[address&^3] = value
}

func (m *RAM) Content(address uint32) (value uint32, ok bool) {
	defer m.mu.RUnlock()
	m.mu.RLock()
	value, ok = m.data[address&^3]
	return
}

func (m *RAM) Clear() {
	defer m.mu.Unlock()
	m.mu.Lock()
	m.data = make(map[uint32]uint32)
}

// Len is the number of words ever written.
func (m *RAM) Len() int {
	defer m.mu.RUnlock()
	m.mu.RLock()
	return len(m.data)
}

// Written returns the addresses of every word ever written, in ascending order.
func (m *RAM) Written() []uint32 {
	m.mu.RLock()
	addrs := make([]uint32, 0, len(m.data))
	for a := range m.data {
		addrs = append(addrs, a)
	}
	m.mu.RUnlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Dump returns n consecutive words of b starting at address.
func Dump(b Backing, address uint32, n int) []Word {
	words := make([]Word, 0, n)
	address &^= 3
	for i := 0; i < n; i++ {
		a := address + uint32(i*4)
		if a-b.Base() >= b.Size() {
			break
		}
		v, ok := b.Content(a)
		words = append(words, Word{Address: a, Value: v, Defined: ok})
	}
	return words
}

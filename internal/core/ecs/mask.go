package ecs

// Mask is a set of up to 256 component ids, one bit per id. Entity records
// carry one to answer "has all of these components" with four word
// comparisons instead of probing every store.
type Mask [4]uint64

func (m *Mask) Set(bit uint8) {
	m[bit>>6] |= uint64(1) << (bit & 63)
}

func (m *Mask) Clear(bit uint8) {
	m[bit>>6] &^= uint64(1) << (bit & 63)
}

func (m Mask) Has(bit uint8) bool {
	return m[bit>>6]&(uint64(1)<<(bit&63)) != 0
}

// ContainsAll reports whether every bit of sub is set in m.
func (m Mask) ContainsAll(sub Mask) bool {
	return m[0]&sub[0] == sub[0] &&
		m[1]&sub[1] == sub[1] &&
		m[2]&sub[2] == sub[2] &&
		m[3]&sub[3] == sub[3]
}

// Overlaps reports whether m and o share any bit.
func (m Mask) Overlaps(o Mask) bool {
	return m[0]&o[0] != 0 || m[1]&o[1] != 0 || m[2]&o[2] != 0 || m[3]&o[3] != 0
}

func (m Mask) IsZero() bool {
	return m == Mask{}
}

// MaskOf builds a mask from component ids.
func MaskOf(ids ...ComponentID) Mask {
	var m Mask
	for _, id := range ids {
		m.Set(uint8(id))
	}
	return m
}

package elfedit

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

const gnuHashHeaderSize = 16

// gnuHashParams is the header of a GNU hash table (DT_GNU_HASH).
type gnuHashParams struct {
	nbuckets   uint32
	symoffset  uint32
	bloomSize  uint32
	bloomShift uint32
}

// gnuHash is the DJB hash used by DT_GNU_HASH.
func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

// sysvHash is the classic ELF hash used by DT_HASH.
func sysvHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
		}
		h &= 0x0fffffff
	}
	return h
}

func (c codec) readGNUHashParams(data []byte) (gnuHashParams, error) {
	if len(data) < gnuHashHeaderSize {
		return gnuHashParams{}, errors.Wrap(ErrMalformed, "GNU hash table is truncated")
	}
	return gnuHashParams{
		nbuckets:   c.order.Uint32(data[0:]),
		symoffset:  c.order.Uint32(data[4:]),
		bloomSize:  c.order.Uint32(data[8:]),
		bloomShift: c.order.Uint32(data[12:]),
	}, nil
}

// normalize makes the parameters usable for a table of n symbols.
func (p gnuHashParams) normalize(n int) gnuHashParams {
	if p.nbuckets == 0 {
		p.nbuckets = 1
	}
	if p.symoffset == 0 {
		p.symoffset = 1
	}
	if int(p.symoffset) > n {
		p.symoffset = uint32(n)
	}
	// The loader masks the bloom index, so the size must be a power of two.
	if p.bloomSize == 0 || p.bloomSize&(p.bloomSize-1) != 0 {
		p.bloomSize = 1
	}
	return p
}

// gnuHashOrder returns, for every new table position, the index of the
// symbol to store there: the hashed region is grouped by bucket, keeping
// their relative order inside a bucket.
func gnuHashOrder(names []string, p gnuHashParams) []int {
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	hashed := order[p.symoffset:]
	slices.SortStableFunc(hashed, func(a, b int) int {
		return cmp.Compare(gnuHash(names[a])%p.nbuckets, gnuHash(names[b])%p.nbuckets)
	})
	return order
}

// buildGNUHash encodes a GNU hash table for names, which must already be
// ordered by gnuHashOrder.
func (c codec) buildGNUHash(names []string, p gnuHashParams) []byte {
	word := c.wordSize()
	wordBits := uint32(word * 8)
	nhashed := len(names) - int(p.symoffset)

	buf := make([]byte, gnuHashHeaderSize+int(p.bloomSize)*word+int(p.nbuckets)*4+nhashed*4)
	c.order.PutUint32(buf[0:], p.nbuckets)
	c.order.PutUint32(buf[4:], p.symoffset)
	c.order.PutUint32(buf[8:], p.bloomSize)
	c.order.PutUint32(buf[12:], p.bloomShift)

	bloom := make([]uint64, p.bloomSize)
	buckets := make([]uint32, p.nbuckets)
	chains := make([]uint32, nhashed)

	for i := int(p.symoffset); i < len(names); i++ {
		h := gnuHash(names[i])
		w := (h / wordBits) & (p.bloomSize - 1)
		bloom[w] |= 1<<(h%wordBits) | 1<<((h>>p.bloomShift)%wordBits)

		bucket := h % p.nbuckets
		if buckets[bucket] == 0 {
			buckets[bucket] = uint32(i)
		}
		chain := h &^ 1
		if i == len(names)-1 || gnuHash(names[i+1])%p.nbuckets != bucket {
			chain |= 1
		}
		chains[i-int(p.symoffset)] = chain
	}

	off := gnuHashHeaderSize
	for _, w := range bloom {
		c.putWord(buf[off:], w)
		off += word
	}
	for _, b := range buckets {
		c.order.PutUint32(buf[off:], b)
		off += 4
	}
	for _, ch := range chains {
		c.order.PutUint32(buf[off:], ch)
		off += 4
	}
	return buf
}

// buildSysvHash encodes a DT_HASH table over names.
func (c codec) buildSysvHash(names []string, nbucket uint32) []byte {
	if nbucket == 0 {
		nbucket = 1
	}
	nchain := uint32(len(names))
	buckets := make([]uint32, nbucket)
	chains := make([]uint32, nchain)
	for i := 1; i < len(names); i++ {
		b := sysvHash(names[i]) % nbucket
		chains[i] = buckets[b]
		buckets[b] = uint32(i)
	}

	buf := make([]byte, 8+4*int(nbucket)+4*int(nchain))
	c.order.PutUint32(buf[0:], nbucket)
	c.order.PutUint32(buf[4:], nchain)
	off := 8
	for _, b := range buckets {
		c.order.PutUint32(buf[off:], b)
		off += 4
	}
	for _, ch := range chains {
		c.order.PutUint32(buf[off:], ch)
		off += 4
	}
	return buf
}

// lookupGNU resolves name the way the dynamic loader walks DT_GNU_HASH.
func (c codec) lookupGNU(data []byte, names []string, name string) (int, bool) {
	p, err := c.readGNUHashParams(data)
	if err != nil || p.nbuckets == 0 || p.bloomSize == 0 {
		return 0, false
	}
	word := c.wordSize()
	wordBits := uint32(word * 8)
	bucketsOff := gnuHashHeaderSize + int(p.bloomSize)*word
	chainsOff := bucketsOff + int(p.nbuckets)*4
	if chainsOff > len(data) {
		return 0, false
	}

	h := gnuHash(name)
	w := c.word(data[gnuHashHeaderSize+int((h/wordBits)&(p.bloomSize-1))*word:])
	mask := uint64(1)<<(h%wordBits) | uint64(1)<<((h>>p.bloomShift)%wordBits)
	if w&mask != mask {
		return 0, false
	}

	i := c.order.Uint32(data[bucketsOff+int(h%p.nbuckets)*4:])
	if i == 0 || i < p.symoffset {
		return 0, false
	}
	for ; int(i) < len(names); i++ {
		off := chainsOff + int(i-p.symoffset)*4
		if off+4 > len(data) {
			return 0, false
		}
		chain := c.order.Uint32(data[off:])
		if chain|1 == h|1 && names[i] == name {
			return int(i), true
		}
		if chain&1 != 0 {
			break
		}
	}
	return 0, false
}

// lookupSysv resolves name through a DT_HASH table.
func (c codec) lookupSysv(data []byte, names []string, name string) (int, bool) {
	if len(data) < 8 {
		return 0, false
	}
	nbucket := c.order.Uint32(data[0:])
	nchain := c.order.Uint32(data[4:])
	if nbucket == 0 || 8+4*int(nbucket)+4*int(nchain) > len(data) {
		return 0, false
	}
	chainsOff := 8 + 4*int(nbucket)

	i := c.order.Uint32(data[8+4*int(sysvHash(name)%nbucket):])
	for steps := uint32(0); i != 0 && steps < nchain; steps++ {
		if int(i) < len(names) && names[i] == name {
			return int(i), true
		}
		if i >= nchain {
			break
		}
		i = c.order.Uint32(data[chainsOff+4*int(i):])
	}
	return 0, false
}

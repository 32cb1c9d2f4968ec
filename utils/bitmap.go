package utils

import (
	"math/bits"
)

// Initially inspired from https://github.com/kelindar/bitmap Thank you for using the MIT license!
// Trimmed down to what the dummy flags of a run need.

type Bitmap []uint64

// A bitmap able to hold n bits, all clear.
func NewBitmap(n int) Bitmap {
	return make(Bitmap, (n+63)>>6)
}

// A bitmap able to hold n bits, all set.
func NewBitmapSet(n int) Bitmap {
	bm := NewBitmap(n)
	for i := 0; i < n; i++ {
		bm.QuickSet(uint32(i))
	}
	return bm
}

// Inline-able, returns false if out of range.
func (bitmap *Bitmap) QuickSet(x uint32) bool {
	idx := int(x >> 6)
	if idx >= len(*bitmap) {
		return false
	}
	(*bitmap)[idx] |= (1 << (x % 64))
	return true
}

// Set sets the bit x in the bitmap and grows it if necessary.
func (bitmap *Bitmap) Set(x uint32) {
	idx := int(x >> 6)
	if idx >= len(*bitmap) {
		bitmap.grow(idx)
	}
	(*bitmap)[idx] |= (1 << (x % 64))
}

func (bitmap Bitmap) Clear(x uint32) {
	idx := int(x >> 6)
	if idx < len(bitmap) {
		bitmap[idx] &^= (1 << (x % 64))
	}
}

// Out of range reads as unset.
func (bitmap Bitmap) Get(x uint32) bool {
	idx := int(x >> 6)
	if idx >= len(bitmap) {
		return false
	}
	return bitmap[idx]&(1<<(x%64)) != 0
}

func (bitmap Bitmap) Count() (count int) {
	for i := range bitmap {
		count += bits.OnesCount64(bitmap[i])
	}
	return count
}

// Zeros all bits in the bitmap.
func (bitmap Bitmap) Zeroes() {
	for i := range bitmap {
		bitmap[i] = 0
	}
}

func (bitmap *Bitmap) grow(idx int) {
	if cap(*bitmap) > idx {
		*bitmap = (*bitmap)[:idx+1]
		return
	}
	old := *bitmap
	*bitmap = make(Bitmap, idx+1, int(RoundUpPow(uint64(idx+1))))
	copy(*bitmap, old)
}

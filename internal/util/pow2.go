package util

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x int) bool {
	return x > 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x, clamped to [1, 1<<30].
// Bucket counts never need more than that, and the clamp keeps the
// uint32 mask in range.
func NextPow2(x int) int {
	const maxPow = 1 << 30
	if x <= 1 {
		return 1
	}
	if x >= maxPow {
		return maxPow
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x++
	return x
}

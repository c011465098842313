package draw

import rand "math/rand/v2"

const goldenRatio64 = 0x9e3779b97f4a7c15

// NewRand returns a PCG-backed *rand.Rand derived from a single int64 seed,
// so a round's draw order can be replayed from its seed.
func NewRand(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(splitmix(u), splitmix(u+goldenRatio64)))
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

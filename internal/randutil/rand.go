// Package randutil derives the random source of a session.
package randutil

import rand "math/rand/v2"

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a generator for seed and the seed it used. A zero seed draws a
// fresh one so that unseeded sessions differ; log the returned seed to replay
// the session's draws later.
func New(seed int64) (*rand.Rand, int64) {
	for seed == 0 {
		seed = rand.Int64()
	}
	u := uint64(seed)
	return rand.New(rand.NewPCG(splitmix(u), splitmix(u+goldenRatio64))), seed
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Package sieve finds the primes of a batch for the PrimeGrid worker.
package sieve

import "math"

// Primes returns the primes in [start, end] in ascending order using a
// segmented sieve of Eratosthenes. The segment holds end-start+1 flags, so
// memory follows the batch size.
func Primes(start, end uint64) []uint64 {
	if end < 2 || end < start {
		return nil
	}
	if start < 2 {
		start = 2
	}

	base := smallPrimes(isqrt(end))
	composite := make([]bool, end-start+1)

	for _, p := range base {
		// First multiple of p inside the segment, never p itself.
		first := p * p
		if first < start {
			first = (start + p - 1) / p * p
		}
		for m := first; m <= end; m += p {
			composite[m-start] = true
			if m > math.MaxUint64-p {
				break
			}
		}
	}

	primes := make([]uint64, 0, estimate(start, end))
	for i, c := range composite {
		if !c {
			primes = append(primes, start+uint64(i))
		}
	}
	return primes
}

// smallPrimes is a plain sieve up to and including limit.
func smallPrimes(limit uint64) []uint64 {
	if limit < 2 {
		return nil
	}
	composite := make([]bool, limit+1)
	var out []uint64
	for i := uint64(2); i <= limit; i++ {
		if composite[i] {
			continue
		}
		out = append(out, i)
		for m := i * i; m <= limit; m += i {
			composite[m] = true
		}
	}
	return out
}

func isqrt(n uint64) uint64 {
	r := uint64(math.Sqrt(float64(n)))
	for r > 0 && r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}

// estimate sizes the result slice from the prime number theorem.
func estimate(start, end uint64) int {
	n := float64(end - start + 1)
	ln := math.Log(float64(end))
	if ln < 1 {
		ln = 1
	}
	return int(n/ln) + 1
}

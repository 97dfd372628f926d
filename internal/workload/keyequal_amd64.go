// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build amd64

package workload

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// wordSize is the number of bytes compared per iteration on the
// word-at-a-time fast path below.
const wordSize = int(unsafe.Sizeof(uint64(0)))

// CPU feature flags, checked once at package init rather than per call.
// Grounded on internal/storage/index's hash_optimized_amd64.go, which
// gates its SIMD byte comparison behind the same cpu.X86 checks; this
// harness has no assembly comparison kernels of its own, so a detected
// feature widens the fast path to word-at-a-time scalar comparison
// instead of dispatching to an AVX2/SSE4.2 kernel.
var (
	hasAVX2  = cpu.X86.HasAVX2
	hasSSE42 = cpu.X86.HasSSE42
	hasSSE2  = cpu.X86.HasSSE2
)

// keysEqual compares two keys, using a word-at-a-time scalar fast path on
// CPUs advertising wide SIMD registers (taken as a proxy for a CPU worth
// optimizing for) and falling back to a plain == comparison otherwise.
func keysEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	if (hasAVX2 || hasSSE42 || hasSSE2) && len(a) >= wordSize {
		return keysEqualWordwise(a, b)
	}
	return keysEqualScalar(a, b)
}

// keysEqualWordwise compares a and b wordSize bytes at a time, grounded
// on bytesEqualScalar's word-comparison loop in hash_optimized_amd64.go.
func keysEqualWordwise(a, b string) bool {
	n := len(a)
	i := 0
	for ; i+wordSize <= n; i += wordSize {
		va := *(*uint64)(unsafe.Pointer(unsafe.StringData(a[i:])))
		vb := *(*uint64)(unsafe.Pointer(unsafe.StringData(b[i:])))
		if va != vb {
			return false
		}
	}
	for ; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func keysEqualScalar(a, b string) bool {
	return a == b
}

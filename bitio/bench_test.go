package bitio

import "testing"

// BenchmarkRead8 and friends exist to keep the inlining property in
// spec.md §4.1/§9 ("forceinline ... load-bearing for throughput") honest
// and measurable, in place of the source's C++ benchmarkBitReader.cpp.

func benchData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 2654435761 >> 3)
	}
	return b
}

func BenchmarkRead8(b *testing.B) {
	data := benchData(1 << 20)
	r := NewReader(NewMemSource(data), MSBFirst, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%((1<<20)-1) == 0 {
			r = NewReader(NewMemSource(data), MSBFirst, 64)
		}
		r.Read8()
	}
}

func BenchmarkReadGeneric8(b *testing.B) {
	data := benchData(1 << 20)
	r := NewReader(NewMemSource(data), MSBFirst, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%((1<<20)-1) == 0 {
			r = NewReader(NewMemSource(data), MSBFirst, 64)
		}
		r.Read(8)
	}
}

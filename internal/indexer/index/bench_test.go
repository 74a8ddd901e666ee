package index

import (
	"fmt"
	"testing"
)

// BenchmarkStoreUpsert measures per-document insert throughput.
func BenchmarkStoreUpsert(b *testing.B) {
	s := NewStore()
	zones := doc("benchmark title", "this is a benchmark document with several terms for testing the indexing performance of the posting store")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Upsert(fmt.Sprintf("doc-%d", i), zones); err != nil {
			b.Fatal(err)
		}
	}
}

func populated(b *testing.B, n int) *Store {
	b.Helper()
	s := NewStore()
	zones := doc("distributed search", "search engine with distributed indexing and query processing")
	for i := 0; i < n; i++ {
		if err := s.Upsert(fmt.Sprintf("doc-%d", i), zones); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

// BenchmarkViewPostings measures single-term lookup latency over 10 000
// documents.
func BenchmarkViewPostings(b *testing.B) {
	s := populated(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := s.View()
		_ = v.Postings("search")
		v.Release()
	}
}

// BenchmarkViewPostingsParallel measures concurrent read throughput.
func BenchmarkViewPostingsParallel(b *testing.B) {
	s := populated(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			v := s.View()
			_ = v.Postings("search")
			v.Release()
		}
	})
}

// BenchmarkPrefixMatch measures dictionary lookups with 10 000 terms.
func BenchmarkPrefixMatch(b *testing.B) {
	s := NewStore()
	for i := 0; i < 100; i++ {
		body := ""
		for j := 0; j < 100; j++ {
			body += fmt.Sprintf("term%03d%03d ", i, j)
		}
		if err := s.Upsert(fmt.Sprintf("doc-%d", i), doc("", body)); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.PrefixMatch("term05", 64)
	}
}

// BenchmarkEntries measures the cost of collecting every term before a
// snapshot is written.
func BenchmarkEntries(b *testing.B) {
	s := populated(b, 5000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := s.View()
		_ = v.Entries()
		v.Release()
	}
}

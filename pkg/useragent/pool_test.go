package useragent

import (
	"sync"
	"testing"
)

func TestPool_RoundRobin(t *testing.T) {
	p := NewPool([]string{"one", "two"})
	want := []string{"one", "two", "one", "two"}
	for i, w := range want {
		if got := p.GetSequential(); got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}
}

func TestPool_EmptyInputUsesDefault(t *testing.T) {
	p := NewPool(nil)
	if got := len(p.GetAll()); got != len(DefaultPool) {
		t.Fatalf("pool size = %d, want %d", got, len(DefaultPool))
	}
}

func TestPool_CopiesInput(t *testing.T) {
	src := []string{"original"}
	p := NewPool(src)
	src[0] = "mutated"
	if got := p.GetSequential(); got != "original" {
		t.Errorf("pool observed caller mutation: %q", got)
	}
}

func TestPool_RandomStaysInPool(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ua := p.GetRandom()
		switch ua {
		case "a", "b", "c":
			seen[ua] = true
		default:
			t.Fatalf("unexpected value %q", ua)
		}
	}
	if len(seen) < 2 {
		t.Errorf("200 draws hit only %d distinct values", len(seen))
	}
}

func TestPool_ConcurrentSequential(t *testing.T) {
	p := NewPool([]string{"x", "y", "z"})

	const goroutines, perG = 30, 300
	counts := make(chan string, goroutines*perG)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				counts <- p.GetSequential()
			}
		}()
	}
	wg.Wait()
	close(counts)

	tally := map[string]int{}
	for ua := range counts {
		tally[ua]++
	}
	want := goroutines * perG / 3
	for ua, n := range tally {
		if n != want {
			t.Errorf("%q served %d times, want %d", ua, n, want)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	p := &Pool{}
	if p.GetSequential() != "" || p.GetRandom() != "" {
		t.Error("empty pool must return empty strings")
	}
}

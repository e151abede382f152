package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_EachIndexOnce(t *testing.T) {
	cfg := DefaultConfig()

	n := 512
	hits := make([]int64, n)
	For(n, func(i int) {
		atomic.AddInt64(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Errorf("Index %d visited %d times", i, h)
		}
	}
}

func TestForCollapse(t *testing.T) {
	cfg := DefaultConfig()

	d0, d1 := 4, 8
	results := make([][]bool, d0)
	for i := range results {
		results[i] = make([]bool, d1)
	}

	ForCollapse(d0, d1, func(i, j int) {
		results[i][j] = true
	}, cfg)

	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			if !results[i][j] {
				t.Errorf("Missing result at [%d][%d]", i, j)
			}
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

package cache

import (
	"sync"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(2 * time.Minute)

	ts := time.UnixMilli(1700000000000)
	c.Set("BTC", 50000, 1.2, ts)

	q, ok := c.Get("BTC")
	if !ok {
		t.Fatal("expected BTC to be present")
	}
	if q.Price != 50000 || q.Volume != 1.2 {
		t.Errorf("got price=%v volume=%v, want 50000/1.2", q.Price, q.Volume)
	}
	if !q.EventTime.Equal(ts) {
		t.Errorf("event time not preserved: %v", q.EventTime)
	}
}

func TestCacheArrivalOrderWins(t *testing.T) {
	c := New(2 * time.Minute)

	later := time.Now()
	earlier := later.Add(-time.Hour)

	// second arrival carries an older event time; it still wins
	c.Set("BTC", 100, 0, later)
	c.Set("BTC", 200, 0, earlier)

	q, ok := c.Get("BTC")
	if !ok {
		t.Fatal("expected BTC to be present")
	}
	if q.Price != 200 {
		t.Errorf("got price=%v, want 200 (arrival order wins)", q.Price)
	}
}

func TestCacheStalenessIsReadTime(t *testing.T) {
	c := New(time.Minute)

	base := time.Unix(1700000000, 0)
	clock := base
	c.now = func() time.Time { return clock }

	c.Set("BTC", 50000, 0, base)

	if _, ok := c.Get("BTC"); !ok {
		t.Fatal("fresh entry should be visible")
	}

	clock = base.Add(61 * time.Second)
	if _, ok := c.Get("BTC"); ok {
		t.Error("stale entry should be hidden")
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 once stale", got)
	}
	if all := c.All(); len(all) != 0 {
		t.Errorf("All() returned %d stale entries", len(all))
	}

	// re-set makes the symbol fresh again immediately
	c.Set("BTC", 51000, 0, clock)
	q, ok := c.Get("BTC")
	if !ok || q.Price != 51000 {
		t.Errorf("re-set entry should be fresh, got %+v ok=%v", q, ok)
	}
}

func TestCacheMissingSymbol(t *testing.T) {
	c := New(time.Minute)
	if _, ok := c.Get("NOPE"); ok {
		t.Error("unknown symbol should be absent")
	}
}

func TestCacheConcurrentReadWrite(t *testing.T) {
	c := New(time.Minute)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			c.Set("BTC", float64(i), float64(i), time.Now())
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if q, ok := c.Get("BTC"); ok {
					// whole-entry replacement: price and volume move together
					if q.Price != q.Volume {
						t.Errorf("torn read: price=%v volume=%v", q.Price, q.Volume)
						return
					}
				}
				c.All()
			}
		}()
	}

	wg.Wait()
}

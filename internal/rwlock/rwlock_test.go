package rwlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentReaders(t *testing.T) {
	l := New()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.ForRead()()
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("peak concurrent readers = %d, want >= 2", peak)
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	l := New()
	var inWrite atomic.Bool

	l.WLock()
	inWrite.Store(true)

	entered := make(chan struct{})
	go func() {
		l.RLock()
		if inWrite.Load() {
			t.Error("reader entered while writer held the lock")
		}
		l.RUnlock()
		close(entered)
	}()

	time.Sleep(20 * time.Millisecond)
	inWrite.Store(false)
	l.WUnlock()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("reader never entered after write release")
	}
}

func TestWriteReentrancy(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		l.WLock()
		l.WLock() // no-op, must not deadlock
		l.RLock() // read while writing, also a no-op
		l.RUnlock()
		l.WUnlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant acquisition deadlocked")
	}
}

func TestReadToWriteUpgrade(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		l.RLock()
		l.WLock() // own read hold must not block the upgrade
		l.WUnlock()
		l.RUnlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("upgrade from read to write deadlocked")
	}
}

func TestUpgradeWaitsForOtherReaders(t *testing.T) {
	l := New()
	otherHolding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		l.RLock()
		close(otherHolding)
		<-release
		l.RUnlock()
	}()
	<-otherHolding

	acquired := make(chan struct{})
	go func() {
		l.RLock()
		l.WLock()
		close(acquired)
		l.WUnlock()
		l.RUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while another reader held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after the other reader left")
	}
}

func TestRecursiveReadCounting(t *testing.T) {
	l := New()
	l.RLock()
	l.RLock()
	l.RUnlock() // still one hold left

	acquired := make(chan struct{})
	go func() {
		l.WLock()
		close(acquired)
		l.WUnlock()
	}()
	select {
	case <-acquired:
		t.Fatal("writer acquired while a read hold remained")
	case <-time.After(50 * time.Millisecond):
	}

	l.RUnlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after final read release")
	}
}

func TestReadersDoNotWaitForQueuedWriters(t *testing.T) {
	l := New()
	l.RLock()

	writerBlocked := make(chan struct{})
	go func() {
		close(writerBlocked)
		l.WLock()
		l.WUnlock()
	}()
	<-writerBlocked
	time.Sleep(20 * time.Millisecond) // let the writer queue up

	done := make(chan struct{})
	go func() {
		l.RLock() // must not wait behind the queued writer
		l.RUnlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("new reader waited for a queued writer")
	}
	l.RUnlock()
}

package locks

import (
	"sync"
	"testing"
)

func TestSameKeySerializes(t *testing.T) {
	k := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(42)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("counter = %d, want 100", counter)
	}
}

func TestDifferentKeysIndependent(t *testing.T) {
	k := NewKeyedMutex()

	unlockA := k.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(2)
		unlockB()
		close(done)
	}()

	// Holding key 1 must not block key 2.
	<-done
}

package queue

import (
	"sync"
	"testing"
	"time"
)

func TestSendThenRecvReturnsItemInOrder(t *testing.T) {
	q := New[int]()
	q.Send(1)
	q.Send(2)
	q.Send(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Recv()
		if !ok || got != want {
			t.Fatalf("expected (%d, true), got (%d, %v)", want, got, ok)
		}
	}
}

func TestRecvBlocksUntilSend(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)
	go func() {
		v, ok := q.Recv()
		if !ok {
			done <- "CLOSED"
			return
		}
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Recv returned before any Send")
	case <-time.After(20 * time.Millisecond):
	}

	q.Send("hello")

	select {
	case v := <-done:
		if v != "hello" {
			t.Fatalf("expected hello, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Send")
	}
}

func TestCloseDrainsRemainingItemsBeforeReportingClosed(t *testing.T) {
	q := New[int]()
	q.Send(1)
	q.Send(2)
	q.Close()

	v, ok := q.Recv()
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}
	v, ok = q.Recv()
	if !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %v)", v, ok)
	}
	_, ok = q.Recv()
	if ok {
		t.Fatal("expected ok=false once drained after close")
	}
}

func TestSendNeverBlocksRegardlessOfConsumerSpeed(t *testing.T) {
	q := New[int]()

	// Slow consumer: drains one item every 10ms.
	var consumed int
	var mu sync.Mutex
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, ok := q.Recv(); ok {
				mu.Lock()
				consumed++
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	start := time.Now()
	for i := 0; i < 500; i++ {
		q.Send(i)
	}
	elapsed := time.Since(start)
	close(stop)

	if elapsed > 200*time.Millisecond {
		t.Fatalf("Send appears to have blocked on consumer throughput: took %v for 500 sends", elapsed)
	}
}

func TestLenReflectsUndrainedDepth(t *testing.T) {
	q := New[int]()
	q.Send(1)
	q.Send(2)
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
	q.Recv()
	if q.Len() != 1 {
		t.Fatalf("expected len 1 after one recv, got %d", q.Len())
	}
}

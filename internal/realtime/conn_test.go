package realtime

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetCloseReasonFirstWins(t *testing.T) {
	c := &WsConnection{}

	if got := c.getCloseReason(); got != "" {
		t.Fatalf("fresh connection has reason %q", got)
	}

	c.setCloseReason("idle timeout")
	c.setCloseReason("write error")

	if got := c.getCloseReason(); got != "idle timeout" {
		t.Errorf("reason = %q, want the first one recorded", got)
	}
}

func TestSetCloseReasonConcurrent(t *testing.T) {
	c := &WsConnection{}

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	candidates := make(map[string]bool, writers)
	for i := 0; i < writers; i++ {
		reason := fmt.Sprintf("reason-%d", i)
		candidates[reason] = true
		go func() {
			defer wg.Done()
			c.setCloseReason(reason)
		}()
	}
	wg.Wait()

	got := c.getCloseReason()
	if !candidates[got] {
		t.Errorf("reason = %q, want one of the recorded causes", got)
	}
}

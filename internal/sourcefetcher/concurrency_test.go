package sourcefetcher

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestFetchConcurrently_RespectsLimit(t *testing.T) {
	var inFlight, maxInFlight int32
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	err := fetchConcurrently(context.Background(), items, 3, func(ctx context.Context, i int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxInFlight > 3 {
		t.Errorf("expected at most 3 concurrent, observed %d", maxInFlight)
	}
}

func TestFetchConcurrently_PropagatesError(t *testing.T) {
	items := []int{1, 2, 3}
	wantErr := errFetchTest
	err := fetchConcurrently(context.Background(), items, 2, func(ctx context.Context, i int) error {
		if i == 2 {
			return wantErr
		}
		return nil
	})
	if err != wantErr {
		t.Errorf("expected propagated error, got %v", err)
	}
}

var errFetchTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/testutil"
)

func TestCommit_PostgresExactlyOneWinner(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.InsertWindow(t, pool, dinner(10))

	schedule := storage.NewScheduleRepository(pool)
	ledger := storage.NewBookingRepository(pool, time.UTC)
	c := NewCommitter(schedule, ledger, nil, clock.NewFixed(now), policy.Default(time.UTC), discardLogger())

	seed := validRequest()
	seed.PartySize = 6
	if res, err := c.Commit(context.Background(), seed); err != nil || !res.OK {
		t.Fatalf("seed booking: %+v %v", res.Rejection, err)
	}

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest()
			req.PartySize = 3
			res, err := c.Commit(context.Background(), req)
			if err != nil {
				t.Errorf("Commit: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r.OK {
			wins++
		} else if r.Rejection == nil || r.Rejection.Code != CodeInsufficientCapacity {
			t.Fatalf("unexpected outcome %+v", r.Rejection)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	start := friday.Add(19*time.Hour + 30*time.Minute)
	used, err := ledger.SumOverlappingPartySize(context.Background(), "soir", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if used != 9 {
		t.Fatalf("expected 9 covers, got %d", used)
	}
}

package directory_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/warp/vacation-engine/directory"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

func newService(t *testing.T, d *directory.Directory, now time.Time) *vacation.Service {
	t.Helper()
	return vacation.NewService(memory.New(time.Second),
		vacation.WithUsers(d),
		vacation.WithHierarchy(d),
		vacation.WithHolidays(d),
		vacation.WithClock(func() time.Time { return now }),
		vacation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func intPtr(n int) *int { return &n }

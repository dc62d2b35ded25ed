package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is the pool subset used by the database probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingDatabase probes connectivity by pinging the pool within the sampling
// timeout.
func PingDatabase(db Pinger) ProbeFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(db.Ping(ctx), "ping")
	}
}

// GoroutineCeiling reports failure once the process exceeds limit goroutines.
// A leak tripwire for /livez.
func GoroutineCeiling(limit int) ProbeFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, ceiling %d", n, limit)
		}
		return nil
	}
}

// GCPauseCeiling reports failure when the most recent stop-the-world pause
// went over max.
func GCPauseCeiling(max time.Duration) ProbeFunc {
	return func(context.Context) error {
		var st debug.GCStats
		debug.ReadGCStats(&st)
		if len(st.Pause) > 0 && st.Pause[0] > max {
			return errors.Errorf("last GC pause %s, ceiling %s", st.Pause[0], max)
		}
		return nil
	}
}

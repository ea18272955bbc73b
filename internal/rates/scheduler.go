package rates

import (
	"context"
	"io"
	"time"

	"github.com/fatih/color"

	"fundingflow/internal/models"
	"fundingflow/logger"
)

// settleSleep is the fixed pause after a collection cycle. Staying under a
// minute guarantees the next precise wait is recomputed before the following
// boundary, so processing latency can neither skip nor double a trigger.
const settleSleep = 55 * time.Second

// SnapshotSink persists one completed snapshot.
type SnapshotSink interface {
	AppendSnapshot(snap models.RateSnapshot) error
}

// Scheduler fires at each wall-clock UTC minute boundary, independent of
// process start time: it snapshots the aggregate, renders each rate with its
// severity band and hands complete snapshots to the sink.
type Scheduler struct {
	agg   *Aggregator
	sink  SnapshotSink
	names []string
	log   *logger.Log

	// now and sleep are replaceable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
	out   io.Writer
}

// NewScheduler builds a scheduler over the aggregate. Columns are rendered
// and persisted in the aggregate's configured name order.
func NewScheduler(agg *Aggregator, sink SnapshotSink) *Scheduler {
	return &Scheduler{
		agg:   agg,
		sink:  sink,
		names: agg.Names(),
		log:   logger.GetLogger(),
		now:   time.Now,
		sleep: sleepCtx,
		out:   color.Output,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := s.log.WithComponent("funding_scheduler")
	log.WithFields(logger.Fields{"instruments": len(s.names)}).Info("scheduler started")

	for {
		wait := waitToNextMinute(s.now().UTC())
		log.WithFields(logger.Fields{"wait": wait.String()}).Debug("waiting for next minute boundary")
		if !s.sleep(ctx, wait) {
			log.Info("scheduler stopped")
			return
		}

		s.collect()

		if !s.sleep(ctx, settleSleep) {
			log.Info("scheduler stopped")
			return
		}
	}
}

// collect takes one snapshot, renders it and persists it when complete. An
// incomplete snapshot is a normal startup condition and only skips
// persistence for this cycle.
func (s *Scheduler) collect() {
	log := s.log.WithComponent("funding_scheduler")

	minute := s.now().UTC().Truncate(time.Minute)
	rates, complete := s.agg.Snapshot()

	for _, name := range s.names {
		rate, ok := rates[name]
		if !ok {
			continue
		}
		band := Classify(rate)
		band.Color().Fprintf(s.out, "%s funding: %.2f%%", name, rate)
		io.WriteString(s.out, "\n")
	}

	if !complete {
		log.WithFields(logger.Fields{
			"populated": len(rates),
			"expected":  len(s.names),
		}).Warn("incomplete snapshot, skipping persistence for this cycle")
		return
	}

	snap := models.RateSnapshot{Time: minute, Rates: rates}
	if err := s.sink.AppendSnapshot(snap); err != nil {
		log.WithError(err).Error("failed to persist funding snapshot")
		return
	}
	logger.IncrementSnapshotPersisted(len(rates))
	log.WithFields(logger.Fields{"time": minute.Format("15:04:05")}).Info("funding snapshot persisted")
}

// waitToNextMinute returns the remaining time to the next :00 second with
// sub-second precision. Exactly on a boundary the wait is zero.
func waitToNextMinute(now time.Time) time.Duration {
	boundary := now.Truncate(time.Minute)
	if boundary.Equal(now) {
		return 0
	}
	return boundary.Add(time.Minute).Sub(now)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package stats

import (
	"context"

	"go.uber.org/zap"

	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// Refresher recomputes daily stats whenever an attendance.marked event
// arrives and publishes them as gauges.
type Refresher struct {
	agg *Aggregator
	q   queue.Queue
	log *zap.Logger
	// OnRefresh, when set, is called after each successful refresh.
	OnRefresh func(Daily)
}

func NewRefresher(agg *Aggregator, q queue.Queue, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{agg: agg, q: q, log: log}
}

// Run consumes the queue until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	messages, err := r.q.Consume(ctx)
	if err != nil {
		return err
	}
	r.log.Info("stats refresher started")
	for msg := range messages {
		if msg.Type != queue.TypeAttendanceMarked {
			continue
		}
		ev, err := queue.DecodeMarked(msg)
		if err != nil {
			r.log.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		if _, err := r.Refresh(ctx, ev.Date); err != nil {
			r.log.Error("stats refresh failed", zap.String("date", ev.Date), zap.Error(err))
		}
	}
	r.log.Info("stats refresher stopped")
	return nil
}

// Refresh recomputes one day and updates the gauges.
func (r *Refresher) Refresh(ctx context.Context, date string) (Daily, error) {
	d, err := r.agg.DailyStats(ctx, date)
	if err != nil {
		return Daily{}, err
	}
	metrics.DailyPresent.Set(float64(d.PresentCount))
	metrics.DailyAbsent.Set(float64(d.AbsentCount))
	metrics.DailyPercentage.Set(float64(d.PresentPercentage))
	r.log.Debug("daily stats refreshed",
		zap.String("date", d.Date),
		zap.Int("present", d.PresentCount),
		zap.Int("total", d.TotalStudents))
	if r.OnRefresh != nil {
		r.OnRefresh(d)
	}
	return d, nil
}

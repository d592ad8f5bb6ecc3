// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"eduhub/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reconciler settles pending payments whose invoices have expired.
type Reconciler interface {
	ReconcileOverdue(ctx context.Context, limit int) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry
}

// cronLogger adapts logrus to cron.Logger so skipped runs and panics show up.
type cronLogger struct{ log *logrus.Entry }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.WithFields(kvFields(kv)).Debug("[Cron] " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(kv)).Error("[Cron] " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}

func New(log logrus.FieldLogger) *Scheduler {
	entry := log.WithField("component", "scheduler")
	cl := cronLogger{log: entry}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log:  entry,
	}
}

// AddReconcile registers the overdue-invoice sweep.
func (s *Scheduler) AddReconcile(cfg config.SchedulerConfig, r Reconciler) error {
	timeout := 4 * time.Minute
	_, err := s.cron.AddFunc(cfg.ReconcileSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		RunReconcile(ctx, r, cfg.ReconcileBatch, s.log)
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"spec": cfg.ReconcileSpec, "batch": cfg.ReconcileBatch}).Info("[Scheduler] reconcile job registered")
	return nil
}

func RunReconcile(ctx context.Context, r Reconciler, batch int, log logrus.FieldLogger) {
	start := time.Now()
	n, err := r.ReconcileOverdue(ctx, batch)
	entry := log.WithFields(logrus.Fields{"changed": n, "took_ms": time.Since(start).Milliseconds()})
	if err != nil {
		entry.WithError(err).Error("[Scheduler] reconcile failed")
		return
	}
	if n > 0 {
		entry.Info("[Scheduler] reconciled overdue payments")
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("[Scheduler] stop timed out with jobs still running")
	}
}

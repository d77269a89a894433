// Package cronrunner schedules the background sync jobs on robfig/cron,
// handing every job a shared base context so a process shutdown reaches
// work in flight.
package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
}

// New builds a runner on the standard five-field parser, which also
// accepts @every duration descriptors.
func New(logger *zap.Logger, ctx context.Context) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Runner{cron: cron.New(), logger: logger, ctx: ctx}
}

// Add registers job under name on the given schedule. A job firing after
// the base context is done is dropped instead of run.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Debug("cron job firing", zap.String("job", name))
		job(r.ctx)
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop blocks until jobs in flight return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("cron stopped")
}

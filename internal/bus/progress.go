package bus

import (
	"log/slog"
	"time"

	"github.com/tendant/order-asset-packer/pkg/schema"
)

// ProgressPublisher forwards a job's reporter updates as JobProgress events.
// Publish failures are logged and dropped; they never fail the job.
type ProgressPublisher struct {
	pub     Publisher
	subject string
	jobID   string
	logger  *slog.Logger
	now     func() time.Time
}

func NewProgressPublisher(pub Publisher, subject, jobID string, logger *slog.Logger) *ProgressPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressPublisher{
		pub:     pub,
		subject: subject,
		jobID:   jobID,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *ProgressPublisher) Report(label string, percent *float64) {
	evt := schema.JobProgress{
		JobID:      p.jobID,
		Message:    label,
		HappenedAt: p.now().Unix(),
	}
	if percent != nil {
		v := *percent
		evt.Progress = &v
	}
	if err := p.pub.PublishJSON(p.subject, evt); err != nil {
		p.logger.Error("publish progress failed", "subject", p.subject, "job_id", p.jobID, "err", err)
	}
}

package compose

import (
	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

// Ingester is the part of notification.Store the Composer needs.
type Ingester interface {
	Ingest(c notification.Candidate) (notification.Record, error)
}

// Composer builds candidates and hands them to an Ingester. It never touches
// store state other than through Ingest.
type Composer struct {
	in  Ingester
	log logx.Logger
}

func New(in Ingester, log logx.Logger) *Composer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Composer{in: in, log: log.With(logx.String("comp", "compose"))}
}

func (c *Composer) emit(cand notification.Candidate) (notification.Record, error) {
	rec, err := c.in.Ingest(cand)
	if err != nil {
		c.log.Warn("compose ingest failed", logx.String("category", string(cand.Category)), logx.Err(err))
		return notification.Record{}, err
	}
	return rec, nil
}

func (c *Composer) TaskAssigned(task, project, assignedBy string) (notification.Record, error) {
	return c.emit(TaskAssigned(task, project, assignedBy))
}

func (c *Composer) TaskDeadline(task, project string, hoursRemaining float64) (notification.Record, error) {
	return c.emit(TaskDeadline(task, project, hoursRemaining))
}

func (c *Composer) StageCompleted(stage, project, completedBy string) (notification.Record, error) {
	return c.emit(StageCompleted(stage, project, completedBy))
}

func (c *Composer) StageDelayed(stage, project string, delayDays int, reason string) (notification.Record, error) {
	return c.emit(StageDelayed(stage, project, delayDays, reason))
}

func (c *Composer) HandoffRequest(fromRole, toRole, project string, taskCount int) (notification.Record, error) {
	return c.emit(HandoffRequest(fromRole, toRole, project, taskCount))
}

func (c *Composer) HandoffCompleted(fromRole, toRole, project string) (notification.Record, error) {
	return c.emit(HandoffCompleted(fromRole, toRole, project))
}

func (c *Composer) ProjectMilestone(milestone, project string, daysUntil int) (notification.Record, error) {
	return c.emit(ProjectMilestone(milestone, project, daysUntil))
}

func (c *Composer) BottleneckAlert(role, task string, impactCount int, sev Severity) (notification.Record, error) {
	return c.emit(BottleneckAlert(role, task, impactCount, sev))
}

func (c *Composer) ApprovalRequired(item, requestedBy string, u Urgency) (notification.Record, error) {
	return c.emit(ApprovalRequired(item, requestedBy, u))
}

func (c *Composer) SystemUpdate(kind UpdateKind, description string) (notification.Record, error) {
	return c.emit(SystemUpdate(kind, description))
}

func (c *Composer) Mention(by, context, project string) (notification.Record, error) {
	return c.emit(Mention(by, context, project))
}

func (c *Composer) Comment(by, item, comment, project string) (notification.Record, error) {
	return c.emit(Comment(by, item, comment, project))
}

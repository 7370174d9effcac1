package compose

import (
	"fmt"
	"math"
	"net/url"

	"sitealert/internal/notification"
)

func projectURL(project string) string {
	return "/projects/" + url.PathEscape(project)
}

func projectSubject(project, stage string) *notification.Subject {
	if project == "" {
		return nil
	}
	return &notification.Subject{Name: project, Stage: stage}
}

func sender(name, role string) *notification.Sender {
	if name == "" {
		return nil
	}
	return &notification.Sender{Name: name, Role: role}
}

func TaskAssigned(task, project, assignedBy string) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryTaskAssigned,
		Priority:  notification.PriorityMedium,
		Title:     "New task assigned",
		Message:   fmt.Sprintf("%s assigned you %q", assignedBy, task),
		ActionURL: projectURL(project),
		Sender:    sender(assignedBy, ""),
		Subject:   projectSubject(project, ""),
	}
}

// TaskDeadline reports the whole hours left, or overdue once none remain.
func TaskDeadline(task, project string, hoursRemaining float64) notification.Candidate {
	p := DeadlinePriority(hoursRemaining)
	var title, msg string
	switch p {
	case notification.PriorityUrgent:
		title = "Task overdue"
	case notification.PriorityHigh:
		title = "Task deadline approaching"
	case notification.PriorityMedium:
		title = "Task deadline coming up"
	default:
		title = "Task deadline reminder"
	}
	if hoursRemaining > 0 {
		msg = fmt.Sprintf("%q is due in %d hours", task, int(math.Floor(hoursRemaining)))
	} else {
		msg = fmt.Sprintf("%q is overdue", task)
	}
	return notification.Candidate{
		Category:   notification.CategoryTaskDeadline,
		Priority:   p,
		Title:      title,
		Message:    msg,
		ActionURL:  projectURL(project),
		Subject:    projectSubject(project, ""),
		Attributes: map[string]any{"hours_remaining": hoursRemaining},
	}
}

func StageCompleted(stage, project, completedBy string) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryStageCompleted,
		Priority:  notification.PriorityLow,
		Title:     "Stage completed",
		Message:   fmt.Sprintf("%s completed %q", completedBy, stage),
		ActionURL: projectURL(project),
		Sender:    sender(completedBy, ""),
		Subject:   projectSubject(project, stage),
	}
}

func StageDelayed(stage, project string, delayDays int, reason string) notification.Candidate {
	msg := fmt.Sprintf("%q is delayed by %d days", stage, delayDays)
	if reason != "" {
		msg += " (reason: " + reason + ")"
	}
	attrs := map[string]any{"delay_days": delayDays}
	if reason != "" {
		attrs["reason"] = reason
	}
	return notification.Candidate{
		Category:   notification.CategoryStageDelayed,
		Priority:   DelayPriority(delayDays),
		Title:      "Stage delayed",
		Message:    msg,
		ActionURL:  projectURL(project),
		Subject:    projectSubject(project, stage),
		Attributes: attrs,
	}
}

func HandoffRequest(fromRole, toRole, project string, taskCount int) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryHandoffRequest,
		Priority:  notification.PriorityHigh,
		Title:     "Handoff requested",
		Message:   fmt.Sprintf("Handoff from %s to %s (%d tasks)", fromRole, toRole, taskCount),
		ActionURL: projectURL(project),
		Subject:   projectSubject(project, ""),
		Attributes: map[string]any{
			"from_role":  fromRole,
			"to_role":    toRole,
			"task_count": taskCount,
		},
	}
}

func HandoffCompleted(fromRole, toRole, project string) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryHandoffCompleted,
		Priority:  notification.PriorityMedium,
		Title:     "Handoff completed",
		Message:   fmt.Sprintf("Handoff from %s to %s completed", fromRole, toRole),
		ActionURL: projectURL(project),
		Subject:   projectSubject(project, ""),
	}
}

func ProjectMilestone(milestone, project string, daysUntil int) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryMilestone,
		Priority:  MilestonePriority(daysUntil),
		Title:     "Milestone approaching",
		Message:   fmt.Sprintf("%q in %d days (%s)", milestone, daysUntil, project),
		ActionURL: projectURL(project),
		Subject:   projectSubject(project, ""),
		Attributes: map[string]any{
			"milestone":  milestone,
			"days_until": daysUntil,
		},
	}
}

func BottleneckAlert(role, task string, impactCount int, sev Severity) notification.Candidate {
	return notification.Candidate{
		Category:  notification.CategoryBottleneckAlert,
		Priority:  BottleneckPriority(sev),
		Title:     "Bottleneck detected",
		Message:   fmt.Sprintf("%s task %q is holding up %d projects", role, task, impactCount),
		ActionURL: "/analytics",
		Attributes: map[string]any{
			"role":         role,
			"task":         task,
			"impact_count": impactCount,
			"severity":     string(sev),
		},
	}
}

func ApprovalRequired(item, requestedBy string, u Urgency) notification.Candidate {
	title := "Approval required"
	if u == UrgencyUrgent {
		title = "Urgent approval required"
	}
	return notification.Candidate{
		Category:    notification.CategoryApprovalRequired,
		Priority:    ApprovalPriority(u),
		Title:       title,
		Message:     fmt.Sprintf("%s requested approval for %q", requestedBy, item),
		ActionURL:   "/approvals",
		ActionLabel: "Approve",
		Sender:      sender(requestedBy, ""),
	}
}

var updateTitles = map[UpdateKind]string{
	UpdateFeature:     "New feature available",
	UpdateMaintenance: "Scheduled maintenance",
	UpdateBugFix:      "Issue fixed",
}

func SystemUpdate(kind UpdateKind, description string) notification.Candidate {
	title, ok := updateTitles[kind]
	if !ok {
		title = "System update"
	}
	return notification.Candidate{
		Category:  notification.CategorySystemUpdate,
		Priority:  notification.PriorityLow,
		Title:     title,
		Message:   description,
		ActionURL: "/updates",
	}
}

// Mention links to the project when one is named, otherwise to messages.
func Mention(by, context, project string) notification.Candidate {
	target := "/messages"
	if project != "" {
		target = projectURL(project)
	}
	return notification.Candidate{
		Category:  notification.CategoryMention,
		Priority:  notification.PriorityMedium,
		Title:     "Mentioned by @" + by,
		Message:   context,
		ActionURL: target,
		Sender:    sender(by, ""),
		Subject:   projectSubject(project, ""),
	}
}

func Comment(by, item, comment, project string) notification.Candidate {
	target := "/comments"
	if project != "" {
		target = projectURL(project)
	}
	return notification.Candidate{
		Category:  notification.CategoryComment,
		Priority:  notification.PriorityLow,
		Title:     "New comment",
		Message:   by + ": " + comment,
		ActionURL: target,
		Sender:    sender(by, ""),
		Subject:   projectSubject(project, ""),
		Attributes: map[string]any{
			"item":    item,
			"comment": comment,
		},
	}
}

package compose

import (
	"fmt"
	"strings"

	"sitealert/internal/notification"
)

// Severity grades a detected bottleneck.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return v, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Urgency marks an approval request as normal or urgent.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyUrgent Urgency = "urgent"
)

func ParseUrgency(s string) (Urgency, error) {
	switch v := Urgency(strings.ToLower(strings.TrimSpace(s))); v {
	case UrgencyNormal, UrgencyUrgent:
		return v, nil
	case "":
		return UrgencyNormal, nil
	}
	return "", fmt.Errorf("unknown urgency %q", s)
}

// UpdateKind selects the title of a system update.
type UpdateKind string

const (
	UpdateFeature     UpdateKind = "feature"
	UpdateMaintenance UpdateKind = "maintenance"
	UpdateBugFix      UpdateKind = "bug_fix"
)

func ParseUpdateKind(s string) (UpdateKind, error) {
	switch v := UpdateKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")); v {
	case UpdateFeature, UpdateMaintenance, UpdateBugFix:
		return v, nil
	}
	return "", fmt.Errorf("unknown update kind %q", s)
}

// DeadlinePriority grades a deadline by the hours left; zero or less is overdue.
func DeadlinePriority(hoursRemaining float64) notification.Priority {
	switch {
	case hoursRemaining <= 0:
		return notification.PriorityUrgent
	case hoursRemaining <= 24:
		return notification.PriorityHigh
	case hoursRemaining <= 72:
		return notification.PriorityMedium
	default:
		return notification.PriorityLow
	}
}

// DelayPriority is urgent once a stage slips by more than a week.
func DelayPriority(delayDays int) notification.Priority {
	if delayDays > 7 {
		return notification.PriorityUrgent
	}
	return notification.PriorityHigh
}

func MilestonePriority(daysUntil int) notification.Priority {
	if daysUntil <= 7 {
		return notification.PriorityHigh
	}
	return notification.PriorityMedium
}

// BottleneckPriority maps severity one step up, capped at urgent.
func BottleneckPriority(s Severity) notification.Priority {
	switch s {
	case SeverityCritical, SeverityHigh:
		return notification.PriorityUrgent
	case SeverityMedium:
		return notification.PriorityHigh
	default:
		return notification.PriorityMedium
	}
}

func ApprovalPriority(u Urgency) notification.Priority {
	if u == UrgencyUrgent {
		return notification.PriorityUrgent
	}
	return notification.PriorityHigh
}

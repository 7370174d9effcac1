package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
	"sitealert/internal/compose"
	"sitealert/internal/notification"
)

var (
	emitTask, emitProject, emitBy, emitStage string
	emitReason, emitFrom, emitTo             string
	emitMilestone, emitRole, emitSeverity    string
	emitItem, emitUrgency, emitKind          string
	emitDescription, emitContext, emitText   string
	emitHours                                float64
	emitDays, emitCount                      int
	emitNoDeliver, emitJSON                  bool
)

func init() {
	rootCmd.AddCommand(emitCmd)
	f := emitCmd.Flags()
	f.StringVar(&emitTask, "task", "", "task title")
	f.StringVar(&emitProject, "project", "", "project name")
	f.StringVar(&emitBy, "by", "", "acting user")
	f.StringVar(&emitStage, "stage", "", "stage name")
	f.StringVar(&emitReason, "reason", "", "delay reason")
	f.StringVar(&emitFrom, "from", "", "handoff source role")
	f.StringVar(&emitTo, "to", "", "handoff target role")
	f.StringVar(&emitMilestone, "milestone", "", "milestone name")
	f.StringVar(&emitRole, "role", "", "bottlenecked role")
	f.StringVar(&emitSeverity, "severity", "medium", "bottleneck severity: low, medium, high, critical")
	f.StringVar(&emitItem, "item", "", "item awaiting approval or commented on")
	f.StringVar(&emitUrgency, "urgency", "normal", "approval urgency: normal or urgent")
	f.StringVar(&emitKind, "kind", "feature", "system update kind: feature, maintenance, bug_fix")
	f.StringVar(&emitDescription, "description", "", "system update description")
	f.StringVar(&emitContext, "context", "", "where the mention happened")
	f.StringVar(&emitText, "text", "", "comment text")
	f.Float64Var(&emitHours, "hours", 24, "hours until the task deadline")
	f.IntVar(&emitDays, "days", 0, "delay days or days until milestone")
	f.IntVar(&emitCount, "count", 1, "handoff task count or bottleneck impact count")
	f.BoolVar(&emitNoDeliver, "no-deliver", false, "store only; do not fire delivery channels")
	f.BoolVar(&emitJSON, "json", false, "print the stored record as JSON")
}

var emitCmd = &cobra.Command{
	Use:   "emit <category>",
	Short: "Compose and ingest a notification",
	Long: `Compose a notification with the standard builders and ingest it.

Preferences, quiet hours and grouping apply as for feed notifications.

Examples:
  sitealert emit stage-delayed --stage Framing --project "Oak St" --days 5 --reason "rain"
  sitealert emit task-deadline --task "Pour slab" --project "Oak St" --hours 2
  sitealert emit bottleneck-alert --role Electrician --task Wiring --count 4 --severity critical`,
	Args: cobra.ExactArgs(1),
	RunE: runEmit,
}

// composeByCategory calls the Composer builder matching c with the flag values.
func composeByCategory(cp *compose.Composer, c notification.Category) (notification.Record, error) {
	switch c {
	case notification.CategoryTaskAssigned:
		return cp.TaskAssigned(emitTask, emitProject, emitBy)
	case notification.CategoryTaskDeadline:
		return cp.TaskDeadline(emitTask, emitProject, emitHours)
	case notification.CategoryStageCompleted:
		return cp.StageCompleted(emitStage, emitProject, emitBy)
	case notification.CategoryStageDelayed:
		return cp.StageDelayed(emitStage, emitProject, emitDays, emitReason)
	case notification.CategoryHandoffRequest:
		return cp.HandoffRequest(emitFrom, emitTo, emitProject, emitCount)
	case notification.CategoryHandoffCompleted:
		return cp.HandoffCompleted(emitFrom, emitTo, emitProject)
	case notification.CategoryMilestone:
		return cp.ProjectMilestone(emitMilestone, emitProject, emitDays)
	case notification.CategoryBottleneckAlert:
		sev, err := compose.ParseSeverity(emitSeverity)
		if err != nil {
			return notification.Record{}, err
		}
		return cp.BottleneckAlert(emitRole, emitTask, emitCount, sev)
	case notification.CategoryApprovalRequired:
		u, err := compose.ParseUrgency(emitUrgency)
		if err != nil {
			return notification.Record{}, err
		}
		return cp.ApprovalRequired(emitItem, emitBy, u)
	case notification.CategorySystemUpdate:
		k, err := compose.ParseUpdateKind(emitKind)
		if err != nil {
			return notification.Record{}, err
		}
		return cp.SystemUpdate(k, emitDescription)
	case notification.CategoryMention:
		return cp.Mention(emitBy, emitContext, emitProject)
	case notification.CategoryComment:
		return cp.Comment(emitBy, emitItem, emitText, emitProject)
	}
	return notification.Record{}, fmt.Errorf("%w: %q", notification.ErrUnknownCategory, c)
}

func runEmit(cmd *cobra.Command, args []string) error {
	c, err := notification.ParseCategory(args[0])
	if err != nil {
		return err
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		if !emitNoDeliver {
			l.Dispatcher.Start(cmd.Context())
		}
		rec, err := composeByCategory(compose.New(l.Store, l.Log), c)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if emitJSON {
			return outputJSON(w, rec)
		}
		fmt.Fprintf(w, "Stored %s [%s] %s\n", rec.ID, rec.Priority, rec.Title)
		return nil
	})
}

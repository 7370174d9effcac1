package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
	"sitealert/internal/notification"
)

var (
	listUnread      bool
	listCategory    string
	listMinPriority string
	listHours       int
	listLimit       int
	listJSON        bool

	readAll   bool
	deleteAll bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().BoolVar(&listUnread, "unread", false, "only unread notifications")
	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category (e.g. stage_delayed)")
	listCmd.Flags().StringVar(&listMinPriority, "min-priority", "", "low, medium, high or urgent")
	listCmd.Flags().IntVar(&listHours, "hours", 0, "only notifications from the last N hours")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows (0 = all)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	readCmd.Flags().BoolVar(&readAll, "all", false, "mark every notification read")
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every notification")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored notifications",
	Long: `List stored notifications, newest first.

Examples:
  sitealert list --unread
  sitealert list --category stage-delayed --min-priority high
  sitealert list --hours 24 --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var readCmd = &cobra.Command{
	Use:   "read [id...]",
	Short: "Mark notifications read",
	RunE:  runRead,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete notifications",
	RunE:  runDelete,
}

type listFilter struct {
	unreadOnly  bool
	category    notification.Category
	minPriority *notification.Priority
	since       time.Time
	limit       int
}

func parseListFilter(now time.Time) (listFilter, error) {
	f := listFilter{unreadOnly: listUnread, limit: listLimit}
	if listCategory != "" {
		c, err := notification.ParseCategory(listCategory)
		if err != nil {
			return f, err
		}
		f.category = c
	}
	if listMinPriority != "" {
		p, err := notification.ParsePriority(listMinPriority)
		if err != nil {
			return f, err
		}
		f.minPriority = &p
	}
	if listHours < 0 {
		return f, fmt.Errorf("--hours must be >= 0")
	}
	if listHours > 0 {
		f.since = now.Add(-time.Duration(listHours) * time.Hour)
	}
	return f, nil
}

func (f listFilter) apply(recs []notification.Record) []notification.Record {
	out := make([]notification.Record, 0, len(recs))
	for _, r := range recs {
		switch {
		case f.unreadOnly && r.Read:
			continue
		case f.category != "" && r.Category != f.category:
			continue
		case f.minPriority != nil && r.Priority < *f.minPriority:
			continue
		case !f.since.IsZero() && r.CreatedAt.Before(f.since):
			continue
		}
		out = append(out, r)
		if f.limit > 0 && len(out) == f.limit {
			break
		}
	}
	return out
}

func runList(cmd *cobra.Command, _ []string) error {
	f, err := parseListFilter(time.Now())
	if err != nil {
		return err
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		recs := f.apply(l.Store.Records())
		w := cmd.OutOrStdout()
		if listJSON {
			return outputJSON(w, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(w, "No notifications.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tPRIORITY\tCATEGORY\tREAD\tTITLE")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Priority, r.Category, r.Read, truncate(r.Title, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d shown, %d unread total\n", len(recs), l.Store.UnreadCount())
		return nil
	})
}

func runRead(cmd *cobra.Command, args []string) error {
	if readAll == (len(args) > 0) {
		return fmt.Errorf("pass notification ids or --all")
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		w := cmd.OutOrStdout()
		if readAll {
			fmt.Fprintf(w, "Marked %d read\n", l.Store.MarkAllRead())
			return nil
		}
		var missing []string
		for _, id := range args {
			if !l.Store.MarkRead(id) {
				if _, ok := l.Store.Get(id); !ok {
					missing = append(missing, id)
				}
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("unknown notification(s): %s", strings.Join(missing, ", "))
		}
		fmt.Fprintf(w, "Marked %d read\n", len(args))
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	if deleteAll == (len(args) > 0) {
		return fmt.Errorf("pass notification ids or --all")
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		w := cmd.OutOrStdout()
		if deleteAll {
			fmt.Fprintf(w, "Deleted %d\n", l.Store.ClearAll())
			return nil
		}
		n := 0
		for _, id := range args {
			if l.Store.Delete(id) {
				n++
			}
		}
		fmt.Fprintf(w, "Deleted %d of %d\n", n, len(args))
		return nil
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

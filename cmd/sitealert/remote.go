package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
	"sitealert/internal/remote"
	logx "sitealert/pkg/logx"
)

var (
	remoteJSON   bool
	remoteUnread bool
	remoteLimit  int
	remoteType   string
	remoteAll    bool
)

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteStatsCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteReadCmd)
	remoteCmd.AddCommand(remotePullCmd)
	remoteCmd.AddCommand(remotePushCmd)

	remoteCmd.PersistentFlags().BoolVar(&remoteJSON, "json", false, "output as JSON")
	remoteListCmd.Flags().BoolVar(&remoteUnread, "unread", false, "only unread notifications")
	remoteListCmd.Flags().IntVar(&remoteLimit, "limit", 20, "maximum rows (server caps at 100)")
	remoteListCmd.Flags().StringVar(&remoteType, "type", "", "filter by notification type")
	remoteReadCmd.Flags().BoolVar(&remoteAll, "all", false, "mark every server notification read")
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to the dashboard notification API",
	Long: `Talk to the dashboard notification API at remote.base_url using the
configured session token.

Examples:
  sitealert remote stats
  sitealert remote list --unread --limit 10
  sitealert remote pull
  sitealert remote push`,
}

var remoteStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server-side notification counters",
	Args:  cobra.NoArgs,
	RunE:  runRemoteStats,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List server-side notifications",
	Args:  cobra.NoArgs,
	RunE:  runRemoteList,
}

var remoteReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark a server-side notification read",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRemoteRead,
}

var remotePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local preferences with the server copy",
	Args:  cobra.NoArgs,
	RunE:  runRemotePull,
}

var remotePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local preferences to the server",
	Args:  cobra.NoArgs,
	RunE:  runRemotePush,
}

func openRemote() (*remote.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenRemote(cfg, logx.NewConsole(logLevel))
}

func runRemoteStats(cmd *cobra.Command, _ []string) error {
	c, err := openRemote()
	if err != nil {
		return err
	}
	st, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if remoteJSON {
		return outputJSON(w, st)
	}
	fmt.Fprintf(w, "Total: %d  Unread: %d  Recent: %d\n\n", st.Total, st.Unread, st.RecentCount)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT")
	for _, k := range sortedKeys(st.ByType) {
		fmt.Fprintf(tw, "%s\t%d\n", k, st.ByType[k])
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "PRIORITY\tCOUNT")
	for _, k := range sortedKeys(st.ByPriority) {
		fmt.Fprintf(tw, "%s\t%d\n", k, st.ByPriority[k])
	}
	return tw.Flush()
}

func runRemoteList(cmd *cobra.Command, _ []string) error {
	c, err := openRemote()
	if err != nil {
		return err
	}
	resp, err := c.List(cmd.Context(), remote.ListOptions{Limit: remoteLimit, UnreadOnly: remoteUnread, Type: remoteType})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if remoteJSON {
		return outputJSON(w, resp)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tPRIORITY\tTYPE\tREAD\tTITLE")
	for _, n := range resp.Notifications {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Priority, n.Type, n.IsRead, truncate(n.Title, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	more := ""
	if resp.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(w, "\n%d of %d, %d unread%s\n", len(resp.Notifications), resp.Total, resp.UnreadCount, more)
	return nil
}

func runRemoteRead(cmd *cobra.Command, args []string) error {
	if remoteAll == (len(args) > 0) {
		return fmt.Errorf("pass a notification id or --all")
	}
	c, err := openRemote()
	if err != nil {
		return err
	}
	if remoteAll {
		if err := c.MarkAllRead(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All server notifications marked read")
		return nil
	}
	n, err := c.MarkRead(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %s read\n", n.ID)
	return nil
}

func runRemotePull(cmd *cobra.Command, _ []string) error {
	c, err := openRemote()
	if err != nil {
		return err
	}
	p, err := c.Preferences(cmd.Context())
	if err != nil {
		return err
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		if err := l.Store.UpdatePreferences(p.Patch()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Local preferences replaced from server")
		return nil
	})
}

func runRemotePush(cmd *cobra.Command, _ []string) error {
	c, err := openRemote()
	if err != nil {
		return err
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		p, err := c.UpdatePreferences(cmd.Context(), remote.UpdateFrom(l.Store.Preferences()))
		if err != nil {
			return err
		}
		if remoteJSON {
			return outputJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Server preferences updated")
		return nil
	})
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

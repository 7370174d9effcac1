package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sitealert/internal/app"
	"sitealert/internal/notification"
)

var (
	prefsJSON bool

	setDesktop, setSound, setEmail, setPush bool
	setQuietEnabled, setAllowUrgent         bool
	setQuietHours                           string
	setGrouping                             bool
	setGroupingWindow                       int

	catEnabled, catDesktop, catEmail, catSound, catPush bool
	catMinPriority                                      string
)

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsCategoryCmd)
	prefsCmd.AddCommand(prefsSoundCmd)

	prefsShowCmd.Flags().BoolVar(&prefsJSON, "json", false, "output as JSON")

	f := prefsSetCmd.Flags()
	f.BoolVar(&setDesktop, "desktop", true, "desktop notifications")
	f.BoolVar(&setSound, "sound", true, "sound cues")
	f.BoolVar(&setEmail, "email", false, "email delivery")
	f.BoolVar(&setPush, "push", false, "push delivery")
	f.BoolVar(&setQuietEnabled, "quiet", false, "enable quiet hours")
	f.StringVar(&setQuietHours, "quiet-hours", "", "quiet window as HH:MM-HH:MM")
	f.BoolVar(&setAllowUrgent, "allow-urgent", true, "let urgent notifications through quiet hours")
	f.BoolVar(&setGrouping, "grouping", true, "group repeated notifications")
	f.IntVar(&setGroupingWindow, "grouping-window", 5, "grouping window in minutes")

	c := prefsCategoryCmd.Flags()
	c.BoolVar(&catEnabled, "enabled", true, "category enabled")
	c.BoolVar(&catDesktop, "desktop", true, "desktop for this category")
	c.BoolVar(&catEmail, "email", false, "email for this category")
	c.BoolVar(&catSound, "sound", true, "sound for this category")
	c.BoolVar(&catPush, "push", false, "push for this category")
	c.StringVar(&catMinPriority, "min-priority", "", "minimum priority: low, medium, high or urgent")
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change notification preferences",
	Long: `Show or change notification preferences.

Only flags that are passed explicitly are changed.

Examples:
  sitealert prefs show
  sitealert prefs set --quiet --quiet-hours 22:00-07:00
  sitealert prefs category bottleneck-alert --push --min-priority high
  sitealert prefs sound off`,
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change global preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsSet,
}

var prefsCategoryCmd = &cobra.Command{
	Use:   "category <category>",
	Short: "Change the preference of one category",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsCategory,
}

var prefsSoundCmd = &cobra.Command{
	Use:   "sound [on|off]",
	Short: "Toggle or set the sound switch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrefsSound,
}

func runPrefsShow(cmd *cobra.Command, _ []string) error {
	return withLocal(cmd.Context(), func(l *app.Local) error {
		p := l.Store.Preferences()
		w := cmd.OutOrStdout()
		if prefsJSON {
			return outputJSON(w, struct {
				Preferences  notification.PreferenceSet `json:"preferences"`
				SoundEnabled bool                       `json:"sound_enabled"`
			}{p, l.Store.SoundEnabled()})
		}
		fmt.Fprintf(w, "Desktop: %t  Sound: %t (switch %t)  Email: %t  Push: %t\n",
			p.DesktopEnabled, p.SoundEnabled, l.Store.SoundEnabled(), p.EmailEnabled, p.PushEnabled)
		fmt.Fprintf(w, "Quiet hours: %t %s-%s (urgent allowed: %t)\n",
			p.QuietHours.Enabled, p.QuietHours.Start, p.QuietHours.End, p.QuietHours.AllowUrgent)
		fmt.Fprintf(w, "Grouping: %t, %d min\n\n", p.Grouping.Enabled, p.Grouping.WindowMinutes)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tENABLED\tDESKTOP\tSOUND\tEMAIL\tPUSH\tMIN")
		for _, c := range notification.Categories() {
			cp := p.Categories[c]
			fmt.Fprintf(tw, "%s\t%t\t%t\t%t\t%t\t%t\t%s\n",
				c, cp.Enabled, cp.Desktop, cp.Sound, cp.Email, cp.Push, cp.MinimumPriority)
		}
		return tw.Flush()
	})
}

func runPrefsSet(cmd *cobra.Command, _ []string) error {
	patch, err := preferencePatchFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		if patch.QuietHours != nil || patch.Grouping != nil {
			mergeNested(&patch, l.Store.Preferences(), cmd.Flags())
		}
		if err := l.Store.UpdatePreferences(patch); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Preferences updated")
		return nil
	})
}

// preferencePatchFromFlags maps explicitly passed flags onto a patch.
// Nested quiet hours and grouping are completed by mergeNested.
func preferencePatchFromFlags(fs *pflag.FlagSet) (notification.PreferencePatch, error) {
	var patch notification.PreferencePatch
	if fs.Changed("desktop") {
		patch.DesktopEnabled = notification.Bool(setDesktop)
	}
	if fs.Changed("sound") {
		patch.SoundEnabled = notification.Bool(setSound)
	}
	if fs.Changed("email") {
		patch.EmailEnabled = notification.Bool(setEmail)
	}
	if fs.Changed("push") {
		patch.PushEnabled = notification.Bool(setPush)
	}
	if fs.Changed("quiet") || fs.Changed("quiet-hours") || fs.Changed("allow-urgent") {
		qh := &notification.QuietHours{}
		if fs.Changed("quiet-hours") {
			start, end, err := parseQuietWindow(setQuietHours)
			if err != nil {
				return patch, err
			}
			qh.Start, qh.End = start, end
		}
		patch.QuietHours = qh
	}
	if fs.Changed("grouping") || fs.Changed("grouping-window") {
		if setGroupingWindow <= 0 {
			return patch, fmt.Errorf("--grouping-window must be > 0")
		}
		patch.Grouping = &notification.Grouping{}
	}
	if patch.DesktopEnabled == nil && patch.SoundEnabled == nil && patch.EmailEnabled == nil &&
		patch.PushEnabled == nil && patch.QuietHours == nil && patch.Grouping == nil {
		return patch, fmt.Errorf("no preference flags given")
	}
	return patch, nil
}

// mergeNested fills the nested structs from cur for every field whose flag
// was not passed.
func mergeNested(patch *notification.PreferencePatch, cur notification.PreferenceSet, fs *pflag.FlagSet) {
	if qh := patch.QuietHours; qh != nil {
		start, end := qh.Start, qh.End
		*qh = cur.QuietHours
		if fs.Changed("quiet-hours") {
			qh.Start, qh.End = start, end
		}
		if fs.Changed("quiet") {
			qh.Enabled = setQuietEnabled
		}
		if fs.Changed("allow-urgent") {
			qh.AllowUrgent = setAllowUrgent
		}
	}
	if g := patch.Grouping; g != nil {
		*g = cur.Grouping
		if fs.Changed("grouping") {
			g.Enabled = setGrouping
		}
		if fs.Changed("grouping-window") {
			g.WindowMinutes = setGroupingWindow
		}
	}
}

func parseQuietWindow(s string) (start, end string, err error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || start == "" || end == "" {
		return "", "", fmt.Errorf("quiet hours %q: want HH:MM-HH:MM", s)
	}
	return strings.TrimSpace(start), strings.TrimSpace(end), nil
}

func runPrefsCategory(cmd *cobra.Command, args []string) error {
	c, err := notification.ParseCategory(args[0])
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	var patch notification.CategoryPatch
	if fs.Changed("enabled") {
		patch.Enabled = notification.Bool(catEnabled)
	}
	if fs.Changed("desktop") {
		patch.Desktop = notification.Bool(catDesktop)
	}
	if fs.Changed("email") {
		patch.Email = notification.Bool(catEmail)
	}
	if fs.Changed("sound") {
		patch.Sound = notification.Bool(catSound)
	}
	if fs.Changed("push") {
		patch.Push = notification.Bool(catPush)
	}
	if fs.Changed("min-priority") {
		p, err := notification.ParsePriority(catMinPriority)
		if err != nil {
			return err
		}
		patch.MinimumPriority = notification.PriorityPtr(p)
	}
	if patch == (notification.CategoryPatch{}) {
		return fmt.Errorf("no category flags given")
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		if err := l.Store.UpdateCategoryPreference(c, patch); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", c)
		return nil
	})
}

func runPrefsSound(cmd *cobra.Command, args []string) error {
	var want *bool
	if len(args) == 1 {
		v, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		want = &v
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		var on bool
		if want == nil {
			on = l.Store.ToggleSound()
		} else {
			l.Store.SetSoundEnabled(*want)
			on = *want
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sound %s\n", onOff(on))
		return nil
	})
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("want on or off, got %q", s)
	}
	return v, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

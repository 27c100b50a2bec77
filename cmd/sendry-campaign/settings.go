package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/quota"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Pacing, quota and template variable commands",
}

var pacingShowCmd = &cobra.Command{
	Use:   "pacing",
	Short: "Show pacing settings and today's quota usage",
	RunE:  runPacingShow,
}

var pacingSetCmd = &cobra.Command{
	Use:   "set-pacing",
	Short: "Change pacing settings",
	RunE:  runPacingSet,
}

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Show global template variables",
	RunE:  runVarsList,
}

var varsSetCmd = &cobra.Command{
	Use:   "set-var [name] [value]",
	Short: "Set a global template variable",
	Args:  cobra.ExactArgs(2),
	RunE:  runVarsSet,
}

var varsUnsetCmd = &cobra.Command{
	Use:   "unset-var [name]",
	Short: "Remove a global template variable",
	Args:  cobra.ExactArgs(1),
	RunE:  runVarsUnset,
}

var (
	pacingDelay     time.Duration
	pacingMaxPerDay int
	quotaCampaignID string
)

func init() {
	pacingShowCmd.Flags().StringVar(&quotaCampaignID, "campaign", "", "Campaign ID for campaign quota scope")
	pacingSetCmd.Flags().DurationVar(&pacingDelay, "delay", -1, "Pause between two sends, e.g. 1.5s")
	pacingSetCmd.Flags().IntVar(&pacingMaxPerDay, "max-per-day", -1, "Daily send limit, 0 for unlimited")

	settingsCmd.AddCommand(pacingShowCmd)
	settingsCmd.AddCommand(pacingSetCmd)
	settingsCmd.AddCommand(varsCmd)
	settingsCmd.AddCommand(varsSetCmd)
	settingsCmd.AddCommand(varsUnsetCmd)
}

func runPacingShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	p, err := a.Settings.Pacing(ctx)
	if err != nil {
		return err
	}

	scope := quota.Pool()
	if a.Config.Dispatch.QuotaScope == config.QuotaScopeCampaign {
		if quotaCampaignID == "" {
			return fmt.Errorf("--campaign is required with campaign quota scope")
		}
		scope = quota.Campaign(quotaCampaignID)
	}
	remaining, sent, err := a.Quota.Remaining(ctx, scope, p.MaxSendsPerDay)
	if err != nil {
		return err
	}

	fmt.Printf("Delay:       %s\n", p.Delay())
	if p.Unlimited() {
		fmt.Println("Daily limit: unlimited")
	} else {
		fmt.Printf("Daily limit: %d (%d left)\n", p.MaxSendsPerDay, remaining)
	}
	fmt.Printf("Sent today:  %d (%s, %s)\n", sent, scope, a.Config.Dispatch.Timezone)
	return nil
}

func runPacingSet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	p, err := a.Settings.Pacing(ctx)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("delay") {
		p.DelayMs = int(pacingDelay.Milliseconds())
	}
	if cmd.Flags().Changed("max-per-day") {
		p.MaxSendsPerDay = pacingMaxPerDay
	}
	if err := a.Validator.Struct(p); err != nil {
		return err
	}
	if err := a.Settings.SetPacing(ctx, p); err != nil {
		return err
	}

	fmt.Printf("Pacing saved: %s delay, %d per day\n", p.Delay(), p.MaxSendsPerDay)
	return nil
}

func runVarsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	vars, err := a.Settings.Variables(context.Background())
	if err != nil {
		return err
	}
	if len(vars) == 0 {
		fmt.Println("No variables set")
		return nil
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, vars[name])
	}
	return w.Flush()
}

func runVarsSet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Settings.SetVariable(context.Background(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Variable %s set\n", args[0])
	return nil
}

func runVarsUnset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Settings.DeleteVariable(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Variable %s removed\n", args[0])
	return nil
}

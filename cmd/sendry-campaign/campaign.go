package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/api"
	"github.com/foxzi/sendry-campaign/internal/dispatch"
	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/history"
	"github.com/foxzi/sendry-campaign/internal/models"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign commands",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign",
	RunE:  runCampaignCreate,
}

var campaignLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Show campaigns",
	RunE:  runCampaignLs,
}

var campaignStatsCmd = &cobra.Command{
	Use:   "stats [campaign-id]",
	Short: "Show delivery counts of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignStats,
}

var campaignRunCmd = &cobra.Command{
	Use:   "run [campaign-id]",
	Short: "Run one dispatch pass in the foreground",
	Long: `Run one dispatch pass in the foreground. The pass stops at the daily
limit, after the last pending recipient, or after the send in flight when
interrupted. Do not run it while the server is dispatching.`,
	Args: cobra.ExactArgs(1),
	RunE: runCampaignRun,
}

var campaignResetCmd = &cobra.Command{
	Use:   "reset [campaign-id]",
	Short: "Set deliveries back to pending",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCampaignReset,
}

var campaignReseedCmd = &cobra.Command{
	Use:   "reseed [campaign-id]",
	Short: "Add list addresses that joined after the first start",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignReseed,
}

var campaignRunsCmd = &cobra.Command{
	Use:   "runs [campaign-id]",
	Short: "Show finished dispatch passes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCampaignRuns,
}

var (
	campaignName         string
	campaignSubject      string
	campaignTemplateFile string
	campaignListID       string
	campaignProfileID    string
	campaignFromEmail    string
	campaignFromName     string
	campaignStatus       string
	campaignResetAll     bool
	campaignRunsLimit    int
)

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignName, "name", "", "Campaign name")
	campaignCreateCmd.Flags().StringVar(&campaignSubject, "subject", "", "Message subject")
	campaignCreateCmd.Flags().StringVar(&campaignTemplateFile, "template", "", "Path to the HTML template")
	campaignCreateCmd.Flags().StringVar(&campaignListID, "list", "", "Recipient list ID")
	campaignCreateCmd.Flags().StringVar(&campaignProfileID, "profile", "", "SMTP profile ID")
	campaignCreateCmd.Flags().StringVar(&campaignFromEmail, "from", "", "Sender address (defaults to the profile username)")
	campaignCreateCmd.Flags().StringVar(&campaignFromName, "from-name", "", "Sender display name")
	for _, name := range []string{"name", "subject", "template", "list", "profile"} {
		campaignCreateCmd.MarkFlagRequired(name)
	}

	campaignLsCmd.Flags().StringVar(&campaignStatus, "status", "", "Filter by status (draft, in_progress, completed)")
	campaignResetCmd.Flags().BoolVar(&campaignResetAll, "all", false, "Reset every campaign")
	campaignRunsCmd.Flags().IntVar(&campaignRunsLimit, "limit", 20, "Number of runs to show")

	campaignCmd.AddCommand(campaignCreateCmd)
	campaignCmd.AddCommand(campaignLsCmd)
	campaignCmd.AddCommand(campaignStatsCmd)
	campaignCmd.AddCommand(campaignRunCmd)
	campaignCmd.AddCommand(campaignResetCmd)
	campaignCmd.AddCommand(campaignReseedCmd)
	campaignCmd.AddCommand(campaignRunsCmd)
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	tmpl, err := os.ReadFile(campaignTemplateFile)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	req := api.CampaignRequest{
		Name:      campaignName,
		Subject:   campaignSubject,
		Template:  string(tmpl),
		FromEmail: campaignFromEmail,
		FromName:  campaignFromName,
		ListID:    campaignListID,
		ProfileID: campaignProfileID,
	}
	if err := a.Validator.Struct(req); err != nil {
		return err
	}

	if list, err := a.Lists.GetByID(ctx, req.ListID); err != nil {
		return err
	} else if list == nil {
		return fmt.Errorf("list not found: %s", req.ListID)
	}
	if p, err := a.Profiles.GetByID(ctx, req.ProfileID); err != nil {
		return err
	} else if p == nil {
		return fmt.Errorf("profile not found: %s", req.ProfileID)
	}

	c := &models.Campaign{
		Name:      req.Name,
		Subject:   req.Subject,
		Template:  req.Template,
		FromEmail: email.Normalize(req.FromEmail),
		FromName:  req.FromName,
		ListID:    req.ListID,
		ProfileID: req.ProfileID,
	}
	if err := a.Campaigns.Create(ctx, c); err != nil {
		return err
	}

	fmt.Printf("Campaign created: %s\n", c.ID)
	return nil
}

func runCampaignLs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	campaigns, err := a.Campaigns.List(context.Background(), campaignStatus)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLIST\tCREATED")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Status, c.ListID, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runCampaignStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	c, err := a.Campaigns.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign not found: %s", args[0])
	}
	stats, err := a.Deliveries.Stats(ctx, c.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Campaign: %s (%s)\n", c.Name, c.ID)
	fmt.Printf("Status:   %s\n", c.Status)
	fmt.Printf("Total:    %d\n", stats.Total)
	fmt.Printf("Sent:     %d\n", stats.Sent)
	fmt.Printf("Failed:   %d\n", stats.Failed)
	fmt.Printf("Pending:  %d\n", stats.Pending)

	last, err := a.History.Last(ctx, c.ID)
	if err != nil {
		return err
	}
	if last != nil {
		fmt.Printf("Last run: %s, halt %s, sent %d, failed %d\n",
			last.FinishedAt.Local().Format("2006-01-02 15:04"), last.Halt, last.Sent, last.Failed)
	}
	return nil
}

func runCampaignRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pass, err := a.Engine.Prepare(ctx, args[0], nil)
	if err != nil {
		return err
	}
	fmt.Printf("Dispatching %s: %d pending\n", pass.Campaign().Name, pass.Total())

	// An interrupt halts after the send in flight
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	done := 0
	res, runErr := pass.Run(context.Background(), stop, func(p dispatch.Progress) {
		if p.Current != "" || p.Sent+p.Failed == done {
			return
		}
		done = p.Sent + p.Failed
		fmt.Printf("  [%d/%d] sent %d, failed %d\n", done, p.Total, p.Sent, p.Failed)
	})

	rec := &history.Record{
		CampaignID:   res.CampaignID,
		CampaignName: pass.Campaign().Name,
		Total:        res.Total,
		Sent:         res.Sent,
		Failed:       res.Failed,
		Halt:         string(res.Halt),
		Completed:    res.Completed,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := a.History.Append(context.Background(), rec); err != nil {
		fmt.Fprintf(os.Stderr, "failed to record run: %v\n", err)
	}

	fmt.Printf("Halted: %s, sent %d, failed %d", res.Halt, res.Sent, res.Failed)
	if res.Completed {
		fmt.Print(", campaign completed")
	}
	fmt.Println()
	return runErr
}

func runCampaignReset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	var n int64
	switch {
	case campaignResetAll && len(args) == 0:
		n, err = a.Runner.ResetAll(ctx)
	case !campaignResetAll && len(args) == 1:
		n, err = a.Runner.Reset(ctx, args[0])
	default:
		return fmt.Errorf("pass a campaign ID or --all")
	}
	if err != nil {
		return err
	}

	fmt.Printf("%d deliveries set back to pending\n", n)
	return nil
}

func runCampaignReseed(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Runner.Reseed(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%d deliveries added\n", n)
	return nil
}

func runCampaignRuns(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var campaignID string
	if len(args) == 1 {
		campaignID = args[0]
	}
	runs, err := a.History.List(context.Background(), campaignID, campaignRunsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tCAMPAIGN\tHALT\tSENT\tFAILED\tDURATION")
	for _, r := range runs {
		name := r.CampaignName
		if name == "" {
			name = r.CampaignID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"), name, r.Halt, r.Sent, r.Failed, r.Duration().Round(time.Millisecond))
	}
	return w.Flush()
}

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/sendry-campaign/internal/api"
	"github.com/foxzi/sendry-campaign/internal/models"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "SMTP profile commands",
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an SMTP profile",
	RunE:  runProfileAdd,
}

var profileLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Show all SMTP profiles",
	RunE:  runProfileLs,
}

var profileTestCmd = &cobra.Command{
	Use:   "test [profile-id]",
	Short: "Connect and authenticate without sending",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileTest,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete [profile-id]",
	Short: "Delete an SMTP profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var (
	profileName       string
	profileHost       string
	profilePort       int
	profileUsername   string
	profilePassword   string
	profileEncryption string
)

func init() {
	profileAddCmd.Flags().StringVar(&profileName, "name", "", "Profile name")
	profileAddCmd.Flags().StringVar(&profileHost, "host", "", "SMTP relay host")
	profileAddCmd.Flags().IntVar(&profilePort, "port", 587, "SMTP relay port")
	profileAddCmd.Flags().StringVar(&profileUsername, "username", "", "SMTP username")
	profileAddCmd.Flags().StringVar(&profilePassword, "password", "", "SMTP password (will prompt if not provided)")
	profileAddCmd.Flags().StringVar(&profileEncryption, "encryption", models.EncryptionNone, "Encryption: none, ssl or tls")
	profileAddCmd.MarkFlagRequired("name")
	profileAddCmd.MarkFlagRequired("host")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileLsCmd)
	profileCmd.AddCommand(profileTestCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	password := profilePassword
	if password == "" && profileUsername != "" && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Print("Enter SMTP password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pw)
	}

	req := api.ProfileRequest{
		Name:       profileName,
		Host:       profileHost,
		Port:       profilePort,
		Username:   profileUsername,
		Password:   password,
		Encryption: profileEncryption,
	}
	if err := a.Validator.Struct(req); err != nil {
		return err
	}

	p := &models.Profile{
		Name:       req.Name,
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		Password:   req.Password,
		Encryption: req.Encryption,
	}
	if err := a.Profiles.Create(context.Background(), p); err != nil {
		return err
	}

	fmt.Printf("Profile created: %s\n", p.ID)
	return nil
}

func runProfileLs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.Profiles.List(context.Background())
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRELAY\tUSERNAME\tENCRYPTION")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\t%s\n", p.ID, p.Name, p.Host, p.Port, p.Username, p.Encryption)
	}
	return w.Flush()
}

func runProfileTest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p, err := a.Profiles.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("profile not found: %s", args[0])
	}

	start := time.Now()
	conn, err := a.Dialer.Dial(ctx, p)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if err := conn.Verify(ctx); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Printf("OK: %s:%d accepted the session in %s\n", p.Host, p.Port, time.Since(start).Round(time.Millisecond))
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Profiles.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Profile %s deleted\n", args[0])
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Recipient list commands",
}

var listCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a recipient list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListCreate,
}

var listImportCmd = &cobra.Command{
	Use:   "import [list-id] [file]",
	Short: "Import addresses from a CSV or text file",
	Args:  cobra.ExactArgs(2),
	RunE:  runListImport,
}

var listLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Show all recipient lists",
	RunE:  runListLs,
}

var listShowCmd = &cobra.Command{
	Use:   "show [list-id]",
	Short: "Show the addresses of a list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListShow,
}

var listDeleteCmd = &cobra.Command{
	Use:   "delete [list-id]",
	Short: "Delete a recipient list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListDelete,
}

var listFile string

func init() {
	listCreateCmd.Flags().StringVarP(&listFile, "file", "f", "", "Import addresses from a CSV or text file")

	listCmd.AddCommand(listCreateCmd)
	listCmd.AddCommand(listImportCmd)
	listCmd.AddCommand(listLsCmd)
	listCmd.AddCommand(listShowCmd)
	listCmd.AddCommand(listDeleteCmd)
}

// readAddresses parses a .csv file as CSV and anything else as text
// separated by commas or newlines
func readAddresses(path string) (email.Parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return email.Parsed{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return email.ParseCSV(f)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return email.Parsed{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return email.ParseText(string(data)), nil
}

func printImport(res *models.ImportResult, invalid []string) {
	fmt.Printf("Added: %d, already on list: %d, invalid: %d\n", res.Added, res.Skipped, len(invalid))
	for _, addr := range invalid {
		fmt.Printf("  invalid: %s\n", addr)
	}
}

func runListCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	var parsed email.Parsed
	if listFile != "" {
		if parsed, err = readAddresses(listFile); err != nil {
			return err
		}
	}

	list := &models.RecipientList{Name: args[0]}
	if err := a.Lists.Create(ctx, list); err != nil {
		return err
	}
	fmt.Printf("List created: %s\n", list.ID)

	if listFile == "" {
		return nil
	}
	res, err := a.Lists.AddItems(ctx, list.ID, parsed.Addresses)
	if err != nil {
		return err
	}
	printImport(res, parsed.Invalid)
	return nil
}

func runListImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	list, err := a.Lists.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("list not found: %s", args[0])
	}

	parsed, err := readAddresses(args[1])
	if err != nil {
		return err
	}
	res, err := a.Lists.AddItems(ctx, list.ID, parsed.Addresses)
	if err != nil {
		return err
	}
	printImport(res, parsed.Invalid)
	return nil
}

func runListLs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lists, err := a.Lists.List(context.Background())
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		fmt.Println("No lists found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESSES\tCREATED")
	for _, l := range lists {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", l.ID, l.Name, l.TotalCount, l.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runListShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Lists.Items(context.Background(), args[0])
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Println(item.Email)
	}
	return nil
}

func runListDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Lists.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("List %s deleted\n", args[0])
	return nil
}

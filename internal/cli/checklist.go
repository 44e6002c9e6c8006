package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/review"
)

var checklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Manage the checklist of a run",
}

var checklistImportCmd = &cobra.Command{
	Use:   "import <run-id> <file>",
	Short: "Append the items of a checklist file to a run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		contents, err := review.LoadChecklistFile(args[1])
		if err != nil {
			return fail(err)
		}
		a, err := openApp(ctx, false)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		items, err := a.store.AddChecklists(ctx, args[0], contents)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(os.Stdout, "Added %d checklist items (%d-%d) to run %s\n",
			len(items), items[0].ID, items[len(items)-1].ID, args[0])
		return nil
	},
}

var checklistNewCmd = &cobra.Command{
	Use:   "new <name> <file>",
	Short: "Create a run with the items of a checklist file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		contents, err := review.LoadChecklistFile(args[1])
		if err != nil {
			return fail(err)
		}
		a, err := openApp(ctx, false)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		run, err := a.store.CreateRun(ctx, args[0])
		if err != nil {
			return fail(err)
		}
		if _, err := a.store.AddChecklists(ctx, run.ID, contents); err != nil {
			return fail(err)
		}
		fmt.Fprintln(os.Stdout, run.ID)
		return nil
	},
}

var checklistListCmd = &cobra.Command{
	Use:   "list <run-id>",
	Short: "List the checklist items of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		if _, err := a.store.GetRun(ctx, args[0]); err != nil {
			return fail(err)
		}
		items, err := a.store.GetChecklists(ctx, args[0])
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(os.Stdout, checklistTable(items))
		return nil
	},
}

func checklistTable(items []review.ChecklistItem) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Checklist"})
	tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
	for _, it := range items {
		tbl.AppendRow(table.Row{it.ID, it.Content})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d items", len(items))})
	return tbl.Render()
}

func init() {
	checklistCmd.AddCommand(checklistImportCmd)
	checklistCmd.AddCommand(checklistNewCmd)
	checklistCmd.AddCommand(checklistListCmd)
}

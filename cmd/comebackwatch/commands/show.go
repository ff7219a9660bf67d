package commands

import (
	"fmt"
	"io"
	"os"

	"comebackwatch/internal/model"
	"comebackwatch/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var showSection string

func when(item model.ViewItem) string {
	if item.Day == "" {
		return "TBA"
	}
	if item.Time == "" {
		return item.Day
	}
	return fmt.Sprintf("%s %s", item.Day, item.Time)
}

func renderView(out io.Writer, title string, items []model.ViewItem) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"When", "Group", "Name", "Kind", "Raw"})
	for _, item := range items {
		t.AppendRow(table.Row{when(item), item.Group, item.Name, item.Kind, item.RawText})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderViews(out io.Writer, v model.Views, section string) error {
	sections := []struct {
		name  string
		title string
		items []model.ViewItem
	}{
		{"upcoming", fmt.Sprintf("Upcoming (next %d days from %s)", v.HorizonDays, v.Today), v.Upcoming},
		{"recent", fmt.Sprintf("Recent (last %d days)", v.RecentDays), v.Recent},
		{"undated", "Undated", v.Undated},
	}

	rendered := false
	for _, s := range sections {
		if section != "" && section != s.name {
			continue
		}
		renderView(out, s.title, s.items)
		rendered = true
	}
	if !rendered {
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show [--section upcoming|recent|undated]",
	Short: "Print the last built views as tables.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context(), globalFlags)
		if err != nil {
			return err
		}
		defer env.Close()

		v, err := store.Load[model.Views](cmd.Context(), env.store, store.DocViews)
		if err != nil {
			return fmt.Errorf("load views, run the views stage first: %w", err)
		}
		return renderViews(os.Stdout, v, showSection)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSection, "section", "", "Only print one section.")
	rootCmd.AddCommand(showCmd)
}

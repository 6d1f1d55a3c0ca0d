package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/blockflow/internal/store"
)

func newImportCmd(a *app) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Store a definition as a new workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := readDefinition(cmd, args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			svc, closeStore, err := a.openEditor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			wf, result, err := svc.Create(cmd.Context(), title, def)
			if err != nil {
				if result != nil {
					printIssues(cmd.ErrOrStderr(), result)
				}
				return err
			}
			reportIssues(cmd.ErrOrStderr(), result)
			fmt.Fprintln(cmd.OutOrStdout(), wf.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "workflow title (default: file name)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export <workflow-id>",
		Short: "Write the definition of a stored workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := a.openEditor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			wf, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeDefinition(cmd, out, format, &wf.Definition)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var filter store.WorkflowFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStore, err := a.openEditor(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			workflows, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tBLOCKS\tUPDATED")
			for _, wf := range workflows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", wf.ID, wf.Title, len(wf.Definition.Labels()), wf.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Title, "title", "", "case-insensitive title filter")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of workflows")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of workflows to skip")
	return cmd
}

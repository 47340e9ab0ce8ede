package main

import (
	"fmt"
	"time"

	"github.com/aretw0/stride/internal/cli"
	"github.com/aretw0/stride/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <analysis.json>",
	Short: "Render an analysis payload as a report",
	Long: `Completes a raw analysis payload offline, filling missing sections from the
prescription and feedback when given, and renders it for the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, _ := cmd.Flags().GetString("prescription")
		fb, _ := cmd.Flags().GetString("feedback")

		md, err := cli.BuildReport(cli.ReportInput{
			AnalysisPath:     args[0],
			PrescriptionPath: plan,
			FeedbackPath:     fb,
		}, time.Now())
		if err != nil {
			return err
		}

		render := tui.NewRenderer()
		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			render = tui.Plain
		}
		out, err := render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("prescription", "", "Prescription JSON used to compute fallbacks")
	reportCmd.Flags().String("feedback", "", "Session feedback JSON used to compute fallbacks")
	reportCmd.Flags().Bool("plain", false, "Print markdown without styling")
}

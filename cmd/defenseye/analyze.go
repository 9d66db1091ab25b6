package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DefensEye/cmmc12/cmd/defenseye/server"
	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/distributor/factory"
	"github.com/DefensEye/cmmc12/service"
)

type analyzeOptions struct {
	csvPath  string
	mode     string
	format   string
	database bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a CSV export of security findings",
		Example: `  defenseye analyze --csv findings.csv
  defenseye analyze --csv findings.csv --mode tagged --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "Path to a CSV export of security findings")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Domain distribution mode: weighted or tagged (defaults to config)")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&opts.database, "database", false, "Query the configured database before falling back to the CSV export")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	if opts.mode != "" && !factory.Known(distributor.ID(opts.mode)) {
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var payload string
	if opts.csvPath != "" {
		content, err := os.ReadFile(filepath.Clean(opts.csvPath))
		if err != nil {
			return fmt.Errorf("error reading csv: %w", err)
		}
		payload = string(content)
	}

	composer, err := server.NewComposer(cfg.Analysis)
	if err != nil {
		return err
	}
	if !opts.database {
		cfg.Database = server.DatabaseConfig{}
	}
	svc := service.NewService(server.NewSourceChain(cfg, nil), composer, nil)

	result, err := svc.Analyze(cmd.Context(), payload, distributor.ID(opts.mode))
	if errors.Is(err, service.ErrNoFindings) {
		return errors.New("no security findings available for analysis: provide --csv or --database")
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Report)
	}
	return renderReport(cmd.OutOrStdout(), result)
}

// renderReport prints the headline numbers and the domain distribution.
func renderReport(w io.Writer, result service.Result) error {
	r := result.Report
	fmt.Fprintf(w, "%s\n\n", r.Summary)
	fmt.Fprintf(w, "Source: %s (%d findings)\nOverall score: %d\nAssessment date: %s\n\n",
		result.Source, result.Findings, r.OverallScore, r.AssessmentDate)

	table := tablewriter.NewWriter(w)
	table.Header("Domain", "Name", "Compliant", "Partial", "Non-compliant")
	for _, d := range r.DomainDistribution {
		if err := table.Append([]string{
			d.DomainID,
			d.DomainName,
			strconv.Itoa(d.CompliantCount),
			strconv.Itoa(d.PartialCount),
			strconv.Itoa(d.NonCompliantCount),
		}); err != nil {
			return err
		}
	}
	if err := table.Append([]string{
		"",
		"Total",
		strconv.Itoa(r.CompliantCount),
		strconv.Itoa(r.PartialCount),
		strconv.Itoa(r.NonCompliantCount),
	}); err != nil {
		return err
	}
	return table.Render()
}

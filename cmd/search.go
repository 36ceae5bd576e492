package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/report"
)

var (
	searchName     string
	searchCity     string
	searchTerms    string
	searchReport   bool
	searchFormat   string
	searchInterval time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Investigate one person and print the profile as JSON",
	Example: `  osint-investigator search --name "Jane Doe" --city Austin --terms "CFO,Acme"
  osint-investigator search --name "Jane Doe" --report --format xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, "search", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.SearchRequest{Name: searchName, City: searchCity, ExtraTerms: searchTerms}
		id, err := env.Manager.StartJob(ctx, req)
		if err != nil {
			return err
		}
		zap.L().Info("search started", zap.String("job_id", id))

		errOut := cmd.ErrOrStderr()
		final, err := pollJob(ctx, env.Manager, id, searchInterval, func(p model.Progress) {
			fmt.Fprintf(errOut, "[%3d%%] %s\n", p.Percentage, p.Stage) //nolint:errcheck
		})
		env.Manager.Wait()
		if err != nil {
			return err
		}
		if final.Status == model.JobStatusError {
			return eris.Errorf("search failed: %s", final.Error)
		}

		if err := writeJSON(cmd.OutOrStdout(), final.Result); err != nil {
			return err
		}

		if !searchReport {
			return nil
		}
		art, err := buildReport(ctx, final.Result, searchFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "report written to %s\n", art.Path) //nolint:errcheck
		return nil
	},
}

// buildReport writes profile with the configured builder. An empty format
// keeps report.format from the config.
func buildReport(ctx context.Context, profile *model.PersonProfile, format string) (*report.Artifact, error) {
	builder, err := report.NewFileBuilder(cfg.Report)
	if err != nil {
		return nil, err
	}
	var f report.Format
	if format != "" {
		if f, err = report.ParseFormat(format); err != nil {
			return nil, err
		}
	}
	return builder.BuildAs(ctx, profile, f)
}

// progressSource answers progress polls.
type progressSource interface {
	GetProgress(ctx context.Context, id string) (model.Progress, error)
}

// pollJob polls until the job reaches a terminal status, calling onChange
// whenever the stage or percentage moves.
func pollJob(ctx context.Context, jobs progressSource, id string, interval time.Duration, onChange func(model.Progress)) (model.Progress, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last model.Progress
	first := true
	for {
		p, err := jobs.GetProgress(ctx, id)
		if err != nil {
			return model.Progress{}, eris.Wrap(err, "poll job")
		}
		if onChange != nil && (first || p.Stage != last.Stage || p.Percentage != last.Percentage) {
			onChange(p)
		}
		first = false
		last = p
		if p.Status.Terminal() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return last, eris.Wrap(ctx.Err(), "poll job")
		case <-ticker.C:
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	searchCmd.Flags().StringVar(&searchName, "name", "", "full name of the person (required)")
	searchCmd.Flags().StringVar(&searchCity, "city", "", "city or region")
	searchCmd.Flags().StringVar(&searchTerms, "terms", "", "comma-separated extra keywords")
	searchCmd.Flags().BoolVar(&searchReport, "report", false, "also write a report file")
	searchCmd.Flags().StringVar(&searchFormat, "format", "", "report format: json, yaml or xlsx (default from config)")
	searchCmd.Flags().DurationVar(&searchInterval, "poll", 500*time.Millisecond, "progress poll interval")
	_ = searchCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(searchCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/osint-investigator/internal/model"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report <profile.json>",
	Short: "Render a saved profile into a report file",
	Long:  "Reads a profile, either bare or wrapped as {\"personData\": ...} or as a completed progress response, and writes a report to report.dir.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := readProfile(args[0])
		if err != nil {
			return err
		}
		art, err := buildReport(cmd.Context(), profile, reportFormat)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), art.Path)
		return err
	},
}

// readProfile accepts the shapes the API hands out: a bare profile, a
// generate-report request body, or a progress response with a result.
func readProfile(path string) (*model.PersonProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read profile")
	}

	var wrapped struct {
		PersonData *model.PersonProfile `json:"personData"`
		Result     *model.PersonProfile `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, eris.Wrap(err, "parse profile")
	}
	switch {
	case wrapped.PersonData != nil:
		return wrapped.PersonData, nil
	case wrapped.Result != nil:
		return wrapped.Result, nil
	}

	var profile model.PersonProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, eris.Wrap(err, "parse profile")
	}
	if profile.Name == "" {
		return nil, eris.New("parse profile: no name in profile")
	}
	return &profile, nil
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "", "report format: json, yaml or xlsx (default from config)")
	rootCmd.AddCommand(reportCmd)
}

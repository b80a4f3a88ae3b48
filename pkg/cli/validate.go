package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/testproxy/pkg/config"
	"github.com/getmockd/testproxy/pkg/recording"
)

// ValidationResult is the JSON output of the validate command.
type ValidationResult struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	// Entries is the entry count of a valid recording.
	Entries int `json:"entries,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate [recording.json ...]",
		Short: "Validate a configuration file and recordings without serving",
		Example: `  # Check a configuration file
  testproxy validate --config proxy.yaml

  # Check recordings before committing them
  testproxy validate recordings/*.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" && len(args) == 0 {
				return errors.New("nothing to validate: pass --config or recording files")
			}

			var results []ValidationResult
			if configFile != "" {
				r := ValidationResult{Path: configFile, Kind: "config", Valid: true}
				if _, err := config.LoadFromFile(configFile); err != nil {
					r.Valid, r.Error = false, err.Error()
				}
				results = append(results, r)
			}
			for _, path := range args {
				r := ValidationResult{Path: path, Kind: "recording", Valid: true}
				s, err := recording.LoadFromFile(path)
				if err != nil {
					r.Valid, r.Error = false, err.Error()
				} else {
					r.Entries = len(s.Entries)
				}
				results = append(results, r)
			}

			failed := 0
			for _, r := range results {
				if !r.Valid {
					failed++
				}
			}

			if jsonOutput(cmd) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					switch {
					case !r.Valid:
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %s\n", r.Path, r.Error)
					case r.Kind == "recording":
						fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d entries)\n", r.Path, r.Entries)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", r.Path)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("validation failed for %d of %d files", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (YAML or JSON)")
	return cmd
}

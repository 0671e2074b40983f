package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/plent/internal/config"
	"github.com/roach88/plent/internal/registry"
)

// ValidationResult summarizes a valid configuration.
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Repos  []RepoSummary `json:"repos"`
	Errors []string      `json:"errors,omitempty"`
}

// RepoSummary counts one repository's routing entries.
type RepoSummary struct {
	Name     string `json:"name"`
	Channels int    `json:"channels"`
	Forums   int    `json:"forums"`
	Audit    bool   `json:"audit"`
}

// WriteText implements textWriter.
func (v ValidationResult) WriteText(w io.Writer) error {
	if !v.Valid {
		for _, e := range v.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
		return nil
	}
	fmt.Fprintf(w, "✓ configuration valid (%d repositories)\n", len(v.Repos))
	for _, r := range v.Repos {
		fmt.Fprintf(w, "  %s: %d channels, %d forums, audit=%t\n", r.Name, r.Channels, r.Forums, r.Audit)
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without connecting",
		Long: `Load the configuration file, apply its schema and cross-field checks, and
build the routing table. Nothing is cloned, opened or contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(opts.Config)
	if err == nil {
		_, err = cfg.Registry(registry.DefaultStrategies())
	}
	if err != nil {
		res := ValidationResult{Valid: false, Errors: []string{err.Error()}}
		if f.Format == "json" {
			if werr := f.Error(ErrCodeConfig, "configuration invalid", res); werr != nil {
				return werr
			}
		} else if werr := f.Success(res); werr != nil {
			return werr
		}
		return WrapExitError(ExitFailure, "configuration invalid", err)
	}

	res := ValidationResult{Valid: true}
	for _, r := range cfg.Repos {
		res.Repos = append(res.Repos, RepoSummary{
			Name:     r.Name,
			Channels: len(r.Channels),
			Forums:   len(r.Forums),
			Audit:    r.Audit,
		})
	}
	f.VerboseLog("database: %s, repos dir: %s", cfg.Database, cfg.ReposDir)
	return f.Success(res)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"finish-engine/finishes"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const version = "1.2.0"

const (
	defaultDB       = "data/finishes.sqlite"
	defaultInputDir = "data/inputs"
	defaultReport   = "data/outputs/ingest_report.json"
)

var (
	flagConfig string
	flagDB     string
	flagDebug  bool
)

func main() {
	log.SetFlags(log.LstdFlags)
	if err := rootCommand().Execute(); err != nil {
		log.Fatalf("finish-engine: %v", err)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "finish-engine",
		Short:         "Deterministic ETL and lookup tool for surface-finish process data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file path")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logs")

	root.AddCommand(
		ingestCommand(),
		validateCommand(),
		showCommand(),
		listCommand(),
		chemicalsCommand(),
		specsCommand(),
		versionCommand(),
	)
	return root
}

// settings merges the optional YAML config with flag overrides and defaults.
type settings struct {
	DB       string
	InputDir string
	Report   string
	Debug    bool
}

func resolveSettings(cmd *cobra.Command) (*settings, error) {
	s := &settings{DB: defaultDB, InputDir: defaultInputDir, Report: defaultReport}

	if flagConfig != "" {
		cfg, err := finishes.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		if cfg.DB != "" {
			s.DB = cfg.DB
		}
		if cfg.InputDir != "" {
			s.InputDir = cfg.InputDir
		}
		if cfg.Report != "" {
			s.Report = cfg.Report
		}
		s.Debug = cfg.Debug
	}

	if flagDB != "" {
		s.DB = flagDB
	}
	if cmd.Flags().Changed("debug") {
		s.Debug = flagDebug
	}
	if f := cmd.Flags().Lookup("input-dir"); f != nil && f.Changed {
		s.InputDir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("report"); f != nil && f.Changed {
		s.Report = f.Value.String()
	}
	return s, nil
}

func (s *settings) debugf(format string, args ...any) {
	if s.Debug {
		log.Printf(format, args...)
	}
}

func openExisting(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s (run 'finish-engine ingest' first)", path)
	}
	return finishes.OpenQueryDB(path)
}

func ingestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the nine source CSV files into the store and validate",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			s.debugf("ingest: input=%q db=%q report=%q", s.InputDir, s.DB, s.Report)

			if dir := filepath.Dir(s.DB); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			db, err := finishes.OpenDB(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			report, ingestErr := finishes.IngestAll(s.InputDir, db)
			if err := writeJSONFile(s.Report, report); err != nil {
				return err
			}
			printIngestReport(report, s.Report)
			if ingestErr != nil {
				return ingestErr
			}
			if report.Status == finishes.StatusFailed {
				return errors.New("ingestion finished with validation errors")
			}
			return nil
		},
	}
	cmd.Flags().String("input-dir", defaultInputDir, "Directory containing the source CSV files")
	cmd.Flags().String("report", defaultReport, "Path for the JSON ingestion report")
	return cmd
}

func printIngestReport(report *finishes.IngestReport, reportPath string) {
	fmt.Printf("status: %s\n", report.Status)
	for _, f := range report.Files {
		switch f.Status {
		case finishes.FileLoaded:
			fmt.Printf("  %-26s %5d rows  sha256=%s...\n", f.File, f.Rows, f.SHA256[:16])
		case finishes.FileFailed:
			fmt.Printf("  %-26s FAILED: %s\n", f.File, f.Error)
		default:
			fmt.Printf("  %-26s skipped\n", f.File)
		}
	}
	if v := report.Validation; v != nil {
		fmt.Printf("validation: %s\n", v.Summary)
		printIssues(v)
	}
	fmt.Printf("report written to %s\n", reportPath)
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run integrity, completeness and format checks on the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openExisting(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			report, err := finishes.Validate(db)
			if err != nil {
				return err
			}
			fmt.Println(report.Summary)
			printIssues(report)
			if report.Status == finishes.ValidationErrors {
				return errors.New("validation failed")
			}
			return nil
		},
	}
}

func printIssues(report *finishes.ValidationReport) {
	for _, e := range report.Errors {
		fmt.Printf("  ERROR   [%s.%s] %s: %s\n", e.Table, e.Column, e.Issue, e.Details)
	}
	for _, w := range report.Warnings {
		fmt.Printf("  WARNING [%s.%s] %s: %s\n", w.Table, w.Column, w.Issue, w.Details)
	}
}

func showCommand() *cobra.Command {
	var output string
	var compact bool
	cmd := &cobra.Command{
		Use:   "show CODE",
		Short: "Print the full step/material/chemical tree for a finish code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openExisting(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			tree, err := finishes.GetFinishCodeTree(db, args[0])
			var notFound *finishes.NotFoundError
			if errors.As(err, &notFound) {
				// A structured miss, not a crash: emit it as JSON too.
				if jsonErr := emitJSON(notFound, output, compact); jsonErr != nil {
					return jsonErr
				}
				return notFound
			}
			if err != nil {
				return err
			}
			return emitJSON(tree, output, compact)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Write JSON to a file instead of stdout")
	cmd.Flags().BoolVar(&compact, "compact", false, "Compact JSON output")
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every finish code in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openExisting(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			codes, err := finishes.ListFinishCodes(db)
			if err != nil {
				return err
			}
			if len(codes) == 0 {
				fmt.Println("no finish codes loaded (run 'finish-engine ingest')")
				return nil
			}
			fmt.Printf("%-10s %-4s %-24s %-24s %s\n", "CODE", "SEQ", "SUBSTRATE", "FINISH", "DESCRIPTION")
			for _, c := range codes {
				fmt.Printf("%-10s %-4d %-24.24s %-24.24s %s\n", c.Code, c.SeqID, c.Substrate, c.FinishApplied, c.Description)
			}
			return nil
		},
	}
}

func chemicalsCommand() *cobra.Command {
	var minLevel int
	cmd := &cobra.Command{
		Use:   "chemicals",
		Short: "List chemicals at or above a hazard level, most hazardous first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openExisting(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			chemicals, err := finishes.ChemicalsByHazardLevel(db, minLevel)
			if err != nil {
				return err
			}
			for _, c := range chemicals {
				level := "-"
				if c.DefaultHazardLevel != nil {
					level = fmt.Sprintf("%d", *c.DefaultHazardLevel)
				}
				signal := ""
				if c.HazardFlags != nil && c.HazardFlags.SignalWord != "" {
					signal = "  " + c.HazardFlags.SignalWord
				}
				fmt.Printf("%-12s level=%s  %s%s\n", c.CAS, level, c.Name, signal)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minLevel, "min-level", 1, "Minimum hazard level (1-5)")
	return cmd
}

func specsCommand() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "specs [CODE]",
		Short: "Show specification usage, overall or for one finish code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			db, err := openExisting(s.DB)
			if err != nil {
				return err
			}
			defer finishes.CloseDB(db)

			if len(args) == 1 {
				specs, err := finishes.GetFinishCodeSpecs(db, args[0])
				var notFound *finishes.NotFoundError
				if errors.As(err, &notFound) {
					if jsonErr := emitJSON(notFound, "", compact); jsonErr != nil {
						return jsonErr
					}
					return notFound
				}
				if err != nil {
					return err
				}
				return emitJSON(specs, "", compact)
			}

			usage, err := finishes.AllSpecifications(db)
			if err != nil {
				return err
			}
			return emitJSON(usage, "", compact)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "Compact JSON output")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("finish-engine %s\n", version)
		},
	}
}

func emitJSON(v any, output string, compact bool) error {
	var b []byte
	var err error
	if compact {
		b, err = json.Marshal(v)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	if output == "" {
		fmt.Println(string(b))
		return nil
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(output, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("output written to %s\n", output)
	return nil
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

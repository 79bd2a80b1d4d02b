package finishes

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// File statuses in an IngestReport.
const (
	FileLoaded  = "loaded"
	FileFailed  = "failed"
	FileSkipped = "skipped"
)

// Ingestion statuses.
const (
	StatusSuccess      = "success"
	StatusWithWarnings = "success_with_warnings"
	StatusFailed       = "failed"
)

// FileReport is the per-file outcome of an ingestion run.
type FileReport struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	SHA256 string `json:"sha256,omitempty"`
	Error  string `json:"error,omitempty"`
}

// IngestReport is the structured result of IngestAll, written as JSON by the
// CLI and consumable by callers directly.
type IngestReport struct {
	Status     string            `json:"status"`
	Files      []FileReport      `json:"files"`
	Validation *ValidationReport `json:"validation,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

type loadStep struct {
	file string
	load func(string, *gorm.DB) (int, error)
}

// loadSequence fixes the ingestion order so parents land before the child
// tables that reference them. sft_steps precedes finish_codes because a
// finish_codes row may embed a step-code array.
var loadSequence = []loadStep{
	{"substrates.csv", LoadSubstrates},
	{"finish_applied.csv", LoadFinishApplied},
	{"sft_steps.csv", LoadSFTSteps},
	{"finish_codes.csv", LoadFinishCodes},
	{"finish_code_steps.csv", LoadFinishCodeSteps},
	{"materials_map.csv", LoadMaterials},
	{"chemicals.csv", LoadChemicals},
	{"sft_material_links.csv", LoadSFTMaterialLinks},
	{"material_chemicals.csv", LoadMaterialChemicals},
}

// SourceFiles lists the nine expected CSV filenames in load order.
func SourceFiles() []string {
	out := make([]string, 0, len(loadSequence))
	for _, s := range loadSequence {
		out = append(out, s.file)
	}
	return out
}

// IngestAll loads every source file in dependency order and records lineage
// per file. The first failure aborts the run: the failing file is reported
// with its error, the rest as skipped, and the error is returned. A stopped
// pipeline beats silently partial data.
//
// When every file loads, the validators run against the populated store and
// their report is attached; validation errors mark the run failed without
// unloading anything, so flagged rows stay inspectable.
func IngestAll(inputDir string, db *gorm.DB) (*IngestReport, error) {
	report := &IngestReport{Status: StatusSuccess, StartedAt: time.Now().UTC()}

	if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
		report.Status = StatusFailed
		report.FinishedAt = time.Now().UTC()
		return report, fmt.Errorf("input directory not found: %s", inputDir)
	}

	for i, step := range loadSequence {
		csvPath := filepath.Join(inputDir, step.file)

		fail := func(cause error) (*IngestReport, error) {
			report.Files = append(report.Files, FileReport{File: step.file, Status: FileFailed, Error: cause.Error()})
			for _, rest := range loadSequence[i+1:] {
				report.Files = append(report.Files, FileReport{File: rest.file, Status: FileSkipped})
			}
			report.Status = StatusFailed
			report.FinishedAt = time.Now().UTC()
			return report, fmt.Errorf("ingest %s: %w", step.file, cause)
		}

		if _, err := os.Stat(csvPath); err != nil {
			return fail(fmt.Errorf("file not found: %s", csvPath))
		}
		digest, err := ComputeSHA256(csvPath)
		if err != nil {
			return fail(err)
		}
		rows, err := step.load(csvPath, db)
		if err != nil {
			return fail(err)
		}
		if err := recordIngestion(db, step.file, digest, rows); err != nil {
			return fail(err)
		}
		report.Files = append(report.Files, FileReport{File: step.file, Status: FileLoaded, Rows: rows, SHA256: digest})
	}

	validation, err := Validate(db)
	if err != nil {
		report.Status = StatusFailed
		report.FinishedAt = time.Now().UTC()
		return report, fmt.Errorf("post-load validation: %w", err)
	}
	report.Validation = validation
	switch validation.Status {
	case ValidationErrors:
		report.Status = StatusFailed
	case ValidationWarnings:
		report.Status = StatusWithWarnings
	}
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

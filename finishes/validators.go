package finishes

import (
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"
)

// Validation statuses.
const (
	ValidationPass     = "pass"
	ValidationWarnings = "warnings"
	ValidationErrors   = "errors"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one validation finding with enough context to locate and fix the
// offending source row. Validators report; they never repair.
type Issue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Table    string `json:"table"`
	Column   string `json:"column"`
	Key      string `json:"key,omitempty"`
	Issue    string `json:"issue"`
	Details  string `json:"details"`
}

// ValidationReport is the result of a full validation pass.
type ValidationReport struct {
	Status       string  `json:"status"`
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
	Errors       []Issue `json:"errors"`
	Warnings     []Issue `json:"warnings"`
	Summary      string  `json:"summary"`
}

// CAS registry number: NNNNN-NN-N through NNNNNNN-NN-N.
var casPattern = regexp.MustCompile(`^\d{4,7}-\d{2}-\d$`)

// Validate runs every check against the populated store and assembles the
// report. Referential, completeness and format violations are errors;
// composition sums over 100% and step-order gaps are warnings.
func Validate(db *gorm.DB) (*ValidationReport, error) {
	var issues []Issue

	for _, check := range []func(*gorm.DB) ([]Issue, error){
		checkReferentialIntegrity,
		checkCompleteness,
		checkChemicalFormats,
		checkCompositionRanges,
		checkFinishCodeComposition,
		checkStepOrderSequences,
	} {
		found, err := check(db)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}

	return buildReport(issues), nil
}

func buildReport(issues []Issue) *ValidationReport {
	report := &ValidationReport{Status: ValidationPass, Errors: []Issue{}, Warnings: []Issue{}}
	for _, issue := range issues {
		if issue.Severity == SeverityWarning {
			report.Warnings = append(report.Warnings, issue)
		} else {
			report.Errors = append(report.Errors, issue)
		}
	}
	report.ErrorCount = len(report.Errors)
	report.WarningCount = len(report.Warnings)
	switch {
	case report.ErrorCount > 0:
		report.Status = ValidationErrors
		report.Summary = fmt.Sprintf("validation FAILED: %d error(s), %d warning(s)", report.ErrorCount, report.WarningCount)
	case report.WarningCount > 0:
		report.Status = ValidationWarnings
		report.Summary = fmt.Sprintf("validation passed with %d warning(s)", report.WarningCount)
	default:
		report.Summary = "validation passed: no errors or warnings"
	}
	return report
}

type fkCheck struct {
	childTable  string
	childColumn string
	parentTable string
	parentKey   string
}

var fkChecks = []fkCheck{
	{"finish_codes", "substrate_id", "substrates", "id"},
	{"finish_codes", "finish_applied_id", "finish_applied", "id"},
	{"finish_code_steps", "finish_code_id", "finish_codes", "id"},
	{"finish_code_steps", "sft_step_id", "sft_steps", "id"},
	{"sft_material_links", "sft_step_id", "sft_steps", "id"},
	{"sft_material_links", "material_id", "materials", "id"},
	{"material_chemicals", "material_id", "materials", "id"},
	{"material_chemicals", "chemical_id", "chemicals", "id"},
}

// checkReferentialIntegrity scans every child/parent pair for dangling
// references. Loaders enforce these eagerly, so findings here point at rows
// written outside the pipeline or at a store loaded out of order.
func checkReferentialIntegrity(db *gorm.DB) ([]Issue, error) {
	var issues []Issue
	for _, fk := range fkChecks {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s)",
			fk.childTable, fk.childColumn, fk.childColumn, fk.parentKey, fk.parentTable,
		)
		var orphans int64
		if err := db.Raw(query).Scan(&orphans).Error; err != nil {
			return nil, fmt.Errorf("referential check %s.%s: %w", fk.childTable, fk.childColumn, err)
		}
		if orphans > 0 {
			issues = append(issues, Issue{
				Type:     "referential_integrity",
				Severity: SeverityError,
				Table:    fk.childTable,
				Column:   fk.childColumn,
				Issue:    "orphan_fk",
				Details:  fmt.Sprintf("%d rows reference non-existent %s.%s values", orphans, fk.parentTable, fk.parentKey),
			})
		}
	}
	return issues, nil
}

var requiredFields = []struct{ table, column string }{
	{"substrates", "code"},
	{"substrates", "description"},
	{"finish_applied", "code"},
	{"finish_applied", "description"},
	{"finish_codes", "code"},
	{"finish_codes", "substrate_id"},
	{"finish_codes", "finish_applied_id"},
	{"finish_codes", "seq_id"},
	{"finish_codes", "description"},
	{"sft_steps", "sft_code"},
	{"sft_steps", "description"},
	{"finish_code_steps", "finish_code_id"},
	{"finish_code_steps", "sft_step_id"},
	{"finish_code_steps", "step_order"},
	{"materials", "base_spec"},
	{"sft_material_links", "sft_step_id"},
	{"sft_material_links", "material_id"},
	{"chemicals", "name"},
	{"chemicals", "cas"},
	{"material_chemicals", "material_id"},
	{"material_chemicals", "chemical_id"},
	{"ingestion_records", "source_name"},
	{"ingestion_records", "sha256"},
	{"ingestion_records", "rows_loaded"},
}

// checkCompleteness flags NULL or blank values in required columns.
func checkCompleteness(db *gorm.DB) ([]Issue, error) {
	var issues []Issue
	for _, rf := range requiredFields {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s IS NULL OR TRIM(CAST(%s AS TEXT)) = ''",
			rf.table, rf.column, rf.column,
		)
		var blanks int64
		if err := db.Raw(query).Scan(&blanks).Error; err != nil {
			return nil, fmt.Errorf("completeness check %s.%s: %w", rf.table, rf.column, err)
		}
		if blanks > 0 {
			issues = append(issues, Issue{
				Type:     "completeness",
				Severity: SeverityError,
				Table:    rf.table,
				Column:   rf.column,
				Issue:    "null_value",
				Details:  fmt.Sprintf("%d rows have empty %s", blanks, rf.column),
			})
		}
	}
	return issues, nil
}

// checkChemicalFormats verifies CAS patterns, hazard payload shape and the
// 1..5 hazard level range per chemical row.
func checkChemicalFormats(db *gorm.DB) ([]Issue, error) {
	var chemicals []Chemical
	if err := db.Order("id").Find(&chemicals).Error; err != nil {
		return nil, err
	}

	var issues []Issue
	for _, c := range chemicals {
		if c.CAS != "" && !casPattern.MatchString(c.CAS) {
			issues = append(issues, Issue{
				Type:     "format",
				Severity: SeverityError,
				Table:    "chemicals",
				Column:   "cas",
				Key:      c.Name,
				Issue:    "invalid_cas_format",
				Details:  fmt.Sprintf("chemical %q has invalid CAS %q (expected NNNNN-NN-N)", c.Name, c.CAS),
			})
		}
		if c.HazardFlags != "" {
			if _, err := ParseHazardFlags(c.HazardFlags); err != nil {
				issues = append(issues, Issue{
					Type:     "format",
					Severity: SeverityError,
					Table:    "chemicals",
					Column:   "hazard_flags",
					Key:      c.Name,
					Issue:    "invalid_hazard_flags",
					Details:  fmt.Sprintf("chemical %q has malformed hazard_flags: %v", c.Name, err),
				})
			}
		}
		if c.DefaultHazardLevel != nil && (*c.DefaultHazardLevel < 1 || *c.DefaultHazardLevel > 5) {
			issues = append(issues, Issue{
				Type:     "format",
				Severity: SeverityError,
				Table:    "chemicals",
				Column:   "default_hazard_level",
				Key:      c.Name,
				Issue:    "out_of_range",
				Details:  fmt.Sprintf("chemical %q has hazard level %d, must be 1-5", c.Name, *c.DefaultHazardLevel),
			})
		}
	}
	return issues, nil
}

// checkCompositionRanges verifies weight-percent ranges per composition row
// and warns when a material's maximum percentages sum above 100.
func checkCompositionRanges(db *gorm.DB) ([]Issue, error) {
	type compositionRow struct {
		BaseSpec string
		Variant  string
		ChemName string
		PctLow   *float64
		PctHigh  *float64
	}
	var rows []compositionRow
	err := db.Raw(`
		SELECT m.base_spec AS base_spec, m.variant AS variant, c.name AS chem_name,
		       mc.pct_wt_low AS pct_low, mc.pct_wt_high AS pct_high
		FROM material_chemicals mc
		JOIN materials m ON mc.material_id = m.id
		JOIN chemicals c ON mc.chemical_id = c.id
		ORDER BY m.base_spec, m.variant, c.name`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, r := range rows {
		key := materialKey(r.BaseSpec, r.Variant)
		if r.PctLow != nil && r.PctHigh != nil && *r.PctLow > *r.PctHigh {
			issues = append(issues, Issue{
				Type:     "format",
				Severity: SeverityError,
				Table:    "material_chemicals",
				Column:   "pct_wt_low, pct_wt_high",
				Key:      key,
				Issue:    "invalid_range",
				Details:  fmt.Sprintf("material %q chemical %q: pct_wt_low (%g) > pct_wt_high (%g)", key, r.ChemName, *r.PctLow, *r.PctHigh),
			})
		}
		if r.PctLow != nil && (*r.PctLow < 0 || *r.PctLow > 100) {
			issues = append(issues, outOfRangePct(key, r.ChemName, "pct_wt_low", *r.PctLow))
		}
		if r.PctHigh != nil && (*r.PctHigh < 0 || *r.PctHigh > 100) {
			issues = append(issues, outOfRangePct(key, r.ChemName, "pct_wt_high", *r.PctHigh))
		}
	}

	type sumRow struct {
		BaseSpec string
		Variant  string
		TotalMax float64
	}
	var sums []sumRow
	err = db.Raw(`
		SELECT m.base_spec AS base_spec, m.variant AS variant, SUM(mc.pct_wt_high) AS total_max
		FROM materials m
		JOIN material_chemicals mc ON m.id = mc.material_id
		WHERE mc.pct_wt_high IS NOT NULL
		GROUP BY m.id, m.base_spec, m.variant
		HAVING total_max > 100
		ORDER BY m.base_spec, m.variant`).Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	// Over-100 sums stay a soft limit: ranges legitimately overlap, so this
	// warns rather than blocks.
	for _, s := range sums {
		key := materialKey(s.BaseSpec, s.Variant)
		issues = append(issues, Issue{
			Type:     "format",
			Severity: SeverityWarning,
			Table:    "material_chemicals",
			Column:   "pct_wt_high",
			Key:      key,
			Issue:    "exceeds_100_percent",
			Details:  fmt.Sprintf("material %q has total max weight %.1f%% (>100%%)", key, s.TotalMax),
		})
	}
	return issues, nil
}

// checkFinishCodeComposition verifies the cross-field rule that a finish
// code string equals substrate code + finish-applied code + sequence number.
// A 2-digit zero-padded sequence is also accepted (BP07 and BP7 both match
// seq 7).
func checkFinishCodeComposition(db *gorm.DB) ([]Issue, error) {
	type fcRow struct {
		Code    string
		SubCode string
		FaCode  string
		SeqID   int
	}
	var rows []fcRow
	err := db.Raw(`
		SELECT fc.code AS code, s.code AS sub_code, fa.code AS fa_code, fc.seq_id AS seq_id
		FROM finish_codes fc
		JOIN substrates s ON fc.substrate_id = s.id
		JOIN finish_applied fa ON fc.finish_applied_id = fa.id
		ORDER BY fc.code`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, r := range rows {
		plain := r.SubCode + r.FaCode + strconv.Itoa(r.SeqID)
		padded := fmt.Sprintf("%s%s%02d", r.SubCode, r.FaCode, r.SeqID)
		if r.Code == plain || r.Code == padded {
			continue
		}
		issues = append(issues, Issue{
			Type:     "format",
			Severity: SeverityError,
			Table:    "finish_codes",
			Column:   "code",
			Key:      r.Code,
			Issue:    "code_mismatch",
			Details:  fmt.Sprintf("finish code %q does not match composition (expected %q)", r.Code, plain),
		})
	}
	return issues, nil
}

// checkStepOrderSequences verifies per-finish-code step orders: duplicates
// are errors; a sequence that is not a contiguous 1..N run is flagged softly,
// since gapped orders still sort correctly.
func checkStepOrderSequences(db *gorm.DB) ([]Issue, error) {
	var steps []FinishCodeStep
	if err := db.Order("finish_code_id, step_order").Find(&steps).Error; err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}

	codeByID := make(map[uint]string)
	var codes []FinishCode
	if err := db.Select("id, code").Find(&codes).Error; err != nil {
		return nil, err
	}
	for _, fc := range codes {
		codeByID[fc.ID] = fc.Code
	}

	ordersByFC := make(map[uint][]int)
	var fcIDs []uint
	for _, s := range steps {
		if _, seen := ordersByFC[s.FinishCodeID]; !seen {
			fcIDs = append(fcIDs, s.FinishCodeID)
		}
		ordersByFC[s.FinishCodeID] = append(ordersByFC[s.FinishCodeID], s.StepOrder)
	}

	var issues []Issue
	for _, fcID := range fcIDs {
		orders := ordersByFC[fcID]
		key := codeByID[fcID]
		if key == "" {
			key = fmt.Sprintf("finish_code_id=%d", fcID)
		}

		seen := make(map[int]bool, len(orders))
		duplicate := false
		for _, o := range orders {
			if seen[o] {
				duplicate = true
			}
			seen[o] = true
		}
		if duplicate {
			issues = append(issues, Issue{
				Type:     "step_order",
				Severity: SeverityError,
				Table:    "finish_code_steps",
				Column:   "step_order",
				Key:      key,
				Issue:    "duplicate_order",
				Details:  fmt.Sprintf("finish code %q has duplicate step_order values %v", key, orders),
			})
			continue
		}

		contiguous := true
		for i, o := range orders {
			if o != i+1 {
				contiguous = false
				break
			}
		}
		if !contiguous {
			issues = append(issues, Issue{
				Type:     "step_order",
				Severity: SeverityWarning,
				Table:    "finish_code_steps",
				Column:   "step_order",
				Key:      key,
				Issue:    "non_contiguous_order",
				Details:  fmt.Sprintf("finish code %q step orders %v are not a contiguous 1..%d run", key, orders, len(orders)),
			})
		}
	}
	return issues, nil
}

func materialKey(baseSpec, variant string) string {
	if variant == "" {
		return baseSpec
	}
	return baseSpec + " " + variant
}

func outOfRangePct(key, chemName, column string, v float64) Issue {
	return Issue{
		Type:     "format",
		Severity: SeverityError,
		Table:    "material_chemicals",
		Column:   column,
		Key:      key,
		Issue:    "out_of_range",
		Details:  fmt.Sprintf("material %q chemical %q: %s %g outside [0,100]", key, chemName, column, v),
	}
}

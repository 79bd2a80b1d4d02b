package finishes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findIssue(issues []Issue, issue string) *Issue {
	for i := range issues {
		if issues[i].Issue == issue {
			return &issues[i]
		}
	}
	return nil
}

func TestValidateCleanStore(t *testing.T) {
	db := ingestFixture(t)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Equal(t, ValidationPass, report.Status)
	assert.Zero(t, report.ErrorCount)
	assert.Zero(t, report.WarningCount)
	assert.Equal(t, "validation passed: no errors or warnings", report.Summary)
}

func TestValidateOrphanReference(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Create(&FinishCodeStep{FinishCodeID: 9999, SFTStepID: 9999, StepOrder: 1}).Error)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Equal(t, ValidationErrors, report.Status)

	orphan := findIssue(report.Errors, "orphan_fk")
	require.NotNil(t, orphan)
	assert.Equal(t, "referential_integrity", orphan.Type)
	assert.Equal(t, "finish_code_steps", orphan.Table)
}

func TestValidateBlankRequiredField(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&Substrate{}).Where("code = ?", "T").Update("description", "  ").Error)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Equal(t, ValidationErrors, report.Status)

	blank := findIssue(report.Errors, "null_value")
	require.NotNil(t, blank)
	assert.Equal(t, "substrates", blank.Table)
	assert.Equal(t, "description", blank.Column)
}

func TestValidateInvalidCAS(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&Chemical{}).Where("name = ?", "Xylene").Update("cas", "12-34-5").Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "invalid_cas_format")
	require.NotNil(t, bad)
	assert.Equal(t, "chemicals", bad.Table)
	assert.Equal(t, "Xylene", bad.Key)
	assert.Contains(t, bad.Details, "12-34-5")
}

func TestValidateMalformedHazardFlags(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&Chemical{}).Where("name = ?", "Xylene").
		Update("hazard_flags", `{"unknown_key": true}`).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "invalid_hazard_flags")
	require.NotNil(t, bad)
	assert.Equal(t, "hazard_flags", bad.Column)
	assert.Equal(t, "Xylene", bad.Key)
}

func TestValidateHazardLevelRange(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&Chemical{}).Where("name = ?", "Xylene").
		Update("default_hazard_level", 6).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "out_of_range")
	require.NotNil(t, bad)
	assert.Equal(t, "default_hazard_level", bad.Column)
	assert.Contains(t, bad.Details, "must be 1-5")
}

func TestValidateCompositionRange(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&MaterialChemical{}).Where("pct_wt_low = ?", 10.0).
		Updates(map[string]any{"pct_wt_low": 30.0, "pct_wt_high": 20.0}).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "invalid_range")
	require.NotNil(t, bad)
	assert.Equal(t, "material_chemicals", bad.Table)
	assert.Contains(t, bad.Key, "MIL-PRF-23377")
}

func TestValidatePctOutOfBounds(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&MaterialChemical{}).Where("pct_wt_low = ?", 1.0).
		Update("pct_wt_low", -3.0).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "out_of_range")
	require.NotNil(t, bad)
	assert.Equal(t, "pct_wt_low", bad.Column)
	assert.Contains(t, bad.Details, "outside [0,100]")
}

func TestValidateWeightSumWarning(t *testing.T) {
	db := ingestFixture(t)
	// Each range alone is valid; together the maxima exceed 100%.
	require.NoError(t, db.Model(&MaterialChemical{}).
		Where("pct_wt_high IS NOT NULL").Update("pct_wt_high", 60.0).Error)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Equal(t, ValidationWarnings, report.Status)
	assert.Zero(t, report.ErrorCount)

	warn := findIssue(report.Warnings, "exceeds_100_percent")
	require.NotNil(t, warn)
	assert.Equal(t, SeverityWarning, warn.Severity)
	assert.Contains(t, warn.Details, "180.0")
}

func TestValidateFinishCodeComposition(t *testing.T) {
	db := ingestFixture(t)
	require.NoError(t, db.Model(&FinishCode{}).Where("code = ?", "BP27").Update("seq_id", 28).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "code_mismatch")
	require.NotNil(t, bad)
	assert.Equal(t, "BP27", bad.Key)
	assert.Contains(t, bad.Details, `"BP28"`)
}

func TestValidateFinishCodeCompositionAcceptsPadding(t *testing.T) {
	// TA01 is T + A + seq 1 zero-padded; the fixture passes as loaded.
	db := ingestFixture(t)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Nil(t, findIssue(report.Errors, "code_mismatch"))
}

func TestValidateDuplicateStepOrder(t *testing.T) {
	db := ingestFixture(t)
	var fc FinishCode
	require.NoError(t, db.Where("code = ?", "BP27").First(&fc).Error)
	// The loader's unique index prevents duplicates; a store written by an
	// older schema may lack it, which is exactly what this check is for.
	var step SFTStep
	require.NoError(t, db.Where("sft_code = ?", "SFT0003").First(&step).Error)
	require.NoError(t, db.Exec("DROP INDEX uniq_fc_order").Error)
	require.NoError(t, db.Exec(
		"INSERT INTO finish_code_steps (finish_code_id, sft_step_id, step_order) VALUES (?, ?, ?)",
		fc.ID, step.ID, 2).Error)

	report, err := Validate(db)
	require.NoError(t, err)

	bad := findIssue(report.Errors, "duplicate_order")
	require.NotNil(t, bad)
	assert.Equal(t, "BP27", bad.Key)
}

func TestValidateStepOrderGapWarns(t *testing.T) {
	db := ingestFixture(t)
	var fc FinishCode
	require.NoError(t, db.Where("code = ?", "BP27").First(&fc).Error)
	require.NoError(t, db.Model(&FinishCodeStep{}).
		Where("finish_code_id = ? AND step_order = ?", fc.ID, 2).
		Update("step_order", 5).Error)

	report, err := Validate(db)
	require.NoError(t, err)
	assert.Equal(t, ValidationWarnings, report.Status)

	warn := findIssue(report.Warnings, "non_contiguous_order")
	require.NotNil(t, warn)
	assert.Equal(t, "BP27", warn.Key)
	assert.Contains(t, warn.Details, "contiguous")
}

func TestBuildReportSummaries(t *testing.T) {
	report := buildReport([]Issue{
		{Severity: SeverityError, Issue: "a"},
		{Severity: SeverityWarning, Issue: "b"},
	})
	assert.Equal(t, ValidationErrors, report.Status)
	assert.Equal(t, "validation FAILED: 1 error(s), 1 warning(s)", report.Summary)

	report = buildReport([]Issue{{Severity: SeverityWarning, Issue: "b"}})
	assert.Equal(t, ValidationWarnings, report.Status)
	assert.Equal(t, "validation passed with 1 warning(s)", report.Summary)

	report = buildReport(nil)
	assert.Equal(t, ValidationPass, report.Status)
}

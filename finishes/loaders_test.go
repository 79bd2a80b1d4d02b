package finishes

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// loadThrough runs the fixture loaders in order up to and including the named
// file, for tests that need a partially populated store.
func loadThrough(t *testing.T, db *gorm.DB, dir, upTo string) {
	t.Helper()
	for _, step := range loadSequence {
		_, err := step.load(filepath.Join(dir, step.file), db)
		require.NoError(t, err, step.file)
		if step.file == upTo {
			return
		}
	}
	t.Fatalf("unknown fixture file %q", upTo)
}

func TestLoadSubstratesUpsert(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	first := writeCSV(t, dir, "v1.csv", "code,description,source_doc\nB,Aluminum alloy,DOC-1\n")
	rows, err := LoadSubstrates(first, db)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	second := writeCSV(t, dir, "v2.csv", "code,description,source_doc\nB,Aluminum alloy 2024-T3,DOC-2\n")
	rows, err = LoadSubstrates(second, db)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	var count int64
	require.NoError(t, db.Model(&Substrate{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var sub Substrate
	require.NoError(t, db.Where("code = ?", "B").First(&sub).Error)
	assert.Equal(t, "Aluminum alloy 2024-T3", sub.Description)
	assert.Equal(t, "DOC-2", sub.SourceDoc)
}

func TestLoadSubstratesBlankCode(t *testing.T) {
	db := openTestDB(t)
	path := writeCSV(t, t.TempDir(), "substrates.csv", "code,description\n,blank code row\n")

	_, err := LoadSubstrates(path, db)
	assert.ErrorContains(t, err, `required field "code" is empty`)
}

func TestLoadFinishCodesResolvesParents(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, nil)
	loadThrough(t, db, dir, "finish_codes.csv")

	var fc FinishCode
	require.NoError(t, db.Where("code = ?", "BP27").First(&fc).Error)
	assert.Equal(t, 27, fc.SeqID)
	assert.Equal(t, "Epoxy primer over bare aluminum", fc.Description)

	var sub Substrate
	require.NoError(t, db.First(&sub, fc.SubstrateID).Error)
	assert.Equal(t, "B", sub.Code)
}

func TestLoadFinishCodesEmbeddedStepArray(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, nil)
	loadThrough(t, db, dir, "finish_codes.csv")

	var fc FinishCode
	require.NoError(t, db.Where("code = ?", "TA01").First(&fc).Error)

	var assignments []FinishCodeStep
	require.NoError(t, db.Where("finish_code_id = ?", fc.ID).Order("step_order").Find(&assignments).Error)
	require.Len(t, assignments, 2)
	assert.Equal(t, 1, assignments[0].StepOrder)
	assert.Equal(t, 2, assignments[1].StepOrder)

	var first SFTStep
	require.NoError(t, db.First(&first, assignments[0].SFTStepID).Error)
	assert.Equal(t, "SFT0001", first.SFTCode)
}

func TestLoadFinishCodesUnknownSubstrate(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, map[string]string{
		"finish_codes.csv": "finish_code,substrate_code,finish_applied_code,seq_id,description\nXP01,X,P,1,Unknown substrate\n",
	})
	loadThrough(t, db, dir, "sft_steps.csv")

	_, err := LoadFinishCodes(filepath.Join(dir, "finish_codes.csv"), db)
	assert.ErrorContains(t, err, `substrate code "X"`)
	assert.ErrorContains(t, err, `finish code "XP01"`)
}

func TestLoadFinishCodesNonNumericSeq(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, map[string]string{
		"finish_codes.csv": "finish_code,substrate_code,finish_applied_code,seq_id,description\nBP0A,B,P,0A,bad seq\n",
	})
	loadThrough(t, db, dir, "sft_steps.csv")

	_, err := LoadFinishCodes(filepath.Join(dir, "finish_codes.csv"), db)
	assert.ErrorContains(t, err, "not numeric")
}

func TestLoadFinishCodeStepsReorder(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, nil)
	loadThrough(t, db, dir, "finish_code_steps.csv")

	// Swap the two step positions between file versions; the unique
	// (finish_code_id, step_order) index must not trip mid-rewrite.
	swapped := writeCSV(t, dir, "finish_code_steps_v2.csv",
		"finish_code,sft_code,step_order\nBP27,SFT0002,1\nBP27,SFT0001,2\n")
	rows, err := LoadFinishCodeSteps(swapped, db)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	var fc FinishCode
	require.NoError(t, db.Where("code = ?", "BP27").First(&fc).Error)
	var assignments []FinishCodeStep
	require.NoError(t, db.Where("finish_code_id = ?", fc.ID).Order("step_order").Find(&assignments).Error)
	require.Len(t, assignments, 2)

	var first SFTStep
	require.NoError(t, db.First(&first, assignments[0].SFTStepID).Error)
	assert.Equal(t, "SFT0002", first.SFTCode)
}

func TestLoadFinishCodeStepsUnknownFinishCode(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, nil)
	loadThrough(t, db, dir, "finish_codes.csv")

	path := writeCSV(t, dir, "steps_bad.csv", "finish_code,sft_code,step_order\nZZ99,SFT0001,1\n")
	_, err := LoadFinishCodeSteps(path, db)
	assert.ErrorContains(t, err, `finish code "ZZ99" not found`)
}

func TestParseStepCodeArray(t *testing.T) {
	assert.Equal(t, []string{"SFT0001", "SFT0002"}, parseStepCodeArray(`["SFT0001", "SFT0002"]`))
	assert.Equal(t, []string{"SFT0001", "SFT0002"}, parseStepCodeArray(`[SFT0001, SFT0002]`))
	assert.Equal(t, []string{"SFT0001"}, parseStepCodeArray(`['SFT0001']`))
	assert.Empty(t, parseStepCodeArray(`[]`))
	assert.Empty(t, parseStepCodeArray(``))
}

func TestLoadChemicalsStoresMalformedHazardFlags(t *testing.T) {
	db := openTestDB(t)
	path := writeCSV(t, t.TempDir(), "chemicals.csv",
		"name,cas,hazard_flags,default_hazard_level\nXylene,1330-20-7,not json at all,3\n")

	rows, err := LoadChemicals(path, db)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	var chem Chemical
	require.NoError(t, db.Where("cas = ?", "1330-20-7").First(&chem).Error)
	assert.Equal(t, "not json at all", chem.HazardFlags)
	require.NotNil(t, chem.DefaultHazardLevel)
	assert.Equal(t, 3, *chem.DefaultHazardLevel)
}

func TestLoadChemicalsNonNumericLevel(t *testing.T) {
	db := openTestDB(t)
	path := writeCSV(t, t.TempDir(), "chemicals.csv",
		"name,cas,default_hazard_level\nXylene,1330-20-7,high\n")

	_, err := LoadChemicals(path, db)
	assert.ErrorContains(t, err, "not numeric")
}

func TestLoadMaterialChemicalsUnknownChemical(t *testing.T) {
	db := openTestDB(t)
	dir := writeFixtureDir(t, nil)
	loadThrough(t, db, dir, "chemicals.csv")

	path := writeCSV(t, dir, "mc_bad.csv",
		"base_spec,variant,cas,pct_wt_low,pct_wt_high\nMIL-PRF-23377,Type I,0000-00-0,1,2\n")
	_, err := LoadMaterialChemicals(path, db)
	assert.ErrorContains(t, err, `chemical with cas "0000-00-0" not found`)
}

func TestRecordIngestionUpserts(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, recordIngestion(db, "substrates.csv", helloWorldSHA, 10))
	require.NoError(t, recordIngestion(db, "substrates.csv", helloWorldSHA, 12))

	var records []IngestionRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].RowsLoaded)
	assert.Equal(t, helloWorldSHA, records[0].SHA256)
	assert.False(t, records[0].LoadedAt.IsZero())
}

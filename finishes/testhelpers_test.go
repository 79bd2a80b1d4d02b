package finishes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return db
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fixtureCSVs is a small but complete input set: finish code BP27 with two
// ordered steps, a primer material with three ranked chemicals, and TA01
// exercising zero-padded composition plus an embedded step array.
func fixtureCSVs() map[string]string {
	return map[string]string{
		"substrates.csv": `code,description,source_doc,program
B,Aluminum alloy,DOC-SUB-1,
T,Titanium alloy,DOC-SUB-1,
`,
		"finish_applied.csv": `code,description,source_doc,program,associated_specs
P,Epoxy primer,DOC-FIN-1,,MIL-PRF-23377
A,Anodize,DOC-FIN-1,,
`,
		"sft_steps.csv": `sft_code,parent_group,description,associated_specs,source_doc,last_review,notes
SFT0001,Cleaning,Alkaline clean and rinse,MIL-C-87936,DOC-SFT-1,2024-01,
SFT0002,Coating,Apply epoxy primer,"MIL-PRF-23377, MIL-PRF-85582",DOC-SFT-1,2024-03,mask faying surfaces
SFT0003,Anodize,Sulfuric acid anodize,MIL-A-8625,DOC-SFT-1,2023-11,
`,
		"finish_codes.csv": `finish_code,substrate_code,finish_applied_code,seq_id,description,notes,source_doc,program,associated_specs,sft_steps
BP27,B,P,27,Epoxy primer over bare aluminum,,DOC-FC-1,,MIL-STD-7179,
TA01,T,A,1,Anodized titanium,,DOC-FC-1,,,"[""SFT0001"", ""SFT0003""]"
`,
		"finish_code_steps.csv": `finish_code,sft_code,step_order
BP27,SFT0001,1
BP27,SFT0002,2
`,
		"materials_map.csv": `base_spec,variant,description,notes
MIL-PRF-23377,Type I,High-solids epoxy primer,
MIL-C-87936,,Alkaline cleaning compound,
`,
		"chemicals.csv": `name,cas,hazard_flags,default_hazard_level
Strontium chromate,7789-06-2,"{""hazard_codes"":[""H350""],""signal_word"":""Danger""}",5
Titanium dioxide,13463-67-7,,2
Xylene,1330-20-7,"{""hazard_codes"":[""H226""],""signal_word"":""Warning""}",3
`,
		"sft_material_links.csv": `sft_code,base_spec,variant,note
SFT0002,MIL-PRF-23377,Type I,primary coat
SFT0001,MIL-C-87936,,
`,
		"material_chemicals.csv": `base_spec,variant,cas,pct_wt_low,pct_wt_high,notes
MIL-PRF-23377,Type I,7789-06-2,10,20,
MIL-PRF-23377,Type I,13463-67-7,1,5,
MIL-PRF-23377,Type I,1330-20-7,5,10,
`,
	}
}

// writeFixtureDir materializes the fixture set, with per-file overrides, and
// returns the directory.
func writeFixtureDir(t *testing.T, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := fixtureCSVs()
	for name, content := range overrides {
		files[name] = content
	}
	for name, content := range files {
		writeCSV(t, dir, name, content)
	}
	return dir
}

// ingestFixture loads the full fixture set into a fresh store.
func ingestFixture(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t)
	report, err := IngestAll(writeFixtureDir(t, nil), db)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, report.Status)
	return db
}

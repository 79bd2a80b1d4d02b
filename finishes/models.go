package finishes

import "time"

// Substrate is a base material a finish is applied to.
type Substrate struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex:uniq_substrate_code_program;size:16"`
	Program     string `gorm:"uniqueIndex:uniq_substrate_code_program;size:64"`
	Description string `gorm:"type:text"`
	SourceDoc   string `gorm:"size:255"`
}

func (Substrate) TableName() string { return "substrates" }

// FinishApplied is a finish-type applied to a substrate (e.g. paint, plate).
type FinishApplied struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex:uniq_finish_applied_code_program;size:16"`
	Program         string `gorm:"uniqueIndex:uniq_finish_applied_code_program;size:64"`
	Description     string `gorm:"type:text"`
	SourceDoc       string `gorm:"size:255"`
	AssociatedSpecs string `gorm:"type:text"`
}

func (FinishApplied) TableName() string { return "finish_applied" }

// FinishCode is the composite substrate + finish + sequence identifier that
// owns an ordered list of process steps. Its code string must equal the
// concatenation of the substrate code, the finish-applied code and the
// sequence number (plain or 2-digit zero-padded).
type FinishCode struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex:uniq_finish_code_program;size:32"`
	Program         string `gorm:"uniqueIndex:uniq_finish_code_program;size:64"`
	SubstrateID     uint   `gorm:"index"`
	FinishAppliedID uint   `gorm:"index"`
	SeqID           int
	Description     string `gorm:"type:text"`
	Notes           string `gorm:"type:text"`
	SourceDoc       string `gorm:"size:255"`
	AssociatedSpecs string `gorm:"type:text"`
}

func (FinishCode) TableName() string { return "finish_codes" }

// SFTStep is a reusable named process step, referenced by many finish codes.
type SFTStep struct {
	ID              uint   `gorm:"primaryKey"`
	SFTCode         string `gorm:"uniqueIndex;size:32"`
	ParentGroup     string `gorm:"size:64"`
	Description     string `gorm:"type:text"`
	AssociatedSpecs string `gorm:"type:text"`
	SourceDoc       string `gorm:"size:255"`
	LastReview      string `gorm:"size:64"`
	Notes           string `gorm:"type:text"`
}

func (SFTStep) TableName() string { return "sft_steps" }

// FinishCodeStep assigns a step to a finish code at a 1-based position.
// A step cannot repeat within one finish code, and step orders are unique
// per finish code.
type FinishCodeStep struct {
	ID           uint `gorm:"primaryKey"`
	FinishCodeID uint `gorm:"uniqueIndex:uniq_fc_step;uniqueIndex:uniq_fc_order"`
	SFTStepID    uint `gorm:"uniqueIndex:uniq_fc_step"`
	StepOrder    int  `gorm:"uniqueIndex:uniq_fc_order"`
}

func (FinishCodeStep) TableName() string { return "finish_code_steps" }

// Material is a specification, optionally variant-qualified.
// Variant is stored as "" rather than NULL: SQLite treats NULLs as distinct
// in unique indexes, which would defeat the (base_spec, variant) upsert key.
type Material struct {
	ID          uint   `gorm:"primaryKey"`
	BaseSpec    string `gorm:"uniqueIndex:uniq_material_spec_variant;size:64"`
	Variant     string `gorm:"uniqueIndex:uniq_material_spec_variant;size:64"`
	Description string `gorm:"type:text"`
	Notes       string `gorm:"type:text"`
}

func (Material) TableName() string { return "materials" }

// SFTMaterialLink relates a step to a material it consumes.
type SFTMaterialLink struct {
	ID         uint   `gorm:"primaryKey"`
	SFTStepID  uint   `gorm:"uniqueIndex:uniq_sft_material"`
	MaterialID uint   `gorm:"uniqueIndex:uniq_sft_material"`
	Note       string `gorm:"type:text"`
}

func (SFTMaterialLink) TableName() string { return "sft_material_links" }

// Chemical is a substance keyed by its CAS registry number.
// HazardFlags holds the raw JSON payload; see ParseHazardFlags.
type Chemical struct {
	ID                 uint   `gorm:"primaryKey"`
	Name               string `gorm:"index;size:255"`
	CAS                string `gorm:"uniqueIndex;size:32"`
	HazardFlags        string `gorm:"type:text"`
	DefaultHazardLevel *int
}

func (Chemical) TableName() string { return "chemicals" }

// MaterialChemical gives a material's composition as a weight-percent range.
type MaterialChemical struct {
	ID         uint `gorm:"primaryKey"`
	MaterialID uint `gorm:"uniqueIndex:uniq_material_chemical"`
	ChemicalID uint `gorm:"uniqueIndex:uniq_material_chemical"`
	PctWtLow   *float64
	PctWtHigh  *float64
	Notes      string `gorm:"type:text"`
}

func (MaterialChemical) TableName() string { return "material_chemicals" }

// IngestionRecord is one lineage ledger row per source file: which file
// version (by digest) populated the store, when, and how many rows. Rows are
// upserted by filename on re-ingestion and never deleted.
type IngestionRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SourceName string `gorm:"uniqueIndex;size:255"`
	SHA256     string `gorm:"size:64"`
	RowsLoaded int
	LoadedAt   time.Time `gorm:"index"`
}

func (IngestionRecord) TableName() string { return "ingestion_records" }

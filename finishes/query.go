package finishes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// NotFoundError is the structured result for a lookup of an absent finish
// code. It is a normal, recoverable outcome, not a pipeline failure; the
// Available list gives the caller something to suggest.
type NotFoundError struct {
	Code      string   `json:"finish_code"`
	Available []string `json:"available_codes"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("finish code %q not found", e.Code)
}

// CodeDescription pairs a code with its description.
type CodeDescription struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ParsedComponents are the decomposed parts of a finish code.
type ParsedComponents struct {
	Substrate       CodeDescription `json:"substrate"`
	FinishApplied   CodeDescription `json:"finish_applied"`
	SeqID           int             `json:"seq_id"`
	Description     string          `json:"finish_description,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	SourceDoc       string          `json:"source_doc,omitempty"`
	Program         string          `json:"program,omitempty"`
	AssociatedSpecs string          `json:"associated_specs,omitempty"`
}

// ChemicalNode is one chemical within a material's composition. HazardFlags
// is nil when the stored payload does not parse; the raw text is then kept
// so the answer stays truthful about what the store holds.
type ChemicalNode struct {
	Name               string       `json:"name"`
	CAS                string       `json:"cas"`
	PctWtLow           *float64     `json:"pct_wt_low,omitempty"`
	PctWtHigh          *float64     `json:"pct_wt_high,omitempty"`
	HazardFlags        *HazardFlags `json:"hazard_flags,omitempty"`
	HazardFlagsRaw     string       `json:"hazard_flags_raw,omitempty"`
	DefaultHazardLevel *int         `json:"default_hazard_level,omitempty"`
	CompositionNotes   string       `json:"composition_notes,omitempty"`
}

// MaterialNode is one material used by a step, with its composition.
type MaterialNode struct {
	BaseSpec    string         `json:"base_spec"`
	Variant     string         `json:"variant,omitempty"`
	Description string         `json:"description,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	LinkNote    string         `json:"link_note,omitempty"`
	Chemicals   []ChemicalNode `json:"chemicals"`
}

// StepNode is one ordered process step of a finish code.
type StepNode struct {
	SFTCode         string         `json:"sft_code"`
	StepOrder       int            `json:"step_order"`
	ParentGroup     string         `json:"parent_group,omitempty"`
	Description     string         `json:"description"`
	AssociatedSpecs string         `json:"associated_specs,omitempty"`
	SourceDoc       string         `json:"source_doc,omitempty"`
	LastReview      string         `json:"last_review,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Materials       []MaterialNode `json:"materials"`
}

// Provenance ties a query answer back to the exact input file versions.
type Provenance struct {
	CSVHashes map[string]string `json:"csv_shas"`
	LoadedAt  time.Time         `json:"loaded_at"`
}

// FinishCodeTree is the full hierarchical answer for one finish code.
type FinishCodeTree struct {
	FinishCode         string           `json:"finish_code"`
	Parsed             ParsedComponents `json:"parsed"`
	DirectSpecs        []string         `json:"direct_specs,omitempty"`
	FinishAppliedSpecs []string         `json:"finish_applied_specs,omitempty"`
	Steps              []StepNode       `json:"steps"`
	Provenance         Provenance       `json:"provenance"`
}

// GetFinishCodeTree assembles the ordered step → material → chemical tree
// for an exact finish-code match, with lineage attached. Chemicals within a
// material surface most hazardous first: hazard level descending, then name.
// Read-only; the store is never mutated.
func GetFinishCodeTree(db *gorm.DB, code string) (*FinishCodeTree, error) {
	var fc FinishCode
	err := db.Where("code = ?", code).First(&fc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		available, listErr := availableCodes(db, 10)
		if listErr != nil {
			return nil, listErr
		}
		return nil, &NotFoundError{Code: code, Available: available}
	}
	if err != nil {
		return nil, err
	}

	var sub Substrate
	if err := db.First(&sub, fc.SubstrateID).Error; err != nil {
		return nil, fmt.Errorf("finish code %q: substrate: %w", code, err)
	}
	var fa FinishApplied
	if err := db.First(&fa, fc.FinishAppliedID).Error; err != nil {
		return nil, fmt.Errorf("finish code %q: finish applied: %w", code, err)
	}

	steps, err := stepNodes(db, fc.ID)
	if err != nil {
		return nil, fmt.Errorf("finish code %q: %w", code, err)
	}
	provenance, err := loadProvenance(db)
	if err != nil {
		return nil, err
	}

	return &FinishCodeTree{
		FinishCode: fc.Code,
		Parsed: ParsedComponents{
			Substrate:       CodeDescription{Code: sub.Code, Description: sub.Description},
			FinishApplied:   CodeDescription{Code: fa.Code, Description: fa.Description},
			SeqID:           fc.SeqID,
			Description:     fc.Description,
			Notes:           fc.Notes,
			SourceDoc:       fc.SourceDoc,
			Program:         fc.Program,
			AssociatedSpecs: fc.AssociatedSpecs,
		},
		DirectSpecs:        splitSpecs(fc.AssociatedSpecs),
		FinishAppliedSpecs: splitSpecs(fa.AssociatedSpecs),
		Steps:              steps,
		Provenance:         provenance,
	}, nil
}

func stepNodes(db *gorm.DB, finishCodeID uint) ([]StepNode, error) {
	var assignments []FinishCodeStep
	if err := db.Where("finish_code_id = ?", finishCodeID).Order("step_order").Find(&assignments).Error; err != nil {
		return nil, err
	}

	steps := make([]StepNode, 0, len(assignments))
	for _, a := range assignments {
		var step SFTStep
		if err := db.First(&step, a.SFTStepID).Error; err != nil {
			return nil, fmt.Errorf("sft step id %d: %w", a.SFTStepID, err)
		}
		materials, err := materialNodes(db, step.ID)
		if err != nil {
			return nil, fmt.Errorf("sft step %q: %w", step.SFTCode, err)
		}
		steps = append(steps, StepNode{
			SFTCode:         step.SFTCode,
			StepOrder:       a.StepOrder,
			ParentGroup:     step.ParentGroup,
			Description:     step.Description,
			AssociatedSpecs: step.AssociatedSpecs,
			SourceDoc:       step.SourceDoc,
			LastReview:      step.LastReview,
			Notes:           step.Notes,
			Materials:       materials,
		})
	}
	return steps, nil
}

func materialNodes(db *gorm.DB, sftStepID uint) ([]MaterialNode, error) {
	var links []SFTMaterialLink
	if err := db.Where("sft_step_id = ?", sftStepID).Find(&links).Error; err != nil {
		return nil, err
	}

	materials := make([]MaterialNode, 0, len(links))
	for _, link := range links {
		var mat Material
		if err := db.First(&mat, link.MaterialID).Error; err != nil {
			return nil, fmt.Errorf("material id %d: %w", link.MaterialID, err)
		}
		chemicals, err := chemicalNodes(db, mat.ID)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", mat.BaseSpec, err)
		}
		materials = append(materials, MaterialNode{
			BaseSpec:    mat.BaseSpec,
			Variant:     mat.Variant,
			Description: mat.Description,
			Notes:       mat.Notes,
			LinkNote:    link.Note,
			Chemicals:   chemicals,
		})
	}
	sort.Slice(materials, func(i, j int) bool {
		if materials[i].BaseSpec != materials[j].BaseSpec {
			return materials[i].BaseSpec < materials[j].BaseSpec
		}
		return materials[i].Variant < materials[j].Variant
	})
	return materials, nil
}

func chemicalNodes(db *gorm.DB, materialID uint) ([]ChemicalNode, error) {
	var compositions []MaterialChemical
	if err := db.Where("material_id = ?", materialID).Find(&compositions).Error; err != nil {
		return nil, err
	}

	chemicals := make([]ChemicalNode, 0, len(compositions))
	for _, mc := range compositions {
		var chem Chemical
		if err := db.First(&chem, mc.ChemicalID).Error; err != nil {
			return nil, fmt.Errorf("chemical id %d: %w", mc.ChemicalID, err)
		}
		node := ChemicalNode{
			Name:               chem.Name,
			CAS:                chem.CAS,
			PctWtLow:           mc.PctWtLow,
			PctWtHigh:          mc.PctWtHigh,
			DefaultHazardLevel: chem.DefaultHazardLevel,
			CompositionNotes:   mc.Notes,
		}
		if chem.HazardFlags != "" {
			if flags, err := ParseHazardFlags(chem.HazardFlags); err == nil {
				node.HazardFlags = flags
			} else {
				node.HazardFlagsRaw = chem.HazardFlags
			}
		}
		chemicals = append(chemicals, node)
	}

	// Presentation order: most hazardous first. Unranked chemicals sort last.
	sort.Slice(chemicals, func(i, j int) bool {
		li, lj := hazardRank(chemicals[i].DefaultHazardLevel), hazardRank(chemicals[j].DefaultHazardLevel)
		if li != lj {
			return li > lj
		}
		return chemicals[i].Name < chemicals[j].Name
	})
	return chemicals, nil
}

func hazardRank(level *int) int {
	if level == nil {
		return 0
	}
	return *level
}

func loadProvenance(db *gorm.DB) (Provenance, error) {
	var records []IngestionRecord
	if err := db.Find(&records).Error; err != nil {
		return Provenance{}, err
	}
	p := Provenance{CSVHashes: make(map[string]string, len(records))}
	for _, rec := range records {
		p.CSVHashes[rec.SourceName] = rec.SHA256
		if rec.LoadedAt.After(p.LoadedAt) {
			p.LoadedAt = rec.LoadedAt
		}
	}
	return p, nil
}

func availableCodes(db *gorm.DB, limit int) ([]string, error) {
	var codes []string
	err := db.Model(&FinishCode{}).Order("code").Limit(limit).Pluck("code", &codes).Error
	return codes, err
}

func splitSpecs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FinishCodeSummary is one row of the code listing.
type FinishCodeSummary struct {
	Code          string `json:"code"`
	Description   string `json:"description"`
	Substrate     string `json:"substrate"`
	FinishApplied string `json:"finish_applied"`
	SeqID         int    `json:"seq_id"`
	SourceDoc     string `json:"source_doc,omitempty"`
	Program       string `json:"program,omitempty"`
}

// ListFinishCodes returns every finish code with its component descriptions,
// ordered by code.
func ListFinishCodes(db *gorm.DB) ([]FinishCodeSummary, error) {
	var out []FinishCodeSummary
	err := db.Raw(`
		SELECT fc.code AS code, fc.description AS description,
		       s.description AS substrate, fa.description AS finish_applied,
		       fc.seq_id AS seq_id, fc.source_doc AS source_doc, fc.program AS program
		FROM finish_codes fc
		JOIN substrates s ON fc.substrate_id = s.id
		JOIN finish_applied fa ON fc.finish_applied_id = fa.id
		ORDER BY fc.code`).Scan(&out).Error
	return out, err
}

// ChemicalSummary is one hazard-ranked chemical row.
type ChemicalSummary struct {
	Name               string       `json:"name"`
	CAS                string       `json:"cas"`
	HazardFlags        *HazardFlags `json:"hazard_flags,omitempty"`
	DefaultHazardLevel *int         `json:"default_hazard_level,omitempty"`
}

// ChemicalsByHazardLevel lists chemicals at or above a minimum hazard level,
// most hazardous first.
func ChemicalsByHazardLevel(db *gorm.DB, minLevel int) ([]ChemicalSummary, error) {
	if minLevel < 1 || minLevel > 5 {
		return nil, fmt.Errorf("min level must be 1-5, got %d", minLevel)
	}
	var chemicals []Chemical
	err := db.Where("default_hazard_level >= ?", minLevel).
		Order("default_hazard_level DESC, name ASC").
		Find(&chemicals).Error
	if err != nil {
		return nil, err
	}
	out := make([]ChemicalSummary, 0, len(chemicals))
	for _, c := range chemicals {
		s := ChemicalSummary{Name: c.Name, CAS: c.CAS, DefaultHazardLevel: c.DefaultHazardLevel}
		if c.HazardFlags != "" {
			if flags, err := ParseHazardFlags(c.HazardFlags); err == nil {
				s.HazardFlags = flags
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// StepSpecs is one step of a finish code that carries spec references.
type StepSpecs struct {
	SFTCode         string   `json:"sft_code"`
	StepOrder       int      `json:"step_order"`
	AssociatedSpecs string   `json:"associated_specs"`
	SpecList        []string `json:"associated_specs_list"`
	Description     string   `json:"description"`
}

// FinishCodeSpecs collects the unique specification references across one
// finish code's steps.
type FinishCodeSpecs struct {
	FinishCode     string      `json:"finish_code"`
	Specifications []string    `json:"specifications"`
	SpecCount      int         `json:"spec_count"`
	StepsWithSpecs []StepSpecs `json:"steps_with_specs"`
}

// GetFinishCodeSpecs extracts the unique specs referenced by a finish code's
// steps. Comma-separated entries are alternatives, so they are split and
// deduplicated.
func GetFinishCodeSpecs(db *gorm.DB, code string) (*FinishCodeSpecs, error) {
	var fc FinishCode
	err := db.Where("code = ?", code).First(&fc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		available, listErr := availableCodes(db, 10)
		if listErr != nil {
			return nil, listErr
		}
		return nil, &NotFoundError{Code: code, Available: available}
	}
	if err != nil {
		return nil, err
	}

	steps, err := stepNodes(db, fc.ID)
	if err != nil {
		return nil, err
	}

	specSet := make(map[string]bool)
	var withSpecs []StepSpecs
	for _, step := range steps {
		list := splitSpecs(step.AssociatedSpecs)
		if len(list) == 0 {
			continue
		}
		for _, spec := range list {
			specSet[spec] = true
		}
		withSpecs = append(withSpecs, StepSpecs{
			SFTCode:         step.SFTCode,
			StepOrder:       step.StepOrder,
			AssociatedSpecs: step.AssociatedSpecs,
			SpecList:        list,
			Description:     truncate(step.Description, 80),
		})
	}

	specs := make([]string, 0, len(specSet))
	for spec := range specSet {
		specs = append(specs, spec)
	}
	sort.Strings(specs)

	return &FinishCodeSpecs{
		FinishCode:     fc.Code,
		Specifications: specs,
		SpecCount:      len(specs),
		StepsWithSpecs: withSpecs,
	}, nil
}

// SpecUsage reports where one specification is referenced.
type SpecUsage struct {
	Spec        string   `json:"spec"`
	SFTCodes    []string `json:"sft_codes"`
	FinishCodes []string `json:"finish_codes"`
	UsageCount  int      `json:"usage_count"`
}

// AllSpecifications inventories every spec referenced by any step, with the
// steps and finish codes that use it, most-used first.
func AllSpecifications(db *gorm.DB) ([]SpecUsage, error) {
	var steps []SFTStep
	if err := db.Where("associated_specs <> ''").Order("sft_code").Find(&steps).Error; err != nil {
		return nil, err
	}

	type usage struct {
		sftCodes    map[string]bool
		finishCodes map[string]bool
	}
	bySpec := make(map[string]*usage)
	stepIDsBySpec := make(map[string][]uint)
	for _, step := range steps {
		for _, spec := range splitSpecs(step.AssociatedSpecs) {
			u := bySpec[spec]
			if u == nil {
				u = &usage{sftCodes: map[string]bool{}, finishCodes: map[string]bool{}}
				bySpec[spec] = u
			}
			u.sftCodes[step.SFTCode] = true
			stepIDsBySpec[spec] = append(stepIDsBySpec[spec], step.ID)
		}
	}

	for spec, stepIDs := range stepIDsBySpec {
		var codes []string
		err := db.Raw(`
			SELECT DISTINCT fc.code
			FROM finish_codes fc
			JOIN finish_code_steps fcs ON fc.id = fcs.finish_code_id
			WHERE fcs.sft_step_id IN ?
			ORDER BY fc.code`, stepIDs).Scan(&codes).Error
		if err != nil {
			return nil, err
		}
		for _, c := range codes {
			bySpec[spec].finishCodes[c] = true
		}
	}

	out := make([]SpecUsage, 0, len(bySpec))
	for spec, u := range bySpec {
		out = append(out, SpecUsage{
			Spec:        spec,
			SFTCodes:    sortedKeys(u.sftCodes),
			FinishCodes: sortedKeys(u.finishCodes),
			UsageCount:  len(u.finishCodes),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Spec < out[j].Spec
	})
	return out, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

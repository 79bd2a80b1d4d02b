package finishes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Loaders parse one CSV each and upsert rows by the entity's natural key:
// insert when absent, update in place when present, so re-ingesting an
// unchanged file leaves the store identical. Parent references are resolved
// eagerly; a dangling reference fails the whole file.

// LoadSubstrates loads substrates.csv (code, description; source_doc?, program?).
func LoadSubstrates(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"code", "description"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			code, err := t.require(i+1, row, "code")
			if err != nil {
				return err
			}
			description, err := t.require(i+1, row, "description")
			if err != nil {
				return err
			}
			sub := Substrate{
				Code:        code,
				Program:     t.get(row, "program"),
				Description: description,
				SourceDoc:   t.get(row, "source_doc"),
			}

			var existing Substrate
			err = tx.Where("code = ? AND program = ?", sub.Code, sub.Program).First(&existing).Error
			switch {
			case err == nil:
				existing.Description = sub.Description
				existing.SourceDoc = sub.SourceDoc
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&sub).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadFinishApplied loads finish_applied.csv
// (code, description; source_doc?, program?, associated_specs?).
func LoadFinishApplied(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"code", "description"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			code, err := t.require(i+1, row, "code")
			if err != nil {
				return err
			}
			description, err := t.require(i+1, row, "description")
			if err != nil {
				return err
			}
			fa := FinishApplied{
				Code:            code,
				Program:         t.get(row, "program"),
				Description:     description,
				SourceDoc:       t.get(row, "source_doc"),
				AssociatedSpecs: t.get(row, "associated_specs"),
			}

			var existing FinishApplied
			err = tx.Where("code = ? AND program = ?", fa.Code, fa.Program).First(&existing).Error
			switch {
			case err == nil:
				existing.Description = fa.Description
				existing.SourceDoc = fa.SourceDoc
				existing.AssociatedSpecs = fa.AssociatedSpecs
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&fa).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadSFTSteps loads sft_steps.csv (sft_code, description; parent_group?,
// associated_specs?, source_doc?, last_review?, notes?).
func LoadSFTSteps(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"sft_code", "description"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			code, err := t.require(i+1, row, "sft_code")
			if err != nil {
				return err
			}
			description, err := t.require(i+1, row, "description")
			if err != nil {
				return err
			}
			step := SFTStep{
				SFTCode:         code,
				ParentGroup:     t.get(row, "parent_group"),
				Description:     description,
				AssociatedSpecs: t.get(row, "associated_specs"),
				SourceDoc:       t.get(row, "source_doc"),
				LastReview:      t.get(row, "last_review"),
				Notes:           t.get(row, "notes"),
			}

			var existing SFTStep
			err = tx.Where("sft_code = ?", step.SFTCode).First(&existing).Error
			switch {
			case err == nil:
				existing.ParentGroup = step.ParentGroup
				existing.Description = step.Description
				existing.AssociatedSpecs = step.AssociatedSpecs
				existing.SourceDoc = step.SourceDoc
				existing.LastReview = step.LastReview
				existing.Notes = step.Notes
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&step).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadFinishCodes loads finish_codes.csv
// (finish_code, substrate_code, finish_applied_code, seq_id;
// description?/finish_code_description?, notes?, source_doc?, program?,
// associated_specs?, sft_steps?).
//
// An sft_steps cell may embed an ordered array of step codes, e.g.
// ["SFT0001", "SFT0002"]; these are resolved against sft_steps and written
// to finish_code_steps with 1-based order.
func LoadFinishCodes(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"finish_code", "substrate_code", "finish_applied_code", "seq_id"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			lineNum := i + 1
			code, err := t.require(lineNum, row, "finish_code")
			if err != nil {
				return err
			}
			substrateCode, err := t.require(lineNum, row, "substrate_code")
			if err != nil {
				return err
			}
			faCode, err := t.require(lineNum, row, "finish_applied_code")
			if err != nil {
				return err
			}
			seqRaw, err := t.require(lineNum, row, "seq_id")
			if err != nil {
				return err
			}
			seq, err := strconv.Atoi(seqRaw)
			if err != nil {
				return fmt.Errorf("%s line %d: seq_id %q is not numeric", t.path, lineNum+1, seqRaw)
			}

			program := t.get(row, "program")

			var sub Substrate
			if err := tx.Where("code = ? AND program = ?", substrateCode, program).First(&sub).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: substrate code %q (program %q) not found for finish code %q", t.path, substrateCode, program, code)
				}
				return err
			}
			var fa FinishApplied
			if err := tx.Where("code = ? AND program = ?", faCode, program).First(&fa).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: finish applied code %q (program %q) not found for finish code %q", t.path, faCode, program, code)
				}
				return err
			}

			// Both header spellings occur in the wild.
			description := t.get(row, "description")
			if description == "" {
				description = t.get(row, "finish_code_description")
			}

			fc := FinishCode{
				Code:            code,
				Program:         program,
				SubstrateID:     sub.ID,
				FinishAppliedID: fa.ID,
				SeqID:           seq,
				Description:     description,
				Notes:           t.get(row, "notes"),
				SourceDoc:       t.get(row, "source_doc"),
				AssociatedSpecs: t.get(row, "associated_specs"),
			}

			var existing FinishCode
			err = tx.Where("code = ? AND program = ?", fc.Code, fc.Program).First(&existing).Error
			switch {
			case err == nil:
				existing.SubstrateID = fc.SubstrateID
				existing.FinishAppliedID = fc.FinishAppliedID
				existing.SeqID = fc.SeqID
				existing.Description = fc.Description
				existing.Notes = fc.Notes
				existing.SourceDoc = fc.SourceDoc
				existing.AssociatedSpecs = fc.AssociatedSpecs
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				fc.ID = existing.ID
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&fc).Error; err != nil {
					return err
				}
			default:
				return err
			}

			if embedded := t.get(row, "sft_steps"); embedded != "" && embedded != "[]" {
				if err := loadEmbeddedStepArray(tx, t.path, fc.ID, code, embedded); err != nil {
					return err
				}
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// loadEmbeddedStepArray resolves an embedded step-code array and rewrites
// the finish code's step assignments in array order.
func loadEmbeddedStepArray(tx *gorm.DB, path string, finishCodeID uint, finishCode string, raw string) error {
	codes := parseStepCodeArray(raw)
	if len(codes) == 0 {
		return nil
	}
	if err := parkStepOrders(tx, finishCodeID); err != nil {
		return err
	}
	for order, sftCode := range codes {
		var step SFTStep
		if err := tx.Where("sft_code = ?", sftCode).First(&step).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s: sft code %q not found for finish code %q", path, sftCode, finishCode)
			}
			return err
		}
		if err := upsertFinishCodeStep(tx, finishCodeID, step.ID, order+1); err != nil {
			return fmt.Errorf("%s: finish code %q step %q: %w", path, finishCode, sftCode, err)
		}
	}
	return nil
}

// parseStepCodeArray accepts a JSON string array or the looser bracketed
// comma list some exports produce ([SFT0001, SFT0002]).
func parseStepCodeArray(raw string) []string {
	raw = strings.TrimSpace(raw)
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err == nil {
		out := codes[:0]
		for _, c := range codes {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out
	}
	clean := strings.NewReplacer("[", "", "]", "", `"`, "", "'", "").Replace(raw)
	var out []string
	for _, part := range strings.Split(clean, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFinishCodeSteps loads finish_code_steps.csv (finish_code, sft_code, step_order).
func LoadFinishCodeSteps(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"finish_code", "sft_code", "step_order"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		parked := make(map[uint]bool)
		for i, row := range t.rows {
			lineNum := i + 1
			fcCode, err := t.require(lineNum, row, "finish_code")
			if err != nil {
				return err
			}
			sftCode, err := t.require(lineNum, row, "sft_code")
			if err != nil {
				return err
			}
			orderRaw, err := t.require(lineNum, row, "step_order")
			if err != nil {
				return err
			}
			order, err := strconv.Atoi(orderRaw)
			if err != nil {
				return fmt.Errorf("%s line %d: step_order %q is not numeric", t.path, lineNum+1, orderRaw)
			}

			var fc FinishCode
			if err := tx.Where("code = ?", fcCode).First(&fc).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: finish code %q not found", t.path, fcCode)
				}
				return err
			}
			var step SFTStep
			if err := tx.Where("sft_code = ?", sftCode).First(&step).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: sft code %q not found", t.path, sftCode)
				}
				return err
			}

			if !parked[fc.ID] {
				if err := parkStepOrders(tx, fc.ID); err != nil {
					return err
				}
				parked[fc.ID] = true
			}
			if err := upsertFinishCodeStep(tx, fc.ID, step.ID, order); err != nil {
				return fmt.Errorf("%s: finish code %q step %q: %w", t.path, fcCode, sftCode, err)
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// parkStepOrders moves a finish code's existing step orders to negative
// sentinels so a reorder between two file versions cannot trip the
// (finish_code_id, step_order) unique index mid-rewrite.
func parkStepOrders(tx *gorm.DB, finishCodeID uint) error {
	return tx.Model(&FinishCodeStep{}).
		Where("finish_code_id = ?", finishCodeID).
		Update("step_order", gorm.Expr("-id")).Error
}

func upsertFinishCodeStep(tx *gorm.DB, finishCodeID uint, sftStepID uint, order int) error {
	var existing FinishCodeStep
	err := tx.Where("finish_code_id = ? AND sft_step_id = ?", finishCodeID, sftStepID).First(&existing).Error
	switch {
	case err == nil:
		if existing.StepOrder == order {
			return nil
		}
		return tx.Model(&existing).Update("step_order", order).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&FinishCodeStep{FinishCodeID: finishCodeID, SFTStepID: sftStepID, StepOrder: order}).Error
	default:
		return err
	}
}

// LoadMaterials loads materials_map.csv (base_spec; variant?, description?, notes?).
func LoadMaterials(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"base_spec"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			baseSpec, err := t.require(i+1, row, "base_spec")
			if err != nil {
				return err
			}
			m := Material{
				BaseSpec:    baseSpec,
				Variant:     t.get(row, "variant"),
				Description: t.get(row, "description"),
				Notes:       t.get(row, "notes"),
			}

			var existing Material
			err = tx.Where("base_spec = ? AND variant = ?", m.BaseSpec, m.Variant).First(&existing).Error
			switch {
			case err == nil:
				existing.Description = m.Description
				existing.Notes = m.Notes
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&m).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadChemicals loads chemicals.csv (name, cas; hazard_flags?, default_hazard_level?).
//
// hazard_flags lands as opaque text even when malformed; shape problems are
// the validators' to report, so bad payloads stay inspectable in the store.
func LoadChemicals(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"name", "cas"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			lineNum := i + 1
			name, err := t.require(lineNum, row, "name")
			if err != nil {
				return err
			}
			cas, err := t.require(lineNum, row, "cas")
			if err != nil {
				return err
			}

			var level *int
			if raw := t.get(row, "default_hazard_level"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("%s line %d: default_hazard_level %q is not numeric", t.path, lineNum+1, raw)
				}
				level = &n
			}

			c := Chemical{
				Name:               name,
				CAS:                cas,
				HazardFlags:        t.get(row, "hazard_flags"),
				DefaultHazardLevel: level,
			}

			var existing Chemical
			err = tx.Where("cas = ?", c.CAS).First(&existing).Error
			switch {
			case err == nil:
				existing.Name = c.Name
				existing.HazardFlags = c.HazardFlags
				existing.DefaultHazardLevel = c.DefaultHazardLevel
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&c).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadSFTMaterialLinks loads sft_material_links.csv (sft_code, base_spec; variant?, note?).
func LoadSFTMaterialLinks(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"sft_code", "base_spec"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			lineNum := i + 1
			sftCode, err := t.require(lineNum, row, "sft_code")
			if err != nil {
				return err
			}
			baseSpec, err := t.require(lineNum, row, "base_spec")
			if err != nil {
				return err
			}
			variant := t.get(row, "variant")

			var step SFTStep
			if err := tx.Where("sft_code = ?", sftCode).First(&step).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: sft code %q not found", t.path, sftCode)
				}
				return err
			}
			var mat Material
			if err := tx.Where("base_spec = ? AND variant = ?", baseSpec, variant).First(&mat).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: material %q %q not found for sft %q", t.path, baseSpec, variant, sftCode)
				}
				return err
			}

			link := SFTMaterialLink{SFTStepID: step.ID, MaterialID: mat.ID, Note: t.get(row, "note")}
			var existing SFTMaterialLink
			err = tx.Where("sft_step_id = ? AND material_id = ?", link.SFTStepID, link.MaterialID).First(&existing).Error
			switch {
			case err == nil:
				existing.Note = link.Note
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// LoadMaterialChemicals loads material_chemicals.csv
// (base_spec, cas; variant?, pct_wt_low?, pct_wt_high?, notes?).
// Range constraints are a validation concern; out-of-range values land.
func LoadMaterialChemicals(csvPath string, db *gorm.DB) (int, error) {
	t, err := readCSVTable(csvPath, []string{"base_spec", "cas"})
	if err != nil {
		return 0, err
	}

	rows := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i, row := range t.rows {
			lineNum := i + 1
			baseSpec, err := t.require(lineNum, row, "base_spec")
			if err != nil {
				return err
			}
			cas, err := t.require(lineNum, row, "cas")
			if err != nil {
				return err
			}
			variant := t.get(row, "variant")

			var mat Material
			if err := tx.Where("base_spec = ? AND variant = ?", baseSpec, variant).First(&mat).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: material %q %q not found", t.path, baseSpec, variant)
				}
				return err
			}
			var chem Chemical
			if err := tx.Where("cas = ?", cas).First(&chem).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%s: chemical with cas %q not found", t.path, cas)
				}
				return err
			}

			low, err := parseOptionalFloat(t, row, "pct_wt_low", lineNum)
			if err != nil {
				return err
			}
			high, err := parseOptionalFloat(t, row, "pct_wt_high", lineNum)
			if err != nil {
				return err
			}

			mc := MaterialChemical{
				MaterialID: mat.ID,
				ChemicalID: chem.ID,
				PctWtLow:   low,
				PctWtHigh:  high,
				Notes:      t.get(row, "notes"),
			}
			var existing MaterialChemical
			err = tx.Where("material_id = ? AND chemical_id = ?", mc.MaterialID, mc.ChemicalID).First(&existing).Error
			switch {
			case err == nil:
				existing.PctWtLow = mc.PctWtLow
				existing.PctWtHigh = mc.PctWtHigh
				existing.Notes = mc.Notes
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&mc).Error; err != nil {
					return err
				}
			default:
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

func parseOptionalFloat(t *csvTable, row []string, col string, lineNum int) (*float64, error) {
	raw := t.get(row, col)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s line %d: %s %q is not numeric", t.path, lineNum+1, col, raw)
	}
	return &f, nil
}

// recordIngestion upserts the lineage ledger row for one source file.
func recordIngestion(db *gorm.DB, sourceName string, sha256hex string, rowsLoaded int) error {
	rec := IngestionRecord{
		SourceName: sourceName,
		SHA256:     sha256hex,
		RowsLoaded: rowsLoaded,
		LoadedAt:   time.Now().UTC(),
	}
	var existing IngestionRecord
	err := db.Where("source_name = ?", sourceName).First(&existing).Error
	switch {
	case err == nil:
		existing.SHA256 = rec.SHA256
		existing.RowsLoaded = rec.RowsLoaded
		existing.LoadedAt = rec.LoadedAt
		return db.Save(&existing).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&rec).Error
	default:
		return err
	}
}

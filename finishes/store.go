package finishes

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenDB opens (creating if needed) the SQLite store and ensures the schema
// exists. The returned handle is the single writer during an ingestion run.
func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&Substrate{},
		&FinishApplied{},
		&SFTStep{},
		&FinishCode{},
		&FinishCodeStep{},
		&Material{},
		&SFTMaterialLink{},
		&Chemical{},
		&MaterialChemical{},
		&IngestionRecord{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenQueryDB opens an existing store for read-only querying without
// touching the schema.
func OpenQueryDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// CloseDB releases the underlying sql.DB.
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Package sqlite implements the "sqlite" storage driver, which upserts
// instance documents into an "instances" table.
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// InstanceRecord is a row of the instances table.
type InstanceRecord struct {
	UUID      string `gorm:"primaryKey;size:36"`
	Meta      string `gorm:"index;not null"`
	URI       string
	Document  string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (InstanceRecord) TableName() string { return "instances" }

func init() {
	dlite.RegisterDriver("sqlite", dlite.DriverFunc(Save), "application/vnd.sqlite3", "application/x-sqlite3")
}

// Open opens the database file at location and migrates the instances
// table.
func Open(location string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(location), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, dlite.StorageError(err, "opening sqlite %s", location)
	}
	if err := db.AutoMigrate(&InstanceRecord{}); err != nil {
		closeDB(db)
		return nil, dlite.StorageError(err, "migrating sqlite %s", location)
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save implements dlite.Driver. Saving an instance again replaces its row.
func Save(ctx context.Context, st dlite.Storable, location string, opts dlite.Options) error {
	r := st.Record()
	doc, err := json.Marshal(r)
	if err != nil {
		return dlite.DecodeError(err, "encoding %s", r.UUID)
	}
	db, err := Open(location)
	if err != nil {
		return err
	}
	defer closeDB(db)

	now := time.Now()
	row := &InstanceRecord{
		UUID:      r.UUID,
		Meta:      r.Meta,
		URI:       r.URI,
		Document:  string(doc),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta", "uri", "document", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return dlite.StorageError(errors.Wrap(err, "upserting instance"), "sqlite save %s", r.UUID)
	}
	return nil
}

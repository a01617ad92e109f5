package database

import (
	"encoding/json"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pantrylink/schedule-api-go/pkg/models"
)

// Pantry represents the pantries table. Each pantry is one tenant.
type Pantry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phone_number"`
	Address      string    `json:"address"`
	Website      string    `json:"website"`
	CreatedAt    time.Time `json:"created_at"`
}

// PantrySettings persists one pantry's scheduling policy. The list
// fields are stored as JSON text so the row survives driver switches
// between sqlite and postgres unchanged.
type PantrySettings struct {
	ID                 uint   `gorm:"primaryKey"`
	PantryID           uint   `gorm:"uniqueIndex;not null"`
	SchedulingEnabled  bool   `gorm:"default:true"`
	OpenDays           string `gorm:"not null"`
	ExcludedDates      string `gorm:"not null"`
	UseDefaultSchedule bool
	DefaultSchedule    string `gorm:"not null"`
	UpdatedAt          time.Time
}

// Settings decodes the row into the wire type.
func (p *PantrySettings) Settings() (models.ScheduleSettings, error) {
	var s models.ScheduleSettings
	s.SchedulingEnabled = p.SchedulingEnabled
	s.UseDefaultSchedule = p.UseDefaultSchedule
	if err := json.Unmarshal([]byte(p.OpenDays), &s.OpenDays); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(p.ExcludedDates), &s.ExcludedDates); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(p.DefaultSchedule), &s.DefaultSchedule); err != nil {
		return s, err
	}
	if s.OpenDays == nil {
		s.OpenDays = []int{}
	}
	if s.ExcludedDates == nil {
		s.ExcludedDates = []string{}
	}
	if s.DefaultSchedule == nil {
		s.DefaultSchedule = []models.Shift{}
	}
	return s, nil
}

// SetSettings encodes the wire type into the row.
func (p *PantrySettings) SetSettings(s models.ScheduleSettings) error {
	openDays, err := json.Marshal(s.OpenDays)
	if err != nil {
		return err
	}
	excluded, err := json.Marshal(s.ExcludedDates)
	if err != nil {
		return err
	}
	template, err := json.Marshal(s.DefaultSchedule)
	if err != nil {
		return err
	}
	p.SchedulingEnabled = s.SchedulingEnabled
	p.UseDefaultSchedule = s.UseDefaultSchedule
	p.OpenDays = string(openDays)
	p.ExcludedDates = string(excluded)
	p.DefaultSchedule = string(template)
	return nil
}

// DaySchedule represents the day_schedules table: one stored schedule
// document per (pantry, date).
type DaySchedule struct {
	ID        uint   `gorm:"primaryKey"`
	PantryID  uint   `gorm:"uniqueIndex:idx_pantry_date;not null"`
	Date      string `gorm:"uniqueIndex:idx_pantry_date;not null"`
	Document  string `gorm:"not null"`
	UpdatedAt time.Time
}

// Decode parses the stored document. Rows written by older releases may
// hold a bare shift array; the wire type's decoder normalizes that.
func (d *DaySchedule) Decode() (models.ScheduleDocument, error) {
	var doc models.ScheduleDocument
	if err := json.Unmarshal([]byte(d.Document), &doc); err != nil {
		return doc, err
	}
	doc.Normalize()
	return doc, nil
}

// SetDocument encodes a document into the row, always in the current
// object shape.
func (d *DaySchedule) SetDocument(doc models.ScheduleDocument) error {
	doc.Normalize()
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	d.Document = string(data)
	return nil
}

// DayCommitment represents the day_commitments table: one row per named
// commitment, projected out of the saved documents. The unique
// (username, date) index is what makes a volunteer's one-commitment-per
// -day rule hold platform-wide, even for two saves racing at different
// pantries.
type DayCommitment struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex:idx_user_date;not null"`
	Date      string `gorm:"uniqueIndex:idx_user_date;not null"`
	PantryID  uint   `gorm:"index;not null"`
	ShiftID   int    // 0 means the day's general volunteer list
	ShiftName string
	ShiftTime string
}

// Volunteer mirrors the platform's volunteer directory. This service
// only ever reads it, to fill in name and email on commitments.
type Volunteer struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"unique;not null" json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// InitDB opens the database connection and migrates the schema.
// DATABASE_URL selects postgres; otherwise a local sqlite file is used
// (DATA_PATH, default pantrylink.db).
func InitDB() (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "pantrylink.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&Pantry{},
		&PantrySettings{},
		&DaySchedule{},
		&DayCommitment{},
		&Volunteer{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

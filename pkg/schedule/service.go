package schedule

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pantrylink/schedule-api-go/pkg/database"
	"github.com/pantrylink/schedule-api-go/pkg/models"
)

// VolunteerDirectory looks up a volunteer's identity by username. The
// directory is owned by the wider platform; this service only reads it
// to fill in missing name and email on commitments.
type VolunteerDirectory interface {
	Lookup(username string) (models.Commitment, bool)
}

// DBDirectory reads the shared volunteers table.
type DBDirectory struct {
	DB *gorm.DB
}

func (d DBDirectory) Lookup(username string) (models.Commitment, bool) {
	var v database.Volunteer
	err := d.DB.Where("lower(username) = ?", strings.ToLower(username)).First(&v).Error
	if err != nil {
		return models.Commitment{}, false
	}
	name := strings.TrimSpace(v.FirstName + " " + v.LastName)
	return models.Commitment{Name: name, Email: v.Email, Username: v.Username}, true
}

// NopDirectory never resolves anyone. Commitments keep whatever name
// and email the caller supplied.
type NopDirectory struct{}

func (NopDirectory) Lookup(string) (models.Commitment, bool) {
	return models.Commitment{}, false
}

// Service is the scheduling core: it resolves reads (materializing the
// default template when no document is stored), validates and commits
// writes, and evaluates date availability from settings.
type Service struct {
	db  *gorm.DB
	dir VolunteerDirectory
	log zerolog.Logger
}

// New creates a Service. A nil directory disables enrichment.
func New(db *gorm.DB, dir VolunteerDirectory, log zerolog.Logger) *Service {
	if dir == nil {
		dir = NopDirectory{}
	}
	return &Service{db: db, dir: dir, log: log}
}

// CreatePantry inserts a pantry together with its default schedule
// settings in one transaction.
func (s *Service) CreatePantry(p *database.Pantry) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		row := database.PantrySettings{PantryID: p.ID}
		if err := row.SetSettings(models.DefaultScheduleSettings()); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return &StoreError{Op: "create pantry", Err: err}
	}
	s.log.Info().Uint("pantry_id", p.ID).Str("name", p.Name).Msg("pantry created")
	return nil
}

// GetPantry returns one pantry row.
func (s *Service) GetPantry(pantryID uint) (*database.Pantry, error) {
	return s.findPantry(s.db, pantryID)
}

func (s *Service) findPantry(tx *gorm.DB, pantryID uint) (*database.Pantry, error) {
	var p database.Pantry
	if err := tx.First(&p, pantryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "pantry", ID: pantryID}
		}
		return nil, &StoreError{Op: "load pantry", Err: err}
	}
	return &p, nil
}

func (s *Service) loadSettings(tx *gorm.DB, pantryID uint) (models.ScheduleSettings, error) {
	var row database.PantrySettings
	err := tx.Where("pantry_id = ?", pantryID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Pantries created before settings existed fall back to the
		// platform defaults.
		return models.DefaultScheduleSettings(), nil
	}
	if err != nil {
		return models.ScheduleSettings{}, &StoreError{Op: "load settings", Err: err}
	}
	settings, err := row.Settings()
	if err != nil {
		return models.ScheduleSettings{}, &StoreError{Op: "decode settings", Err: err}
	}
	return settings, nil
}

// GetSettings returns a pantry's scheduling policy.
func (s *Service) GetSettings(pantryID uint) (models.ScheduleSettings, error) {
	if _, err := s.findPantry(s.db, pantryID); err != nil {
		return models.ScheduleSettings{}, err
	}
	return s.loadSettings(s.db, pantryID)
}

// SaveSettings replaces a pantry's scheduling policy. Edits to the
// default template only affect dates that have not been saved yet;
// already-stored documents are never touched.
func (s *Service) SaveSettings(pantryID uint, settings models.ScheduleSettings) error {
	if err := settings.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if _, err := s.findPantry(s.db, pantryID); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row database.PantrySettings
		err := tx.Where("pantry_id = ?", pantryID).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row.PantryID = pantryID
		if err := row.SetSettings(settings); err != nil {
			return err
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return &StoreError{Op: "save settings", Err: err}
	}
	return nil
}

// Availability reports whether a pantry accepts signups on a date:
// scheduling enabled, weekday open, and the date not excluded. Pure
// function of the pantry's settings.
func (s *Service) Availability(pantryID uint, dateKey string) (bool, error) {
	date, err := models.ParseDate(dateKey)
	if err != nil {
		return false, &ValidationError{Reason: err.Error()}
	}
	settings, err := s.GetSettings(pantryID)
	if err != nil {
		return false, err
	}
	return settings.SchedulingEnabled && settings.IsOpen(date, dateKey), nil
}

// GetSchedule returns the stored document for (pantry, date). When no
// document exists and the pantry uses a default template for an
// available date, a virtual document is derived from the live template
// on every read. Reads never persist anything, so template edits stay
// visible until the date's first save.
func (s *Service) GetSchedule(pantryID uint, dateKey string) (models.ScheduleDocument, error) {
	empty := models.ScheduleDocument{Shifts: []models.Shift{}, GeneralVolunteers: []models.Commitment{}}

	date, err := models.ParseDate(dateKey)
	if err != nil {
		return empty, &ValidationError{Reason: err.Error()}
	}
	if _, err := s.findPantry(s.db, pantryID); err != nil {
		return empty, err
	}

	var row database.DaySchedule
	err = s.db.Where("pantry_id = ? AND date = ?", pantryID, dateKey).First(&row).Error
	if err == nil {
		doc, decErr := row.Decode()
		if decErr != nil {
			return empty, &StoreError{Op: "decode schedule", Err: decErr}
		}
		return doc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return empty, &StoreError{Op: "load schedule", Err: err}
	}

	settings, err := s.loadSettings(s.db, pantryID)
	if err != nil {
		return empty, err
	}
	if settings.UseDefaultSchedule && settings.SchedulingEnabled &&
		settings.IsOpen(date, dateKey) && len(settings.DefaultSchedule) > 0 {
		return settings.Materialize(), nil
	}
	return empty, nil
}

// CheckConflict reports whether a username already holds a commitment
// on a date at any pantry other than excludePantryID. Matching is
// case-insensitive. If more than one pantry holds a commitment (only
// possible through historic bugs), the lowest pantry id wins.
func (s *Service) CheckConflict(username, dateKey string, excludePantryID uint) (models.ConflictResult, error) {
	return s.checkConflict(s.db, username, dateKey, excludePantryID)
}

func (s *Service) checkConflict(tx *gorm.DB, username, dateKey string, excludePantryID uint) (models.ConflictResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return models.ConflictResult{}, &ValidationError{Reason: "username is required"}
	}
	if _, err := models.ParseDate(dateKey); err != nil {
		return models.ConflictResult{}, &ValidationError{Reason: err.Error()}
	}

	var rows []database.DayCommitment
	q := tx.Where("username = ? AND date = ?", username, dateKey)
	if excludePantryID != 0 {
		q = q.Where("pantry_id <> ?", excludePantryID)
	}
	if err := q.Order("pantry_id asc").Limit(1).Find(&rows).Error; err != nil {
		return models.ConflictResult{}, &StoreError{Op: "conflict scan", Err: err}
	}
	if len(rows) == 0 {
		return models.ConflictResult{Scheduled: false}, nil
	}

	var p database.Pantry
	if err := tx.First(&p, rows[0].PantryID).Error; err != nil {
		return models.ConflictResult{}, &StoreError{Op: "conflict scan", Err: err}
	}
	return models.ConflictResult{
		Scheduled:  true,
		PantryName: p.Name,
		PantryID:   p.ID,
	}, nil
}

// SaveSchedule validates and commits a full replacement document for
// (pantry, date). Validation runs first with no I/O; then every named
// commitment is checked against the other pantries' commitments for
// that date. Any conflict rejects the whole save and leaves the stored
// document unchanged. On success the document and its commitment index
// rows are replaced atomically.
func (s *Service) SaveSchedule(pantryID uint, dateKey string, doc models.ScheduleDocument) (models.ScheduleDocument, error) {
	empty := models.ScheduleDocument{Shifts: []models.Shift{}, GeneralVolunteers: []models.Commitment{}}

	if _, err := models.ParseDate(dateKey); err != nil {
		return empty, &ValidationError{Reason: err.Error()}
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return empty, &ValidationError{Reason: err.Error()}
	}
	s.enrich(&doc)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.findPantry(tx, pantryID); err != nil {
			return err
		}

		// Conflict scan inside the transaction, so the read is
		// consistent with the write that follows.
		for _, username := range doc.Usernames() {
			res, err := s.checkConflict(tx, username, dateKey, pantryID)
			if err != nil {
				return err
			}
			if res.Scheduled {
				return &ConflictError{
					Username:   username,
					Date:       dateKey,
					PantryID:   res.PantryID,
					PantryName: res.PantryName,
				}
			}
		}

		var row database.DaySchedule
		err := tx.Where("pantry_id = ? AND date = ?", pantryID, dateKey).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return &StoreError{Op: "load schedule", Err: err}
		}
		row.PantryID = pantryID
		row.Date = dateKey
		if err := row.SetDocument(doc); err != nil {
			return &StoreError{Op: "encode schedule", Err: err}
		}
		if err := tx.Save(&row).Error; err != nil {
			return &StoreError{Op: "save schedule", Err: err}
		}

		if err := tx.Where("pantry_id = ? AND date = ?", pantryID, dateKey).
			Delete(&database.DayCommitment{}).Error; err != nil {
			return &StoreError{Op: "clear commitments", Err: err}
		}
		for _, c := range commitmentRows(pantryID, dateKey, doc) {
			if err := tx.Create(&c).Error; err != nil {
				// A concurrent save at another pantry can win the
				// unique (username, date) index between our scan and
				// this insert. Re-check to name the winner.
				res, chkErr := s.checkConflict(tx, c.Username, dateKey, pantryID)
				if chkErr == nil && res.Scheduled {
					return &ConflictError{
						Username:   c.Username,
						Date:       dateKey,
						PantryID:   res.PantryID,
						PantryName: res.PantryName,
					}
				}
				return &StoreError{Op: "index commitments", Err: err}
			}
		}
		return nil
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.log.Warn().
				Uint("pantry_id", pantryID).
				Str("date", dateKey).
				Str("username", conflict.Username).
				Uint("blocking_pantry", conflict.PantryID).
				Msg("save rejected: volunteer already scheduled elsewhere")
		}
		return empty, err
	}

	s.log.Info().
		Uint("pantry_id", pantryID).
		Str("date", dateKey).
		Int("shifts", len(doc.Shifts)).
		Msg("schedule saved")
	return doc, nil
}

// enrich fills missing name and email on commitments that carry a
// username, using the volunteer directory. Lookup misses are not an
// error; the caller's values stand.
func (s *Service) enrich(doc *models.ScheduleDocument) {
	fill := func(c *models.Commitment) {
		if strings.TrimSpace(c.Username) == "" {
			return
		}
		if c.Name != "" && c.Email != "" {
			return
		}
		known, ok := s.dir.Lookup(c.Username)
		if !ok {
			return
		}
		if c.Name == "" {
			c.Name = known.Name
		}
		if c.Email == "" {
			c.Email = known.Email
		}
	}
	for i := range doc.Shifts {
		for j := range doc.Shifts[i].Volunteers {
			fill(&doc.Shifts[i].Volunteers[j])
		}
	}
	for i := range doc.GeneralVolunteers {
		fill(&doc.GeneralVolunteers[i])
	}
}

// commitmentRows projects a document into its index rows. Usernames are
// stored lowercased; a shift id of zero marks a general volunteer.
func commitmentRows(pantryID uint, dateKey string, doc models.ScheduleDocument) []database.DayCommitment {
	var rows []database.DayCommitment
	for _, sh := range doc.Shifts {
		for _, c := range sh.Volunteers {
			u := strings.ToLower(strings.TrimSpace(c.Username))
			if u == "" {
				continue
			}
			rows = append(rows, database.DayCommitment{
				Username:  u,
				Date:      dateKey,
				PantryID:  pantryID,
				ShiftID:   sh.ID,
				ShiftName: sh.Name,
				ShiftTime: sh.Time,
			})
		}
	}
	for _, c := range doc.GeneralVolunteers {
		u := strings.ToLower(strings.TrimSpace(c.Username))
		if u == "" {
			continue
		}
		rows = append(rows, database.DayCommitment{
			Username: u,
			Date:     dateKey,
			PantryID: pantryID,
		})
	}
	return rows
}

// UserWeek lists a volunteer's commitments across all pantries within
// an inclusive date range.
func (s *Service) UserWeek(username, fromKey, toKey string) ([]models.UserCommitment, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, &ValidationError{Reason: "username is required"}
	}
	if _, err := models.ParseDate(fromKey); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if _, err := models.ParseDate(toKey); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	var rows []database.DayCommitment
	err := s.db.Where("username = ? AND date >= ? AND date <= ?", username, fromKey, toKey).
		Order("date asc, pantry_id asc").Find(&rows).Error
	if err != nil {
		return nil, &StoreError{Op: "load user schedule", Err: err}
	}

	names := make(map[uint]string)
	out := make([]models.UserCommitment, 0, len(rows))
	for _, r := range rows {
		name, ok := names[r.PantryID]
		if !ok {
			var p database.Pantry
			if err := s.db.First(&p, r.PantryID).Error; err == nil {
				name = p.Name
			} else {
				name = "Unknown Pantry"
			}
			names[r.PantryID] = name
		}
		entry := models.UserCommitment{
			PantryID:   r.PantryID,
			PantryName: name,
			Date:       r.Date,
			Shift:      r.ShiftName,
			Time:       r.ShiftTime,
		}
		if r.ShiftID == 0 {
			entry.Shift = "General"
			entry.Time = "Flexible"
		}
		out = append(out, entry)
	}
	return out, nil
}

// PruneIndex drops commitment index rows older than todayKey. Conflict
// checks only ever target today or future dates, so old rows are dead
// weight. Stored schedule documents are kept.
func (s *Service) PruneIndex(todayKey string) (int64, error) {
	if _, err := models.ParseDate(todayKey); err != nil {
		return 0, &ValidationError{Reason: err.Error()}
	}
	res := s.db.Where("date < ?", todayKey).Delete(&database.DayCommitment{})
	if res.Error != nil {
		return 0, &StoreError{Op: "prune commitments", Err: res.Error}
	}
	if res.RowsAffected > 0 {
		s.log.Info().Int64("rows", res.RowsAffected).Msg("pruned past commitment index rows")
	}
	return res.RowsAffected, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of the SchedulingStore interface
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite scheduling store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meeting_requests (
			id TEXT PRIMARY KEY,
			sender_email TEXT NOT NULL,
			subject TEXT,
			meeting_type TEXT,
			duration_minutes INTEGER,
			preferred_dates TEXT,
			attendees TEXT,
			location_preference TEXT,
			special_requirements TEXT,
			urgency TEXT,
			detection_confidence REAL,
			status TEXT NOT NULL,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_holds (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NOT NULL,
			holder_email TEXT,
			status TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			notes TEXT,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scheduling_workflows (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			workflow_type TEXT NOT NULL,
			current_step TEXT,
			step_number INTEGER,
			total_steps INTEGER,
			status TEXT NOT NULL,
			context TEXT,
			retry_count INTEGER,
			max_retries INTEGER,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scheduling_preferences (
			sender_email TEXT PRIMARY KEY,
			start_hour INTEGER,
			end_hour INTEGER,
			working_days TEXT,
			auto_confirm_threshold REAL,
			preferred_tone TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_range ON calendar_holds(status, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_expiry ON calendar_holds(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_request ON calendar_holds(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_sender ON meeting_requests(sender_email)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateMeetingRequest persists a new meeting request
func (s *SQLiteStore) CreateMeetingRequest(ctx context.Context, req *core.MeetingRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meeting_requests (id, sender_email, subject, meeting_type, duration_minutes,
			preferred_dates, attendees, location_preference, special_requirements, urgency,
			detection_confidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.SenderEmail, req.Subject, string(req.MeetingType), req.DurationMinutes,
		strings.Join(req.PreferredDates, ","), strings.Join(req.Attendees, ","),
		req.LocationPreference, req.SpecialRequirements, string(req.Urgency),
		req.DetectionConfidence, string(req.Status), req.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert meeting request: %w", err)
	}
	return nil
}

// GetMeetingRequest retrieves a meeting request by id
func (s *SQLiteStore) GetMeetingRequest(ctx context.Context, id string) (*core.MeetingRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender_email, subject, meeting_type, duration_minutes, preferred_dates,
			attendees, location_preference, special_requirements, urgency,
			detection_confidence, status, created_at
		FROM meeting_requests WHERE id = ?
	`, id)
	return scanMeetingRequest(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeetingRequest(row rowScanner) (*core.MeetingRequest, error) {
	var req core.MeetingRequest
	var meetingType, urgency, status, createdAt string
	var preferredDates, attendees string
	err := row.Scan(&req.ID, &req.SenderEmail, &req.Subject, &meetingType, &req.DurationMinutes,
		&preferredDates, &attendees, &req.LocationPreference, &req.SpecialRequirements,
		&urgency, &req.DetectionConfidence, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan meeting request: %w", err)
	}
	req.MeetingType = core.MeetingType(meetingType)
	req.Urgency = core.Urgency(urgency)
	req.Status = core.RequestStatus(status)
	req.PreferredDates = splitList(preferredDates)
	req.Attendees = splitList(attendees)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		req.CreatedAt = t
	}
	return &req, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// UpdateMeetingRequestStatus transitions a meeting request's status
func (s *SQLiteStore) UpdateMeetingRequestStatus(ctx context.Context, id string, status core.RequestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE meeting_requests SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update meeting request status: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CreateHoldIfFree atomically creates a hold unless an active or
// confirmed hold already overlaps the range. The overlap check and the
// insert run inside one transaction so two racing requests cannot both
// hold the same slot.
func (s *SQLiteStore) CreateHoldIfFree(ctx context.Context, hold *core.CalendarHold) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_holds
		WHERE status IN ('active', 'confirmed') AND start_time < ? AND end_time > ?
	`, hold.End.UTC().Format(time.RFC3339), hold.Start.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check hold overlap: %w", err)
	}
	if count > 0 {
		return core.ErrSlotTaken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendar_holds (id, request_id, start_time, end_time, holder_email,
			status, expires_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, hold.ID, hold.RequestID, hold.Start.UTC().Format(time.RFC3339), hold.End.UTC().Format(time.RFC3339),
		hold.HolderEmail, string(hold.Status), hold.ExpiresAt.UTC().Format(time.RFC3339),
		hold.Notes, hold.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}

	return tx.Commit()
}

// GetHold retrieves a hold by id
func (s *SQLiteStore) GetHold(ctx context.Context, id string) (*core.CalendarHold, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, start_time, end_time, holder_email, status, expires_at, notes, created_at
		FROM calendar_holds WHERE id = ?
	`, id)
	return scanHold(row)
}

func scanHold(row rowScanner) (*core.CalendarHold, error) {
	var hold core.CalendarHold
	var start, end, status, expiresAt, createdAt string
	err := row.Scan(&hold.ID, &hold.RequestID, &start, &end, &hold.HolderEmail,
		&status, &expiresAt, &hold.Notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan hold: %w", err)
	}
	hold.Status = core.HoldStatus(status)
	if t, err := time.Parse(time.RFC3339, start); err == nil {
		hold.Start = t
	}
	if t, err := time.Parse(time.RFC3339, end); err == nil {
		hold.End = t
	}
	if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
		hold.ExpiresAt = t
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		hold.CreatedAt = t
	}
	return &hold, nil
}

// GetHoldsByRequest returns all holds owned by a meeting request
func (s *SQLiteStore) GetHoldsByRequest(ctx context.Context, requestID string) ([]core.CalendarHold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, start_time, end_time, holder_email, status, expires_at, notes, created_at
		FROM calendar_holds WHERE request_id = ? ORDER BY start_time
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holds: %w", err)
	}
	defer rows.Close()

	var holds []core.CalendarHold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, *hold)
	}
	return holds, rows.Err()
}

// UpdateHoldStatus transitions a hold's status
func (s *SQLiteStore) UpdateHoldStatus(ctx context.Context, id string, status core.HoldStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE calendar_holds SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	return requireRow(result)
}

// ExpireHolds marks active holds whose expiry has passed as expired
func (s *SQLiteStore) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE calendar_holds SET status = 'expired'
		WHERE status = 'active' AND expires_at < ?
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// HasOverlap reports whether any active or confirmed hold overlaps
// [start, end)
func (s *SQLiteStore) HasOverlap(ctx context.Context, start, end time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_holds
		WHERE status IN ('active', 'confirmed') AND start_time < ? AND end_time > ?
	`, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return count > 0, nil
}

// CreateWorkflow persists a new scheduling workflow
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *core.SchedulingWorkflow) error {
	contextJSON, err := json.Marshal(wf.Context)
	if err != nil {
		return fmt.Errorf("failed to encode workflow context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduling_workflows (id, request_id, workflow_type, current_step,
			step_number, total_steps, status, context, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.RequestID, string(wf.Type), wf.CurrentStep, wf.StepNumber, wf.TotalSteps,
		string(wf.Status), string(contextJSON), wf.RetryCount, wf.MaxRetries,
		wf.CreatedAt.UTC().Format(time.RFC3339), wf.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*core.SchedulingWorkflow, error) {
	var wf core.SchedulingWorkflow
	var wfType, status, contextJSON, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, workflow_type, current_step, step_number, total_steps,
			status, context, retry_count, max_retries, created_at, updated_at
		FROM scheduling_workflows WHERE id = ?
	`, id).Scan(&wf.ID, &wf.RequestID, &wfType, &wf.CurrentStep, &wf.StepNumber,
		&wf.TotalSteps, &status, &contextJSON, &wf.RetryCount, &wf.MaxRetries, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	wf.Type = core.WorkflowType(wfType)
	wf.Status = core.WorkflowStatus(status)
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &wf.Context); err != nil {
			s.logger.Warn("Failed to decode workflow context", zap.String("workflow_id", id), zap.Error(err))
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		wf.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		wf.UpdatedAt = t
	}
	return &wf, nil
}

// UpdateWorkflowStep advances a workflow to a named step
func (s *SQLiteStore) UpdateWorkflowStep(ctx context.Context, id string, step string, stepNumber int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduling_workflows SET current_step = ?, step_number = ?, updated_at = ?
		WHERE id = ?
	`, step, stepNumber, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow step: %w", err)
	}
	return requireRow(result)
}

// UpdateWorkflowStatus transitions a workflow's status
func (s *SQLiteStore) UpdateWorkflowStatus(ctx context.Context, id string, status core.WorkflowStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduling_workflows SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return requireRow(result)
}

// GetPreferences returns the preferences for a sender, falling back to
// the global defaults stored under the empty sender key
func (s *SQLiteStore) GetPreferences(ctx context.Context, senderEmail string) (*core.SchedulingPreferences, error) {
	prefs, err := s.getPreferencesRow(ctx, senderEmail)
	if err == core.ErrNotFound && senderEmail != "" {
		return s.getPreferencesRow(ctx, "")
	}
	return prefs, err
}

func (s *SQLiteStore) getPreferencesRow(ctx context.Context, senderEmail string) (*core.SchedulingPreferences, error) {
	var prefs core.SchedulingPreferences
	var workingDays, tone string
	err := s.db.QueryRowContext(ctx, `
		SELECT sender_email, start_hour, end_hour, working_days, auto_confirm_threshold, preferred_tone
		FROM scheduling_preferences WHERE sender_email = ?
	`, senderEmail).Scan(&prefs.SenderEmail, &prefs.Hours.StartHour, &prefs.Hours.EndHour,
		&workingDays, &prefs.AutoConfirmThreshold, &tone)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan preferences: %w", err)
	}
	prefs.PreferredTone = core.Tone(tone)
	for _, d := range splitList(workingDays) {
		var wd int
		if _, err := fmt.Sscanf(d, "%d", &wd); err == nil && wd >= 0 && wd <= 6 {
			prefs.Hours.WorkingDays = append(prefs.Hours.WorkingDays, time.Weekday(wd))
		}
	}
	return &prefs, nil
}

// SavePreferences stores scheduling preferences
func (s *SQLiteStore) SavePreferences(ctx context.Context, prefs *core.SchedulingPreferences) error {
	days := make([]string, len(prefs.Hours.WorkingDays))
	for i, d := range prefs.Hours.WorkingDays {
		days[i] = fmt.Sprintf("%d", int(d))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scheduling_preferences
			(sender_email, start_hour, end_hour, working_days, auto_confirm_threshold, preferred_tone)
		VALUES (?, ?, ?, ?, ?, ?)
	`, prefs.SenderEmail, prefs.Hours.StartHour, prefs.Hours.EndHour,
		strings.Join(days, ","), prefs.AutoConfirmThreshold, string(prefs.PreferredTone))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// CountRequestsBySender returns how many requests a sender has made
func (s *SQLiteStore) CountRequestsBySender(ctx context.Context, senderEmail string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meeting_requests WHERE sender_email = ?`, senderEmail).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

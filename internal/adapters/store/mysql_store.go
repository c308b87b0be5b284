package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the SchedulingStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL scheduling store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

func createMySQLSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meeting_requests (
			id VARCHAR(64) PRIMARY KEY,
			sender_email VARCHAR(255) NOT NULL,
			subject TEXT,
			meeting_type VARCHAR(32),
			duration_minutes INT,
			preferred_dates TEXT,
			attendees TEXT,
			location_preference TEXT,
			special_requirements TEXT,
			urgency VARCHAR(16),
			detection_confidence DOUBLE,
			status VARCHAR(16) NOT NULL,
			created_at VARCHAR(40),
			INDEX idx_requests_sender (sender_email)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_holds (
			id VARCHAR(64) PRIMARY KEY,
			request_id VARCHAR(64) NOT NULL,
			start_time VARCHAR(40) NOT NULL,
			end_time VARCHAR(40) NOT NULL,
			holder_email VARCHAR(255),
			status VARCHAR(16) NOT NULL,
			expires_at VARCHAR(40) NOT NULL,
			notes TEXT,
			created_at VARCHAR(40),
			INDEX idx_holds_range (status, start_time, end_time),
			INDEX idx_holds_expiry (status, expires_at),
			INDEX idx_holds_request (request_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduling_workflows (
			id VARCHAR(64) PRIMARY KEY,
			request_id VARCHAR(64) NOT NULL,
			workflow_type VARCHAR(32) NOT NULL,
			current_step VARCHAR(64),
			step_number INT,
			total_steps INT,
			status VARCHAR(16) NOT NULL,
			context TEXT,
			retry_count INT,
			max_retries INT,
			created_at VARCHAR(40),
			updated_at VARCHAR(40)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduling_preferences (
			sender_email VARCHAR(255) PRIMARY KEY,
			start_hour INT,
			end_hour INT,
			working_days VARCHAR(32),
			auto_confirm_threshold DOUBLE,
			preferred_tone VARCHAR(16)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			// Re-running CREATE INDEX inside CREATE TABLE is fine; anything
			// else is a real schema failure
			if !strings.Contains(err.Error(), "Duplicate key name") {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}
	}
	return nil
}

// CreateMeetingRequest persists a new meeting request
func (s *MySQLStore) CreateMeetingRequest(ctx context.Context, req *core.MeetingRequest) error {
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
func (s *MySQLStore) GetMeetingRequest(ctx context.Context, id string) (*core.MeetingRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender_email, subject, meeting_type, duration_minutes, preferred_dates,
			attendees, location_preference, special_requirements, urgency,
			detection_confidence, status, created_at
		FROM meeting_requests WHERE id = ?
	`, id)
	return scanMeetingRequest(row)
}

// UpdateMeetingRequestStatus transitions a meeting request's status
func (s *MySQLStore) UpdateMeetingRequestStatus(ctx context.Context, id string, status core.RequestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE meeting_requests SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update meeting request status: %w", err)
	}
	return requireRow(result)
}

// CreateHoldIfFree atomically creates a hold unless an active or
// confirmed hold already overlaps the range. The overlap rows are locked
// with FOR UPDATE so two racing requests serialize on the range.
func (s *MySQLStore) CreateHoldIfFree(ctx context.Context, hold *core.CalendarHold) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_holds
		WHERE status IN ('active', 'confirmed') AND start_time < ? AND end_time > ?
		FOR UPDATE
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
func (s *MySQLStore) GetHold(ctx context.Context, id string) (*core.CalendarHold, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, start_time, end_time, holder_email, status, expires_at, notes, created_at
		FROM calendar_holds WHERE id = ?
	`, id)
	return scanHold(row)
}

// GetHoldsByRequest returns all holds owned by a meeting request
func (s *MySQLStore) GetHoldsByRequest(ctx context.Context, requestID string) ([]core.CalendarHold, error) {
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
func (s *MySQLStore) UpdateHoldStatus(ctx context.Context, id string, status core.HoldStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE calendar_holds SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}
	return requireRow(result)
}

// ExpireHolds marks active holds whose expiry has passed as expired
func (s *MySQLStore) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
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
func (s *MySQLStore) HasOverlap(ctx context.Context, start, end time.Time) (bool, error) {
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
func (s *MySQLStore) CreateWorkflow(ctx context.Context, wf *core.SchedulingWorkflow) error {
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
func (s *MySQLStore) GetWorkflow(ctx context.Context, id string) (*core.SchedulingWorkflow, error) {
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
func (s *MySQLStore) UpdateWorkflowStep(ctx context.Context, id string, step string, stepNumber int) error {
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
func (s *MySQLStore) UpdateWorkflowStatus(ctx context.Context, id string, status core.WorkflowStatus) error {
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
func (s *MySQLStore) GetPreferences(ctx context.Context, senderEmail string) (*core.SchedulingPreferences, error) {
	prefs, err := s.getPreferencesRow(ctx, senderEmail)
	if err == core.ErrNotFound && senderEmail != "" {
		return s.getPreferencesRow(ctx, "")
	}
	return prefs, err
}

func (s *MySQLStore) getPreferencesRow(ctx context.Context, senderEmail string) (*core.SchedulingPreferences, error) {
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
func (s *MySQLStore) SavePreferences(ctx context.Context, prefs *core.SchedulingPreferences) error {
	days := make([]string, len(prefs.Hours.WorkingDays))
	for i, d := range prefs.Hours.WorkingDays {
		days[i] = fmt.Sprintf("%d", int(d))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduling_preferences
			(sender_email, start_hour, end_hour, working_days, auto_confirm_threshold, preferred_tone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE start_hour = VALUES(start_hour), end_hour = VALUES(end_hour),
			working_days = VALUES(working_days), auto_confirm_threshold = VALUES(auto_confirm_threshold),
			preferred_tone = VALUES(preferred_tone)
	`, prefs.SenderEmail, prefs.Hours.StartHour, prefs.Hours.EndHour,
		strings.Join(days, ","), prefs.AutoConfirmThreshold, string(prefs.PreferredTone))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// CountRequestsBySender returns how many requests a sender has made
func (s *MySQLStore) CountRequestsBySender(ctx context.Context, senderEmail string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meeting_requests WHERE sender_email = ?`, senderEmail).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

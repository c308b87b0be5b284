package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/meeting-scheduler/internal/adapters/calendar"
	"github.com/mikey/meeting-scheduler/internal/config"
	"github.com/mikey/meeting-scheduler/internal/core"
	"go.uber.org/zap"
)

// CalendarFactory creates calendar providers based on configuration
type CalendarFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCalendarFactory creates a new calendar factory
func NewCalendarFactory(cfg *config.Config, logger *zap.Logger) *CalendarFactory {
	return &CalendarFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCalendar creates a calendar provider based on the configuration
func (f *CalendarFactory) CreateCalendar() (core.CalendarProvider, error) {
	calendarType := f.cfg.GetString("calendar.type")

	switch calendarType {
	case "memory":
		return calendar.NewMemoryCalendar(f.logger, f.cfg.GetString("timezone.default_zone")), nil
	case "ics":
		localPath := f.cfg.GetString("calendar.ics_local_path")
		if localPath != "" {
			if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create ICS directory: %w", err)
			}
		}
		refresh, err := f.cfg.GetDuration("calendar.ics_refresh")
		if err != nil {
			return nil, fmt.Errorf("invalid ICS refresh interval: %w", err)
		}
		return calendar.NewICSCalendar(
			f.cfg.GetString("calendar.ics_feed_url"),
			localPath,
			refresh,
			f.logger,
		)
	default:
		return nil, fmt.Errorf("unsupported calendar type: %s", calendarType)
	}
}

// GetAccount returns the configured calendar account name
func (f *CalendarFactory) GetAccount() string {
	return f.cfg.GetString("calendar.account")
}

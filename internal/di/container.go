package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/meeting-scheduler/internal/adapters/ingress"
	"github.com/mikey/meeting-scheduler/internal/availability"
	"github.com/mikey/meeting-scheduler/internal/config"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/extractor"
	"github.com/mikey/meeting-scheduler/internal/factory"
	"github.com/mikey/meeting-scheduler/internal/logging"
	"github.com/mikey/meeting-scheduler/internal/response"
	"github.com/mikey/meeting-scheduler/internal/retry"
	"github.com/mikey/meeting-scheduler/internal/scheduler"
	"github.com/mikey/meeting-scheduler/internal/sender"
	"github.com/mikey/meeting-scheduler/internal/temporal"
	"github.com/mikey/meeting-scheduler/internal/timezone"
	"github.com/mikey/meeting-scheduler/internal/utils"
	"github.com/mikey/meeting-scheduler/internal/workflow"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCalendarFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewIngressFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register intent classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.IntentClassifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}

	// Register scheduling store
	if err := container.Provide(func(f *factory.StoreFactory) (core.SchedulingStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	// Register calendar provider
	if err := container.Provide(func(f *factory.CalendarFactory) (core.CalendarProvider, error) {
		return f.CreateCalendar()
	}); err != nil {
		return nil, err
	}

	// Register temporal parser
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*temporal.Parser, error) {
		schedCfg, err := cfg.GetScheduler()
		if err != nil {
			return nil, err
		}
		return temporal.NewParser(logger, schedCfg.EveningCutoffHour), nil
	}); err != nil {
		return nil, err
	}

	// Register timezone resolver
	if err := container.Provide(func(calendar core.CalendarProvider, parser *temporal.Parser, cfg *config.Config, logger *zap.Logger) *timezone.Resolver {
		return timezone.NewResolver(calendar, parser, logger, cfg.GetString("timezone.default_zone"))
	}); err != nil {
		return nil, err
	}

	// Register availability resolver
	if err := container.Provide(availability.NewResolver); err != nil {
		return nil, err
	}

	// Register meeting request extractor
	if err := container.Provide(func(classifier core.IntentClassifier, parser *temporal.Parser, cfg *config.Config, logger *zap.Logger) (*extractor.Extractor, error) {
		schedCfg, err := cfg.GetScheduler()
		if err != nil {
			return nil, err
		}
		policy := retry.DefaultPolicy()
		policy.MaxAttempts = schedCfg.MaxRetries
		return extractor.NewExtractor(
			classifier,
			parser,
			logger,
			policy,
			cfg.GetClassifier().MinConfidence,
			schedCfg.DefaultDurationMinutes,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register workflow engine
	if err := container.Provide(func(
		store core.SchedulingStore,
		calendar core.CalendarProvider,
		slots *availability.Resolver,
		zones *timezone.Resolver,
		cfg *config.Config,
		logger *zap.Logger,
	) (*workflow.Engine, error) {
		schedCfg, err := cfg.GetScheduler()
		if err != nil {
			return nil, err
		}
		return workflow.NewEngine(store, calendar, slots, zones, logger, workflow.Config{
			HoldExpiry:           schedCfg.HoldExpiry,
			MaxSuggestions:       schedCfg.MaxSuggestions,
			AutoConfirmThreshold: schedCfg.AutoConfirmThreshold,
			MaxRetries:           schedCfg.MaxRetries,
		}), nil
	}); err != nil {
		return nil, err
	}

	// Register hold-expiry sweeper
	if err := container.Provide(func(store core.SchedulingStore, cfg *config.Config, logger *zap.Logger) (*workflow.Sweeper, error) {
		schedCfg, err := cfg.GetScheduler()
		if err != nil {
			return nil, err
		}
		return workflow.NewSweeper(store, logger, schedCfg.SweepSchedule), nil
	}); err != nil {
		return nil, err
	}

	// Register sender classifier
	if err := container.Provide(func(cfg *config.Config, store core.SchedulingStore, logger *zap.Logger) *sender.Classifier {
		knownDomains := cfg.GetStringSlice("sender.known_domains")
		if len(knownDomains) > 0 {
			logger.Info("Loaded known sender domains", zap.Strings("domains", knownDomains))
		}
		return sender.NewClassifier(knownDomains, store, logger)
	}); err != nil {
		return nil, err
	}

	// Register response generator
	if err := container.Provide(func(
		calendar core.CalendarProvider,
		store core.SchedulingStore,
		slots *availability.Resolver,
		zones *timezone.Resolver,
		cfg *config.Config,
		logger *zap.Logger,
	) *response.Generator {
		return response.NewGenerator(calendar, store, slots, zones, logger, cfg.GetString("response.user_name"))
	}); err != nil {
		return nil, err
	}

	// Register scheduling service
	if err := container.Provide(func(
		ext *extractor.Extractor,
		generator *response.Generator,
		engine *workflow.Engine,
		senders *sender.Classifier,
		zones *timezone.Resolver,
		store core.SchedulingStore,
		cfg *config.Config,
		logger *zap.Logger,
	) *scheduler.Service {
		return scheduler.NewService(
			ext,
			generator,
			engine,
			senders,
			zones,
			store,
			logger,
			cfg.GetString("user.id"),
			cfg.GetString("calendar.account"),
			cfg.GetBusinessHours(),
		)
	}); err != nil {
		return nil, err
	}

	// Register SMTP ingress
	if err := container.Provide(func(f *factory.IngressFactory) *ingress.SMTPIngress {
		return f.CreateIngress()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mikey/meeting-scheduler/internal/adapters/calendar"
	"github.com/mikey/meeting-scheduler/internal/adapters/store"
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
	"github.com/mikey/meeting-scheduler/internal/workflow"
	"go.uber.org/zap"
)

var (
	// Classifier provider flags
	provider    = flag.String("provider", "openai", "Classifier provider (bedrock, gemini, openai)")
	maxTokens   = flag.Int("max-tokens", 1000, "Maximum tokens for classifier response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for classifier generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for classifier generation")
	maxBodySize = flag.Int("max-body-size", 4096, "Maximum email body size to send to the classifier")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4", "OpenAI model name")

	// Scheduling flags
	minConfidence = flag.Float64("min-confidence", 0.6, "Minimum detection confidence")
	userZone      = flag.String("zone", "UTC", "IANA timezone of the calendar owner")
	knownDomains  = flag.String("known-domains", "", "Comma-separated list of known sender domains")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	// Initialize pipeline components against in-memory backends so a
	// single run leaves nothing behind
	textProcessor := factory.NewTextProcessorFactory(logger).CreateTextProcessor()
	classifierFactory := factory.NewClassifierFactory(cfg, logger, textProcessor)
	classifier, err := classifierFactory.CreateClassifier()
	if err != nil {
		logger.Fatal("Failed to create classifier", zap.Error(err))
	}

	schedCfg, err := cfg.GetScheduler()
	if err != nil {
		logger.Fatal("Failed to load scheduler configuration", zap.Error(err))
	}

	schedStore := store.NewMemoryStore(logger)
	cal := calendar.NewMemoryCalendar(logger, cfg.GetString("timezone.default_zone"))
	parser := temporal.NewParser(logger, schedCfg.EveningCutoffHour)
	zones := timezone.NewResolver(cal, parser, logger, cfg.GetString("timezone.default_zone"))
	slots := availability.NewResolver(cal, schedStore, zones, logger)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = schedCfg.MaxRetries
	ext := extractor.NewExtractor(classifier, parser, logger, policy,
		cfg.GetClassifier().MinConfidence, schedCfg.DefaultDurationMinutes)

	engine := workflow.NewEngine(schedStore, cal, slots, zones, logger, workflow.Config{
		HoldExpiry:           schedCfg.HoldExpiry,
		MaxSuggestions:       schedCfg.MaxSuggestions,
		AutoConfirmThreshold: schedCfg.AutoConfirmThreshold,
		MaxRetries:           schedCfg.MaxRetries,
	})

	senders := sender.NewClassifier(cfg.GetStringSlice("sender.known_domains"), schedStore, logger)
	generator := response.NewGenerator(cal, schedStore, slots, zones, logger, cfg.GetString("response.user_name"))

	service := scheduler.NewService(
		ext, generator, engine, senders, zones, schedStore, logger,
		cfg.GetString("user.id"),
		cfg.GetString("calendar.account"),
		cfg.GetBusinessHours(),
	)

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	to := msg.Header.Get("To")
	subject := msg.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	body := string(bodyBytes)

	email := &core.Email{
		From:    from,
		To:      strings.Split(to, ","),
		Subject: subject,
		Body:    body,
		Headers: make(map[string][]string),
	}
	for k, v := range msg.Header {
		email.Headers[k] = v
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("To: %s\n", to)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(body))
	fmt.Printf("\n")

	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("classifier.provider"))
	fmt.Printf("Min confidence: %.2f\n", cfg.GetClassifier().MinConfidence)

	startTime := time.Now()

	result, err := service.ProcessEmail(context.Background(), email)
	if err != nil {
		logger.Fatal("Failed to process email", zap.Error(err))
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	if result == nil {
		fmt.Printf("Meeting request: false\n")
		fmt.Printf("Processing time: %v\n", duration)
		closeClassifier(classifier, logger)
		return
	}

	req := result.Request
	fmt.Printf("Meeting request: true\n")
	fmt.Printf("Detection confidence: %.1f\n", req.DetectionConfidence)
	fmt.Printf("Meeting type: %s\n", req.MeetingType)
	fmt.Printf("Urgency: %s\n", req.Urgency)
	fmt.Printf("Duration: %d minutes\n", req.DurationMinutes)
	if len(req.PreferredDates) > 0 {
		fmt.Printf("Preferred dates:\n")
		for _, d := range req.PreferredDates {
			fmt.Printf("  - %s\n", d)
		}
	}
	if len(req.Attendees) > 0 {
		fmt.Printf("Attendees: %s\n", strings.Join(req.Attendees, ", "))
	}

	if resp := result.Response; resp != nil {
		fmt.Printf("\n=== Drafted Reply ===\n")
		fmt.Printf("Action: %s\n", resp.Action)
		fmt.Printf("Event status: %s\n", resp.EventStatus)
		if resp.SuggestedTime != nil {
			fmt.Printf("Suggested time: %s\n", resp.SuggestedTime.Start.Format(time.RFC1123))
		}
		for i, alt := range resp.Alternatives {
			fmt.Printf("Alternative %d: %s (confidence %.0f)\n", i+1, alt.Start.Format(time.RFC1123), alt.Confidence)
		}
		fmt.Printf("\n%s\n", resp.EmailContent)
	}

	if wf := result.Workflow; wf != nil {
		fmt.Printf("\n=== Workflow ===\n")
		fmt.Printf("Type: %s\n", wf.Type)
		fmt.Printf("Status: %s\n", wf.Status)
		fmt.Printf("Step: %s (%d/%d)\n", wf.CurrentStep, wf.StepNumber, wf.TotalSteps)
	}

	fmt.Printf("\nProcessing time: %v\n", duration)

	closeClassifier(classifier, logger)
}

func closeClassifier(classifier core.IntentClassifier, logger *zap.Logger) {
	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close classifier client", zap.Error(err))
		}
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("classifier.provider", *provider)
	v.Set("classifier.min_confidence", *minConfidence)

	switch *provider {
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	}

	v.Set("timezone.default_zone", *userZone)

	if *knownDomains != "" {
		domains := strings.Split(*knownDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("sender.known_domains", domains)
	} else {
		v.Set("sender.known_domains", []string{})
	}

	return config.NewFromViper(v)
}

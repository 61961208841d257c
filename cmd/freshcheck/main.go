package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/docker/go-units"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/freshcheck/internal/checker"
	"github.com/zombor/freshcheck/internal/dates"
	"github.com/zombor/freshcheck/internal/reminder"
	"github.com/zombor/freshcheck/internal/scanning"
	"github.com/zombor/freshcheck/internal/scanning/tesseract"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// defaultDBPath leaves persistence off unless --db is given
const defaultDBPath = ""

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("freshcheck")
	var (
		port             = fs.IntLong("port", 8080, "HTTP server port")
		dbPath           = fs.StringLong("db", defaultDBPath, "Subscription database file path (default: keep subscriptions in memory)")
		archivePath      = fs.StringLong("archive", "", "Directory for photos whose check failed (optional)")
		recognizerType   = fs.StringLong("recognizer", "tesseract", "Recognizer: 'tesseract', 'gemini' or 'ollama'")
		tesseractLangs   = fs.StringLong("tesseract-langs", "eng,rus", "Comma-separated Tesseract languages")
		geminiKey        = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL        = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel      = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		threshold        = fs.StringLong("threshold", string(scanning.ThresholdAdaptive), "Binarization: 'adaptive' or 'otsu'")
		minDimension     = fs.IntLong("min-dimension", 500, "Images smaller than this on either side are upscaled 2x")
		timezone         = fs.StringLong("timezone", "Europe/Moscow", "Time zone that defines 'today'")
		reminderInterval = fs.DurationLong("reminder-interval", 2*time.Hour, "Interval between reminders")
		recognizeTimeout = fs.DurationLong("recognize-timeout", 30*time.Second, "Timeout for one recognition call")
		requireSub       = fs.BoolLong("require-subscription", "Only check photos from subscribed conversations")
		digitsOnly       = fs.BoolLong("digits-only", "Restrict recognition to digits and date separators")
		webhookURL       = fs.StringLong("webhook-url", "", "Deliver reminders by POSTing JSON here (default: log them)")
		authUser         = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass         = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		maxUpload        = fs.StringLong("max-upload", "20MB", "Largest accepted photo upload (e.g. 10MB)")
		_                = fs.StringLong("config", "", "Config file with one 'flag value' pair per line (optional)")
		logLevel         = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion      = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FRESHCHECK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	uploadLimit, err := units.FromHumanSize(*maxUpload)
	if err != nil {
		slog.Error("Invalid max upload size", "value", *maxUpload, "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}

	preprocessCfg := scanning.DefaultPreprocessConfig()
	preprocessCfg.Threshold = scanning.Threshold(*threshold)
	preprocessCfg.MinDimension = *minDimension
	preprocessor, err := scanning.NewPreprocessor(preprocessCfg)
	if err != nil {
		slog.Error("Invalid preprocessing configuration", "error", err)
		os.Exit(1)
	}

	languages := splitList(*tesseractLangs)

	// Initialize recognizer based on type
	var recognizer scanning.Recognizer
	switch *recognizerType {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "languages", languages)
		recognizer = tesseract.New(languages...)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid recognizer type", "type", *recognizerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer recognizer.Close()

	var store reminder.Store
	if *dbPath != "" {
		slog.Info("Initializing database...", "path", *dbPath)
		db, err := reminder.NewBoltDB(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db
	}

	var archive checker.Storage
	if *archivePath != "" {
		slog.Info("Initializing photo archive...", "path", *archivePath)
		archive, err = checker.NewLocalStorage(*archivePath)
		if err != nil {
			slog.Error("Failed to initialize archive", "error", err)
			os.Exit(1)
		}
	}

	var messenger checker.Messenger = checker.LogMessenger{}
	if *webhookURL != "" {
		messenger, err = checker.NewWebhookMessenger(*webhookURL)
		if err != nil {
			slog.Error("Failed to initialize webhook messenger", "error", err)
			os.Exit(1)
		}
	}

	service, err := checker.NewService(checker.Dependencies{
		Preprocessor: preprocessor,
		Recognizer:   recognizer,
		Registry:     reminder.NewRegistry(store),
		Messenger:    messenger,
		Clock:        dates.NewClock(loc),
		Archive:      archive,
	}, checker.Config{
		Hints: scanning.Hints{
			DigitsOnly: *digitsOnly,
			Languages:  languages,
		},
		RecognizeTimeout:    *recognizeTimeout,
		ReminderInterval:    *reminderInterval,
		RequireSubscription: *requireSub,
	})
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer service.Close()

	if err := service.Restore(); err != nil {
		slog.Error("Failed to restore subscriptions", "error", err)
		os.Exit(1)
	}

	server := checker.NewServer(service, checker.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})
	server.SetMaxUploadSize(uploadLimit)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "timezone", loc.String())
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("Server shutdown", "error", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

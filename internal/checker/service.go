package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/freshcheck/internal/dates"
	"github.com/zombor/freshcheck/internal/reminder"
	"github.com/zombor/freshcheck/internal/scanning"
)

const (
	defaultRecognizeTimeout = 30 * time.Second
	defaultReminderInterval = 2 * time.Hour
	sendTimeout             = 30 * time.Second
)

// Config holds the service policies
type Config struct {
	Hints               scanning.Hints
	RecognizeTimeout    time.Duration
	ReminderInterval    time.Duration
	RequireSubscription bool
}

// Dependencies are the collaborators of a Service. Archive may be nil.
type Dependencies struct {
	Preprocessor *scanning.Preprocessor
	Recognizer   scanning.Recognizer
	Registry     *reminder.Registry
	Messenger    Messenger
	Clock        dates.Clock
	Archive      Storage
	IDGenerator  IDGenerator
}

// CheckResult is the outcome of one photo check
type CheckResult struct {
	RecognizedText string           `json:"recognized_text"`
	Candidate      *dates.Candidate `json:"candidate,omitempty"`
	Freshness      *dates.Freshness `json:"freshness,omitempty"`
}

// Reply is the user-visible answer to an inbound event
type Reply struct {
	Text         string                 `json:"reply"`
	Result       *CheckResult           `json:"result,omitempty"`
	Subscription *reminder.Subscription `json:"subscription,omitempty"`
}

// Service runs photo checks and manages reminder subscriptions
type Service struct {
	preprocessor *scanning.Preprocessor
	recognizer   scanning.Recognizer
	extractor    *dates.Extractor
	clock        dates.Clock
	registry     *reminder.Registry
	scheduler    *reminder.Scheduler
	messenger    Messenger
	archive      Storage
	idGenerator  IDGenerator
	cfg          Config

	// subscriptions keeps the registry and the scheduler in step per conversation
	subscriptions keyedMutex
}

// NewService wires a Service and its reminder scheduler
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Preprocessor == nil || deps.Recognizer == nil || deps.Registry == nil || deps.Messenger == nil {
		return nil, fmt.Errorf("preprocessor, recognizer, registry and messenger are required")
	}
	if cfg.RecognizeTimeout <= 0 {
		cfg.RecognizeTimeout = defaultRecognizeTimeout
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = defaultReminderInterval
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = &defaultIDGenerator{}
	}

	s := &Service{
		preprocessor: deps.Preprocessor,
		recognizer:   deps.Recognizer,
		extractor:    dates.NewExtractor(deps.Clock),
		clock:        deps.Clock,
		registry:     deps.Registry,
		messenger:    deps.Messenger,
		archive:      deps.Archive,
		idGenerator:  deps.IDGenerator,
		cfg:          cfg,
	}

	scheduler, err := reminder.NewScheduler(cfg.ReminderInterval, s.remind)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	s.scheduler = scheduler
	return s, nil
}

// Restore loads persisted subscriptions and reinstalls their reminder jobs
func (s *Service) Restore() error {
	if err := s.registry.Load(); err != nil {
		return fmt.Errorf("restoring subscriptions: %w", err)
	}
	subs := s.registry.List()
	for _, sub := range subs {
		unlock := s.subscriptions.Lock(sub.ConversationID)
		if s.registry.IsSubscribed(sub.ConversationID) {
			s.scheduler.Schedule(sub.ConversationID)
		}
		unlock()
	}
	slog.Info("Restored subscriptions", "count", len(subs))
	return nil
}

// Close stops every reminder job
func (s *Service) Close() {
	s.scheduler.Stop()
}

// Check runs the pipeline on one photo. For ErrNoTextFound and ErrNoDateFound
// the partial result is returned alongside the error.
func (s *Service) Check(ctx context.Context, conversationID string, data []byte, contentType string) (*CheckResult, error) {
	if s.cfg.RequireSubscription && !s.registry.IsSubscribed(conversationID) {
		return nil, ErrNotSubscribed
	}

	prepared, err := s.preprocessor.Prepare(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RecognizeTimeout)
	defer cancel()
	text, err := s.recognizer.Recognize(rctx, prepared, s.cfg.Hints)
	if err != nil {
		if !errors.Is(err, scanning.ErrRecognitionUnavailable) {
			err = fmt.Errorf("%w: %w", scanning.ErrRecognitionUnavailable, err)
		}
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	result := &CheckResult{RecognizedText: text.String()}
	if text.Empty() {
		return result, ErrNoTextFound
	}

	candidate := s.extractor.Extract(result.RecognizedText)
	if candidate == nil {
		return result, ErrNoDateFound
	}
	freshness := dates.Evaluate(candidate.Date, s.clock.Today())
	result.Candidate = candidate
	result.Freshness = &freshness
	return result, nil
}

// HandlePhoto checks a photo and always returns a user-visible reply
func (s *Service) HandlePhoto(ctx context.Context, conversationID string, data []byte, contentType string) Reply {
	result, err := s.Check(ctx, conversationID, data, contentType)
	if err != nil {
		slog.Warn("Photo check failed",
			"conversation_id", conversationID,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if errors.Is(err, ErrNoTextFound) || errors.Is(err, ErrNoDateFound) {
			s.archivePhoto(conversationID, data, contentType)
		}
	}

	if !errors.Is(err, ErrNotSubscribed) {
		s.registry.RecordCheck(conversationID, summarize(result, err))
	}
	return Reply{Text: replyText(result, err), Result: result}
}

// HandleSubscribe subscribes a conversation and (re)installs its reminder job
func (s *Service) HandleSubscribe(ctx context.Context, conversationID string) Reply {
	unlock := s.subscriptions.Lock(conversationID)
	defer unlock()

	created, err := s.registry.Subscribe(conversationID)
	if err != nil {
		slog.Error("Failed to subscribe", "conversation_id", conversationID, "error", err)
		return Reply{Text: "Could not subscribe right now. Please try again."}
	}
	s.scheduler.Schedule(conversationID)

	sub, _ := s.registry.Status(conversationID)
	if !created {
		return Reply{
			Text:         fmt.Sprintf("You are already subscribed. Reminders restart every %s from now.", formatInterval(s.cfg.ReminderInterval)),
			Subscription: &sub,
		}
	}
	slog.Info("Conversation subscribed", "conversation_id", conversationID)
	return Reply{
		Text:         fmt.Sprintf("Hi! Send a photo of a package and I will read the date and compare it with today. I will remind you to check every %s; send /stop to unsubscribe.", formatInterval(s.cfg.ReminderInterval)),
		Subscription: &sub,
	}
}

// HandleUnsubscribe removes a conversation and stops its reminders
func (s *Service) HandleUnsubscribe(ctx context.Context, conversationID string) Reply {
	unlock := s.subscriptions.Lock(conversationID)
	defer unlock()

	removed, err := s.registry.Unsubscribe(conversationID)
	if err != nil {
		slog.Error("Failed to unsubscribe", "conversation_id", conversationID, "error", err)
		return Reply{Text: "Could not unsubscribe right now. Please try again."}
	}
	s.scheduler.Cancel(conversationID)
	if !removed {
		return Reply{Text: "You are not subscribed."}
	}
	slog.Info("Conversation unsubscribed", "conversation_id", conversationID)
	return Reply{Text: "Unsubscribed. No more reminders."}
}

// HandleStatusQuery returns the conversation's subscription, if any
func (s *Service) HandleStatusQuery(conversationID string) (reminder.Subscription, bool) {
	return s.registry.Status(conversationID)
}

// statusReply renders HandleStatusQuery as text
func (s *Service) statusReply(conversationID string) Reply {
	sub, ok := s.HandleStatusQuery(conversationID)
	if !ok {
		return Reply{Text: "You are not subscribed. Send /start to subscribe."}
	}
	text := fmt.Sprintf("Subscribed since %s.", sub.SubscribedAt.Format(time.RFC3339))
	if sub.LastCheckedAt != nil {
		text += fmt.Sprintf(" Last check %s: %s.", sub.LastCheckedAt.Format(time.RFC3339), sub.LastResult)
	} else {
		text += " No photo checked yet."
	}
	return Reply{Text: text, Subscription: &sub}
}

// remind is the scheduler action for one conversation
func (s *Service) remind(ctx context.Context, conversationID string) {
	if !s.registry.IsSubscribed(conversationID) {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.messenger.Send(sctx, conversationID, reminderText); err != nil {
		slog.Warn("Failed to send reminder", "conversation_id", conversationID, "error", err)
	}
}

func (s *Service) archivePhoto(conversationID string, data []byte, contentType string) {
	if s.archive == nil || len(data) == 0 {
		return
	}
	name := fmt.Sprintf("%s_%s%s", s.idGenerator.Generate(), sanitizeName(conversationID), extensionFor(contentType))
	if _, err := s.archive.Save(name, data); err != nil {
		slog.Warn("Failed to archive photo", "filename", name, "error", err)
	}
}

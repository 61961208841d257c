package reminder

import "time"

// Subscription records a conversation that opted into periodic reminders
type Subscription struct {
	ConversationID string     `json:"conversation_id"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	LastResult     string     `json:"last_result,omitempty"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

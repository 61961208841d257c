package checker

import (
	"context"
	"strings"
)

// Event is an inbound message for a conversation: PhotoEvent or CommandEvent
type Event interface {
	isEvent()
}

// PhotoEvent carries a photo to check
type PhotoEvent struct {
	ConversationID string
	Data           []byte
	ContentType    string
}

// CommandEvent carries a parsed text command
type CommandEvent struct {
	ConversationID string
	Command        Command
}

func (PhotoEvent) isEvent()   {}
func (CommandEvent) isEvent() {}

// Command is a text command understood by the service
type Command int

const (
	CommandUnknown Command = iota
	CommandStart
	CommandStop
	CommandStatus
	CommandHelp
)

// ParseCommand recognizes /start, /stop, /status and /help, tolerating a
// "@botname" suffix and trailing arguments
func ParseCommand(text string) Command {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return CommandUnknown
	}
	name, _, _ := strings.Cut(fields[0], "@")
	switch name {
	case "/start", "/subscribe":
		return CommandStart
	case "/stop", "/unsubscribe":
		return CommandStop
	case "/status":
		return CommandStatus
	case "/help":
		return CommandHelp
	}
	return CommandUnknown
}

// Dispatch routes an event to the matching entry point
func (s *Service) Dispatch(ctx context.Context, ev Event) Reply {
	switch e := ev.(type) {
	case PhotoEvent:
		return s.HandlePhoto(ctx, e.ConversationID, e.Data, e.ContentType)
	case CommandEvent:
		switch e.Command {
		case CommandStart:
			return s.HandleSubscribe(ctx, e.ConversationID)
		case CommandStop:
			return s.HandleUnsubscribe(ctx, e.ConversationID)
		case CommandStatus:
			return s.statusReply(e.ConversationID)
		}
	}
	return Reply{Text: helpText}
}

// Package scene implements per-user conversation scenes on top of a session store.
//
// Every inbound event runs one load-mutate-store cycle under a per-user lock:
// the session is read once, handlers mutate it through Context, and the result
// is written back once when the event is done.
package scene

import (
	"context"
	"errors"
	"strings"
)

// ID names a scene. None means no scene is active.
type ID string

// None is the state outside of any scene.
const None ID = ""

var (
	// ErrUnhandled is returned when no handler accepts the event.
	ErrUnhandled = errors.New("scene: event not handled")
	// ErrUnknownScene is returned when entering a scene that is not registered.
	ErrUnknownScene = errors.New("scene: unknown scene")
	// ErrTransitionLimit stops runaway enter chains within one event.
	ErrTransitionLimit = errors.New("scene: too many transitions")
)

// EventKind is the closed set of inbound event kinds.
type EventKind int

const (
	// EventCommand is a slash command such as /start.
	EventCommand EventKind = iota + 1
	// EventText is a plain text message.
	EventText
	// EventAction is an inline button press.
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventAction:
		return "action"
	default:
		return "unknown"
	}
}

// Event is one inbound update reduced to what the engine routes on.
type Event struct {
	Kind EventKind
	Name string // command or action id
	Text string
}

// CommandEvent builds a command event; a leading slash is dropped.
func CommandEvent(name, payload string) Event {
	return Event{Kind: EventCommand, Name: strings.TrimPrefix(name, "/"), Text: payload}
}

// TextEvent builds a text event.
func TextEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

// ActionEvent builds a button-press event.
func ActionEvent(name string) Event {
	return Event{Kind: EventAction, Name: name}
}

// Handler runs inside a scene context.
type Handler func(*Context) error

// Scene is one conversation step. OnEnter is required.
type Scene struct {
	ID      ID
	OnEnter Handler
	OnText  Handler
	OnLeave Handler
}

// Button is an inline keyboard button: either a callback Action or a URL link.
type Button struct {
	Text   string
	Action string
	URL    string
}

// Message is an outbound reply.
type Message struct {
	Text     string
	Markdown bool
	Buttons  [][]Button
}

// Replier delivers replies to the user who sent the event.
type Replier interface {
	Reply(ctx context.Context, msg Message) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, msg Message) error

// Reply calls f.
func (f ReplierFunc) Reply(ctx context.Context, msg Message) error { return f(ctx, msg) }

// User identifies the chat user behind an event.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName prefers the username and falls back to "first last".
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

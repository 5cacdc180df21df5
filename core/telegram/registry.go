package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds command metadata and the set of known callback actions.
type Registry struct {
	commands map[string]commands.Command
	actions  map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		actions:  make(map[string]struct{}),
	}
}

// RegisterCommand adds a command; name must start with '/'.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	ctx := context.Background()
	switch {
	case name == "" || cmd.Description == "":
		logger.Warn(ctx, logger.CompWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("telegram: invalid command %q", name)
	case name[0] != '/':
		logger.Warn(ctx, logger.CompWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return fmt.Errorf("telegram: command %q must start with /", name)
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(ctx, logger.CompWire, "register.command.duplicate", slog.String("name", name))
		return fmt.Errorf("telegram: command already registered: %s", name)
	}
	r.commands[name] = cmd
	return nil
}

// RegisterAction marks key as a known callback action.
func (r *Registry) RegisterAction(key string) error {
	if key == "" {
		return errors.New("telegram: empty action key")
	}
	if _, exists := r.actions[key]; exists {
		logger.Warn(context.Background(), logger.CompWire, "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("telegram: action already registered: %s", key)
	}
	r.actions[key] = struct{}{}
	return nil
}

// HasAction reports whether key was registered.
func (r *Registry) HasAction(key string) bool {
	_, ok := r.actions[key]
	return ok
}

// ListCommands returns commands sorted by name, optionally without hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves name or one of its aliases to the canonical command.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", commands.Command{}, false
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// Commands returns the registered command names, sorted.
func (r *Registry) Commands() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the registered action keys, sorted.
func (r *Registry) Actions() []string {
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every registered command and action has a handler
// among the given names. Names are engine keys without a slash.
func (r *Registry) Validate(handledCommands, handledActions []string) error {
	known := make(map[string]bool, len(handledCommands)+len(handledActions))
	for _, c := range handledCommands {
		known["/"+c] = true
	}
	for _, a := range handledActions {
		known["\f"+a] = true
	}
	var errs []error
	for _, name := range r.Commands() {
		if !known[name] {
			errs = append(errs, fmt.Errorf("command %s has no handler", name))
		}
	}
	for _, key := range r.Actions() {
		if !known["\f"+key] {
			errs = append(errs, fmt.Errorf("action %s has no handler", key))
		}
	}
	return errors.Join(errs...)
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	ctx := context.Background()
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, logger.CompWire, "register.commands.set_failed", logger.Err(err))
		return
	}
	logger.Info(ctx, logger.CompWire, "register.commands", slog.Int("commands", len(list)))
}

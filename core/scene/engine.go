package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/session"
)

// Config describes the scene table. New validates it.
type Config struct {
	Store    session.Store
	Locker   *session.Locker
	Scenes   []Scene
	Commands map[string]Handler
	Actions  map[string]Handler
	Now      func() time.Time
}

// Engine routes events to commands, actions and the active scene.
type Engine struct {
	store    session.Store
	locker   *session.Locker
	scenes   map[ID]Scene
	commands map[string]Handler
	actions  map[string]Handler
	now      func() time.Time
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("scene: session store is required")
	}
	e := &Engine{
		store:    cfg.Store,
		locker:   cfg.Locker,
		scenes:   make(map[ID]Scene, len(cfg.Scenes)),
		commands: make(map[string]Handler, len(cfg.Commands)),
		actions:  make(map[string]Handler, len(cfg.Actions)),
		now:      cfg.Now,
	}
	if e.locker == nil {
		e.locker = session.NewLocker()
	}
	if e.now == nil {
		e.now = time.Now
	}

	var errs []error
	for _, sc := range cfg.Scenes {
		switch {
		case sc.ID == None:
			errs = append(errs, errors.New("scene with empty id"))
		case sc.OnEnter == nil:
			errs = append(errs, fmt.Errorf("scene %q: OnEnter is required", sc.ID))
		}
		if _, dup := e.scenes[sc.ID]; dup {
			errs = append(errs, fmt.Errorf("scene %q registered twice", sc.ID))
		}
		e.scenes[sc.ID] = sc
	}
	for name, h := range cfg.Commands {
		if name == "" || h == nil {
			errs = append(errs, fmt.Errorf("command %q: name and handler are required", name))
		}
		e.commands[name] = h
	}
	for name, h := range cfg.Actions {
		if name == "" || h == nil {
			errs = append(errs, fmt.Errorf("action %q: name and handler are required", name))
		}
		e.actions[name] = h
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("scene: invalid config: %w", errors.Join(errs...))
	}
	return e, nil
}

// Commands lists registered command names in order.
func (e *Engine) Commands() []string { return sortedKeys(e.commands) }

// Actions lists registered action names in order.
func (e *Engine) Actions() []string { return sortedKeys(e.actions) }

// Handle processes one event for user. Unmatched events return ErrUnhandled
// so the caller can pick a fallback reply.
func (e *Engine) Handle(ctx context.Context, user User, r Replier, ev Event) error {
	return e.run(ctx, user, r, ev, func(c *Context) error {
		switch ev.Kind {
		case EventCommand:
			if h := e.commands[ev.Name]; h != nil {
				return h(c)
			}
		case EventAction:
			if h := e.actions[ev.Name]; h != nil {
				return h(c)
			}
		case EventText:
			current := c.Scene()
			if current == None {
				break
			}
			sc, ok := e.scenes[current]
			if !ok {
				// stored by an older build; drop it
				c.d.session.Scene = string(None)
				break
			}
			if sc.OnText != nil {
				return sc.OnText(c)
			}
		default:
			return fmt.Errorf("scene: unsupported event kind %d", ev.Kind)
		}
		return fmt.Errorf("%w: %s %q", ErrUnhandled, ev.Kind, ev.Name)
	})
}

// EnterScene enters id for user outside of any handler.
func (e *Engine) EnterScene(ctx context.Context, user User, r Replier, id ID, args any) error {
	return e.run(ctx, user, r, Event{}, func(c *Context) error {
		return c.Enter(id, args)
	})
}

// LeaveScene leaves the active scene for user outside of any handler.
func (e *Engine) LeaveScene(ctx context.Context, user User, r Replier) error {
	return e.run(ctx, user, r, Event{}, func(c *Context) error {
		return c.Leave()
	})
}

// Current returns the stored scene for userID.
func (e *Engine) Current(ctx context.Context, userID int64) (ID, error) {
	s, err := e.store.Get(ctx, userID)
	if err != nil {
		return None, err
	}
	return ID(s.Scene), nil
}

func (e *Engine) run(ctx context.Context, user User, r Replier, ev Event, fn Handler) error {
	unlock, err := e.locker.Lock(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("scene: lock user %d: %w", user.ID, err)
	}
	defer unlock()

	loaded, err := e.store.Get(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("scene: load session: %w", err)
	}
	loaded.UserID = user.ID
	current := loaded

	ctx = logger.WithScene(ctx, loaded.Scene)
	c := &Context{d: &dispatch{
		ctx:     ctx,
		engine:  e,
		user:    user,
		session: &current,
		replier: r,
		event:   ev,
	}}

	start := time.Now()
	handleErr := fn(c)
	storeErr := e.persist(ctx, loaded, current)

	if ev.Kind != 0 {
		attrs := []slog.Attr{
			slog.String("status", logger.Status(handleErr)),
			slog.String("kind", ev.Kind.String()),
			slog.String("scene", current.Scene),
			slog.Duration("duration", time.Since(start)),
		}
		if ev.Name != "" {
			attrs = append(attrs, slog.String("op", ev.Name))
		}
		if handleErr != nil && !errors.Is(handleErr, ErrUnhandled) {
			attrs = append(attrs, logger.Err(handleErr))
		}
		logger.Debug(ctx, logger.CompScene, "scene.dispatch", attrs...)
	}
	return errors.Join(handleErr, storeErr)
}

// persist writes the session once; a session back at default is deleted instead.
func (e *Engine) persist(ctx context.Context, loaded, current session.Session) error {
	changed := loaded.Scene != current.Scene || loaded.ChangingSpreadsheet != current.ChangingSpreadsheet
	if current.IsDefault() {
		if !changed {
			return nil
		}
		if err := e.store.Delete(ctx, current.UserID); err != nil {
			return fmt.Errorf("scene: delete session: %w", err)
		}
		return nil
	}
	current.UpdatedAt = e.now().UTC()
	if err := e.store.Set(ctx, current); err != nil {
		return fmt.Errorf("scene: store session: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]Handler) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package scene

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/session"
)

// maxTransitions bounds Enter calls per event.
const maxTransitions = 8

// dispatch is the state shared by every Context of one event.
type dispatch struct {
	ctx         context.Context
	engine      *Engine
	user        User
	session     *session.Session
	replier     Replier
	event       Event
	transitions int
}

// Context is handed to scene, command and action handlers.
type Context struct {
	d    *dispatch
	args any
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.d.ctx }

// User returns the user behind the event.
func (c *Context) User() User { return c.d.user }

// Session returns the in-flight session. Mutations are persisted when the event completes.
func (c *Context) Session() *session.Session { return c.d.session }

// Event returns the event being handled.
func (c *Context) Event() Event { return c.d.event }

// Text returns the text of the event, if any.
func (c *Context) Text() string { return c.d.event.Text }

// Args returns the arguments passed to Enter.
func (c *Context) Args() any { return c.args }

// Scene returns the active scene.
func (c *Context) Scene() ID { return ID(c.d.session.Scene) }

// Enter leaves the active scene, if any, and enters id with args.
func (c *Context) Enter(id ID, args any) error {
	target, ok := c.d.engine.scenes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	c.d.transitions++
	if c.d.transitions > maxTransitions {
		return fmt.Errorf("%w: entering %q", ErrTransitionLimit, id)
	}
	if err := c.Leave(); err != nil {
		return err
	}
	c.d.session.Scene = string(id)
	logger.Debug(c.d.ctx, logger.CompScene, "scene.enter", slog.String("scene", string(id)))
	return target.OnEnter(&Context{d: c.d, args: args})
}

// Leave runs the active scene's OnLeave and clears it. Leaving with no active scene is a no-op.
func (c *Context) Leave() error {
	current := c.Scene()
	if current == None {
		return nil
	}
	var err error
	if sc, ok := c.d.engine.scenes[current]; ok && sc.OnLeave != nil {
		err = sc.OnLeave(&Context{d: c.d})
	}
	c.d.session.Scene = string(None)
	logger.Debug(c.d.ctx, logger.CompScene, "scene.leave", slog.String("scene", string(current)))
	return err
}

// Reset deletes the stored session now and continues with a default one.
func (c *Context) Reset() error {
	id := c.d.user.ID
	*c.d.session = session.Default(id)
	if err := c.d.engine.store.Delete(c.d.ctx, id); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// Reply sends msg to the user.
func (c *Context) Reply(msg Message) error {
	if c.d.replier == nil {
		return fmt.Errorf("scene: no replier")
	}
	return c.d.replier.Reply(c.d.ctx, msg)
}

// ReplyText sends plain text with optional button rows.
func (c *Context) ReplyText(text string, rows ...[]Button) error {
	return c.Reply(Message{Text: text, Buttons: rows})
}

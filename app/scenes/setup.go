package scenes

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/scene"
)

func (f *Flow) setupEnter(c *scene.Context) error {
	if c.Session().ChangingSpreadsheet {
		return c.ReplyText(msgSetupChanging)
	}

	reg, err := f.regs.Get(c.Context(), c.User().ID)
	switch {
	case err == nil:
		return c.Reply(scene.Message{
			Text:     setupExistingText(reg),
			Markdown: true,
		})
	case errors.Is(err, registration.ErrNotRegistered):
	default:
		// the greeting still works without the lookup
		logger.Warn(c.Context(), logger.CompScene, "setup.lookup",
			slog.String("status", "fail"),
			logger.Err(err),
		)
	}
	return c.ReplyText(setupWelcomeText(c.User()))
}

func (f *Flow) setupText(c *scene.Context) error {
	raw := strings.TrimSpace(c.Text())
	reg, err := f.regs.Register(c.Context(), c.User(), raw)
	switch {
	case errors.Is(err, registration.ErrInvalidURL):
		return c.Reply(scene.Message{Text: msgInvalidURL, Markdown: true})
	case err != nil:
		return c.ReplyText(msgSaveFailed)
	}

	c.Session().ChangingSpreadsheet = false
	if err := c.ReplyText(msgSaved); err != nil {
		return err
	}
	return c.Enter(AutoVerify, reg)
}

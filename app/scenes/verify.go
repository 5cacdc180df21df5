package scenes

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/scene"
)

// verifyFailure is passed from auto_verify to manual_verify.
type verifyFailure struct {
	Reg    registration.UserRegistration
	Reason string
}

// autoVerifyEnter checks access to the registration passed as args, or the
// stored one when entered from an action.
func (f *Flow) autoVerifyEnter(c *scene.Context) error {
	reg, ok := c.Args().(registration.UserRegistration)
	if !ok {
		var err error
		reg, err = f.regs.Get(c.Context(), c.User().ID)
		switch {
		case errors.Is(err, registration.ErrNotRegistered):
			replyErr := c.ReplyText(msgNotRegistered)
			return errors.Join(replyErr, c.Enter(SetupSpreadsheet, nil))
		case err != nil:
			if err := c.Leave(); err != nil {
				return err
			}
			return c.ReplyText(msgSaveFailed)
		}
	}

	if err := f.regs.Verify(c.Context(), reg); err != nil {
		reason := registration.Reason(err)
		logger.Debug(c.Context(), logger.CompScene, "verify.failed", slog.String("reason", reason))
		return c.Enter(ManualVerify, verifyFailure{Reg: reg, Reason: reason})
	}

	// Leave before replying; a failed reply must not keep auto_verify.
	if err := c.Leave(); err != nil {
		return err
	}
	return c.Reply(scene.Message{
		Text:    msgVerified,
		Buttons: doneButtons(reg),
	})
}

func (f *Flow) manualVerifyEnter(c *scene.Context) error {
	failure, ok := c.Args().(verifyFailure)
	if !ok {
		reg, err := f.regs.Get(c.Context(), c.User().ID)
		if err != nil && !errors.Is(err, registration.ErrNotRegistered) {
			return c.ReplyText(msgSaveFailed)
		}
		failure = verifyFailure{Reg: reg, Reason: "error"}
	}
	return c.Reply(scene.Message{
		Text:     manualVerifyText(failure.Reason, f.email),
		Markdown: true,
		Buttons:  retryButtons(failure.Reg),
	})
}

// manualVerifyText accepts a fresh link directly; anything else gets a hint.
func (f *Flow) manualVerifyText(c *scene.Context) error {
	if registration.ValidateURL(c.Text()) {
		return f.setupText(c)
	}
	reg, _ := f.regs.Get(c.Context(), c.User().ID)
	return c.Reply(scene.Message{
		Text:    msgManualVerifyHint,
		Buttons: retryButtons(reg),
	})
}

func retryButtons(reg registration.UserRegistration) [][]scene.Button {
	rows := [][]scene.Button{
		{{Text: btnRetry, Action: ActionVerifyAccess}},
		{{Text: btnChange, Action: ActionChangeSpreadsheet}},
	}
	if reg.SpreadsheetURL != "" {
		rows = append(rows, []scene.Button{{Text: btnOpen, URL: reg.SpreadsheetURL}})
	}
	return rows
}

func doneButtons(reg registration.UserRegistration) [][]scene.Button {
	rows := [][]scene.Button{
		{{Text: btnChange, Action: ActionChangeSpreadsheet}},
	}
	if reg.SpreadsheetURL != "" {
		rows = append(rows, []scene.Button{{Text: btnOpen, URL: reg.SpreadsheetURL}})
	}
	return rows
}

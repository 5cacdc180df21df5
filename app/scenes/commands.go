package scenes

import (
	"errors"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/core/scene"
)

// start drops whatever state the user had and begins the setup flow.
func (f *Flow) start(c *scene.Context) error {
	if err := c.Reset(); err != nil {
		return err
	}
	return c.Enter(SetupSpreadsheet, nil)
}

func (f *Flow) help(c *scene.Context) error {
	return c.Reply(scene.Message{Text: helpText(f.email), Markdown: true})
}

func (f *Flow) status(c *scene.Context) error {
	reg, err := f.regs.Get(c.Context(), c.User().ID)
	switch {
	case errors.Is(err, registration.ErrNotRegistered):
		return c.ReplyText(msgStatusNone)
	case err != nil:
		return c.ReplyText(msgSaveFailed)
	}
	rows := [][]scene.Button{{{Text: btnRetry, Action: ActionVerifyAccess}}}
	rows = append(rows, doneButtons(reg)...)
	return c.Reply(scene.Message{
		Text:     statusText(reg, c.Scene()),
		Markdown: true,
		Buttons:  rows,
	})
}

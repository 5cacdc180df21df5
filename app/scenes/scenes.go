// Package scenes holds the registration conversation: setting up a
// spreadsheet link, checking access to it, and walking the user through
// sharing it when the check fails.
package scenes

import (
	"context"
	"errors"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/core/scene"
	"github.com/m3rciful/sheetbot/core/session"
)

// Scene ids.
const (
	SetupSpreadsheet scene.ID = "setup-spreadsheet"
	AutoVerify       scene.ID = "auto_verify"
	ManualVerify     scene.ID = "manual_verify"
)

// Action ids carried by inline buttons.
const (
	ActionVerifyAccess      = "verify_access"
	ActionChangeSpreadsheet = "change_spreadsheet"
)

// Command names, without the slash.
const (
	CmdStart  = "start"
	CmdHelp   = "help"
	CmdStatus = "status"
)

// Registrations is the part of registration.Service the scenes use.
type Registrations interface {
	Get(ctx context.Context, userID int64) (registration.UserRegistration, error)
	Register(ctx context.Context, user scene.User, rawURL string) (registration.UserRegistration, error)
	Verify(ctx context.Context, reg registration.UserRegistration) error
}

// Config wires the scenes to their collaborators.
type Config struct {
	Registrations Registrations
	// ServiceAccountEmail is the address users must share their spreadsheet with.
	ServiceAccountEmail string
}

// Flow owns the scene table of the bot.
type Flow struct {
	regs  Registrations
	email string
}

// New builds a Flow.
func New(cfg Config) (*Flow, error) {
	if cfg.Registrations == nil {
		return nil, errors.New("scenes: registrations service is required")
	}
	return &Flow{regs: cfg.Registrations, email: cfg.ServiceAccountEmail}, nil
}

// Scenes returns the three scenes of the flow.
func (f *Flow) Scenes() []scene.Scene {
	return []scene.Scene{
		{ID: SetupSpreadsheet, OnEnter: f.setupEnter, OnText: f.setupText},
		{ID: AutoVerify, OnEnter: f.autoVerifyEnter},
		{ID: ManualVerify, OnEnter: f.manualVerifyEnter, OnText: f.manualVerifyText},
	}
}

// Commands returns the global command handlers.
func (f *Flow) Commands() map[string]scene.Handler {
	return map[string]scene.Handler{
		CmdStart:  f.start,
		CmdHelp:   f.help,
		CmdStatus: f.status,
	}
}

// Actions returns the global button handlers. They run regardless of the active scene.
func (f *Flow) Actions() map[string]scene.Handler {
	return map[string]scene.Handler{
		ActionVerifyAccess:      f.verifyAccess,
		ActionChangeSpreadsheet: f.changeSpreadsheet,
	}
}

// EngineConfig returns a scene.Config with the flow's table filled in.
func (f *Flow) EngineConfig(store session.Store, locker *session.Locker) scene.Config {
	return scene.Config{
		Store:    store,
		Locker:   locker,
		Scenes:   f.Scenes(),
		Commands: f.Commands(),
		Actions:  f.Actions(),
	}
}

func (f *Flow) verifyAccess(c *scene.Context) error {
	return c.Enter(AutoVerify, nil)
}

func (f *Flow) changeSpreadsheet(c *scene.Context) error {
	c.Session().ChangingSpreadsheet = true
	return c.Enter(SetupSpreadsheet, nil)
}

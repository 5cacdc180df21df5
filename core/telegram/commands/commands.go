package commands

// Command describes a bot command as shown in the Telegram menu.
// Handling lives in the scene engine; the name is the engine's command key
// with a leading slash.
type Command struct {
	Description string
	Hidden      bool
	Aliases     []string
}

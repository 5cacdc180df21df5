package bot

const (
	descStart  = "Register or replace your spreadsheet"
	descHelp   = "How the bot works"
	descStatus = "Show your registered spreadsheet"
)

const (
	msgUnknownText    = "Send /start to register your Google Spreadsheet."
	msgUnknownCommand = "Unknown command. Try /help."
	msgUnknownMedia   = "I only understand text. Send me a spreadsheet link or /help."
	msgUnknownAction  = "This button is no longer active."
	msgFailure        = "😕 Sorry, something went wrong. Please try again."
	msgSlowDown       = "Too many requests, please slow down."
)

package scenes

import (
	"fmt"
	"strings"

	"github.com/m3rciful/sheetbot/app/registration"
	"github.com/m3rciful/sheetbot/core/scene"
	"github.com/m3rciful/sheetbot/core/telegram/format"
)

const exampleURL = "https://docs.google.com/spreadsheets/d/<id>/edit"

const (
	btnRetry  = "🔄 Check again"
	btnChange = "✏️ Change spreadsheet"
	btnOpen   = "📄 Open spreadsheet"
)

const (
	msgSetupChanging    = "Send me the link to your new Google Spreadsheet."
	msgSaved            = "✅ Spreadsheet saved. Checking access..."
	msgSaveFailed       = "⚠️ Something went wrong on our side. Please try again in a minute."
	msgNotRegistered    = "You have not registered a spreadsheet yet."
	msgVerified         = "🎉 Access confirmed. Your spreadsheet is connected."
	msgManualVerifyHint = "Share the spreadsheet as described above, then press \"Check again\". You can also send a new link."
	msgStatusNone       = "No spreadsheet is registered yet. Send /start to add one."
)

var msgInvalidURL = "❌ That does not look like a Google Spreadsheet link.\nIt should look like `" + exampleURL + "`"

func setupWelcomeText(u scene.User) string {
	name := u.DisplayName()
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi, %s! Send me the link to the Google Spreadsheet you want to connect.", name)
}

func setupExistingText(reg registration.UserRegistration) string {
	return fmt.Sprintf("Your current spreadsheet:\n%s\n\nSend a new link to replace it.",
		format.MustEscape(reg.SpreadsheetURL))
}

func verifyReasonText(reason string) string {
	switch reason {
	case "no_access":
		return "the bot has no access to it"
	case "not_found":
		return "it was not found, it may have been deleted"
	case "timeout":
		return "Google did not answer in time"
	case "invalid_url":
		return "the saved link is not valid"
	default:
		return "the check failed"
	}
}

func manualVerifyText(reason, email string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ I could not open your spreadsheet: %s.\n\n", verifyReasonText(reason))
	b.WriteString("To grant access:\n")
	b.WriteString("1. Open the spreadsheet and press *Share*.\n")
	if email != "" {
		fmt.Fprintf(&b, "2. Add `%s` as an *Editor*.\n", email)
	} else {
		b.WriteString("2. Add the bot's service account as an *Editor*.\n")
	}
	b.WriteString("3. Press *Check again*.")
	return b.String()
}

func helpText(email string) string {
	var b strings.Builder
	b.WriteString("*How it works*\n")
	b.WriteString("1. /start and send the link to your Google Spreadsheet.\n")
	b.WriteString("2. Share the spreadsheet with the bot as an editor")
	if email != "" {
		fmt.Fprintf(&b, ": `%s`", email)
	}
	b.WriteString(".\n")
	b.WriteString("3. The bot checks that it can open the spreadsheet.\n\n")
	b.WriteString("/status shows your current spreadsheet.")
	return b.String()
}

func statusText(reg registration.UserRegistration, current scene.ID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Spreadsheet:* %s\n", format.MustEscape(reg.SpreadsheetURL))
	if !reg.RegisteredAt.IsZero() {
		fmt.Fprintf(&b, "*Saved:* %s UTC", reg.RegisteredAt.UTC().Format("2006-01-02 15:04"))
	}
	if current != scene.None {
		fmt.Fprintf(&b, "\n*Step:* %s", format.MustEscape(string(current)))
	}
	return b.String()
}

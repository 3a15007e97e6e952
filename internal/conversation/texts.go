package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/internal/attendee"
)

// Menu labels. Incoming text equal to a label selects the matching intent.
const (
	LabelRegister = "Register for the webinar"
	LabelUpdate   = "Update my details"
	LabelCancel   = "Cancel my registration"
)

// PlaceholderHandle stands in for a missing handle or name.
const PlaceholderHandle = "—"

const (
	textWelcome         = "👋 Hi! Tap the button below to register for the webinar:"
	textAskName         = "✍️ Please enter your name:"
	textRegistered      = "✅ Thank you for registering! Your details are saved."
	textCancelled       = "❌ You have cancelled your webinar registration. Details updated."
	textAccessDenied    = "❌ You do not have access."
	textAskBroadcast    = "Enter the broadcast text:"
	textUnknown         = "Please use the menu buttons below."
	textEmpty           = "⚠️ Please send a text message."
	textFailure         = "⚠️ Something went wrong. Please try again later."
	textBroadcastFailed = "⚠️ Broadcast failed: could not read the attendee list."
)

var (
	mainMenu = messenger.Menu{{LabelRegister}, {LabelUpdate}, {LabelCancel}}
	postMenu = messenger.Menu{{LabelCancel}, {LabelUpdate}}
)

func textStatus(rec attendee.Record) string {
	name := rec.FullName
	if name == "" {
		name = PlaceholderHandle
	}
	return fmt.Sprintf("👋 You are already registered!\nName: %s\nStatus: %s", name, statusLabel(rec.Status))
}

func statusLabel(st attendee.Status) string {
	if st == attendee.StatusCancelled {
		return "cancelled"
	}
	return "registered"
}

func textNewParticipant(handle string, identity int64) string {
	return fmt.Sprintf("New participant registered: @%s (%d)", handle, identity)
}

func textBroadcastDone(sent, failed, unconfirmed int) string {
	var notes []string
	if failed > 0 {
		notes = append(notes, fmt.Sprintf("%d failed", failed))
	}
	if unconfirmed > 0 {
		notes = append(notes, fmt.Sprintf("%d unconfirmed", unconfirmed))
	}
	if len(notes) == 0 {
		return fmt.Sprintf("Broadcast delivered to %d users.", sent)
	}
	return fmt.Sprintf("Broadcast delivered to %d users (%s).", sent, strings.Join(notes, ", "))
}

package helpers

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/regbot/core/messenger"
)

// Inbound converts a text update into the transport-neutral event.
// Handle is left empty when the sender has no username. Text is the message body
// only: a media caption is not taken as text, so media arrive empty.
func Inbound(c tele.Context) messenger.Inbound {
	var in messenger.Inbound
	if msg := c.Message(); msg != nil {
		in.Text = msg.Text
	}
	if upd := c.Update(); upd.ID != 0 {
		in.UpdateID = upd.ID
	}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		in.SenderID = user.ID
		in.Handle = user.Username
		if in.ChatID == 0 {
			in.ChatID = user.ID
		}
	}
	in.IsCommand = strings.HasPrefix(in.Text, "/")
	return in
}

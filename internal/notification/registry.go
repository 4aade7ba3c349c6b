package notification

import (
	"fmt"
	"io"

	"didibot/internal/model"
)

// Deps carries what the broadcasters need. Only the parts of the
// selected broadcasters are required.
type Deps struct {
	Out             io.Writer
	TelegramToken   string
	TelegramChatID  string
	TelegramBaseURL string
	WhatsAppURL     string
	Email           EmailConfig
	Pusher          Pusher
}

// Build creates the named broadcasters.
func Build(names []string, d Deps) ([]Broadcaster, error) {
	out := make([]Broadcaster, 0, len(names))
	for _, name := range names {
		switch name {
		case "print_on_screen":
			out = append(out, NewScreen(d.Out))
		case "telegram":
			if d.TelegramToken == "" || d.TelegramChatID == "" {
				return nil, fmt.Errorf("%w: telegram needs a bot token and chat id", model.ErrValue)
			}
			out = append(out, NewTelegram(d.TelegramToken, d.TelegramChatID, d.TelegramBaseURL))
		case "whatsapp":
			if d.WhatsAppURL == "" {
				return nil, fmt.Errorf("%w: whatsapp needs a webhook url", model.ErrValue)
			}
			out = append(out, NewWhatsApp(d.WhatsAppURL))
		case "email":
			if d.Email.Addr == "" || d.Email.From == "" || len(d.Email.To) == 0 {
				return nil, fmt.Errorf("%w: email needs an smtp addr, sender and recipients", model.ErrValue)
			}
			out = append(out, NewEmail(d.Email))
		case "push":
			if d.Pusher == nil {
				return nil, fmt.Errorf("%w: push needs a websocket hub", model.ErrValue)
			}
			out = append(out, NewPush(d.Pusher))
		default:
			return nil, fmt.Errorf("%w: unknown broadcaster %q", model.ErrValue, name)
		}
	}
	return out, nil
}

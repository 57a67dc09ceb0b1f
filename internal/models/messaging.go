package models

// InboundMessage is a text message received on a chat channel (WhatsApp, Twilio).
type InboundMessage struct {
	Channel string `json:"channel"`
	From    string `json:"from"`
	Body    string `json:"body"`
	Time    int64  `json:"time"`
}

package ipc

const (
	CommandStatus  = "status"
	CommandCapture = "capture"
	CommandSay     = "say"
)

// Request is one JSON line sent to the socket owner.
type Request struct {
	Command   string `json:"command"`
	Text      string `json:"text,omitempty"`
	Translate *bool  `json:"translate,omitempty"`
}

// Response is the owner's single JSON line reply.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

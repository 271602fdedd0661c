package ws

// ClientMsg is what a client sends: {"type":"sub","topics":["trade:AAPL"]}.
type ClientMsg struct {
	Type   string   `json:"type"` // sub | unsub
	Topics []string `json:"topics"`
}

const (
	MsgSub   = "sub"
	MsgUnsub = "unsub"
)

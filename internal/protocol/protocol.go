package protocol

import "encoding/json"

const Version = "1.0"

// Message types on the elevation wire.
const (
	TypeElevQuery    = "elev.query"
	TypeHTTPRequest  = "http.request"
	TypeHTTPResponse = "http.response"
	TypeHealth       = "health"
	TypeHealthResp   = "health.response"
	TypeStatus       = "status"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Package hub routes tasks from callers to named device connections and
// correlates the asynchronous responses, one actor per user.
package hub

import "encoding/json"

// Wire message types.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeSubscribe  = "subscribe"
	TypeDevices    = "devices"
	TypeLog        = "log"
	TypeDeviceLog  = "device_log"
	TypeTask       = "task"
	TypeResponse   = "response"
)

// DeviceInfo is one entry of a device-list broadcast.
type DeviceInfo struct {
	DeviceName string `json:"deviceName"`
	Status     string `json:"status"`
}

// Envelope is the single JSON frame shape used in both directions. Fields
// are populated per message type.
type Envelope struct {
	Type       string       `json:"type"`
	DeviceName string       `json:"deviceName,omitempty"`
	Platform   string       `json:"platform,omitempty"`
	MessageID  string       `json:"messageId,omitempty"`
	Content    string       `json:"content,omitempty"`
	Message    string       `json:"message,omitempty"`
	Time       string       `json:"time,omitempty"`
	Devices    []DeviceInfo `json:"devices,omitempty"`
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() []byte {
	data, _ := json.Marshal(e)
	return data
}

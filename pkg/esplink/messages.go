package esplink

import "time"

// Outbound frame types
const (
	TypeConnection      = "connection"
	TypeTransferAudio   = "transfer_audio"
	TypeConfigureButton = "configure_button"
	TypePlayAudio       = "play_audio"
	TypeChangeCategory  = "change_category"
	TypeGetStatus       = "get_status"
	TypePing            = "ping"
)

// Inbound frame types
const (
	TypeESP32Status           = "esp32_status"
	TypeStatusResponse        = "status_response"
	TypeButtonPressed         = "button_pressed"
	TypeCategoryChanged       = "category_changed"
	TypeHeartbeat             = "heartbeat"
	TypeAudioTransferProgress = "audio_transfer_progress"
	TypeAudioTransferComplete = "audio_transfer_complete"
	TypeAudioTransferError    = "audio_transfer_error"
	TypeError                 = "error"
	TypeButtonConfigured      = "button_configured"
	TypePong                  = "pong"
)

// Command is an outbound frame body. The codec adds the type discriminator.
type Command interface {
	CommandType() string
}

type IdentifyCommand struct {
	Device  string `json:"device"`
	Version string `json:"version"`
}

type TransferAudioCommand struct {
	Filename     string `json:"filename"`
	AudioData    string `json:"audioData"`
	MessageID    int    `json:"messageId"`
	MessageText  string `json:"messageText"`
	CategoryName string `json:"categoryName"`
	AudioSize    int64  `json:"audioSize"`
}

type ConfigureButtonCommand struct {
	Button       int    `json:"button"`
	AudioFile    string `json:"audioFile"`
	MessageID    int    `json:"messageId"`
	MessageText  string `json:"messageText"`
	CategoryName string `json:"categoryName"`
}

type PlayAudioCommand struct {
	Button int `json:"button"`
}

type ChangeCategoryCommand struct {
	Category int `json:"category"`
}

type GetStatusCommand struct{}

type PingCommand struct {
	Timestamp int64 `json:"timestamp"`
}

func (IdentifyCommand) CommandType() string        { return TypeConnection }
func (TransferAudioCommand) CommandType() string   { return TypeTransferAudio }
func (ConfigureButtonCommand) CommandType() string { return TypeConfigureButton }
func (PlayAudioCommand) CommandType() string       { return TypePlayAudio }
func (ChangeCategoryCommand) CommandType() string  { return TypeChangeCategory }
func (GetStatusCommand) CommandType() string       { return TypeGetStatus }
func (PingCommand) CommandType() string            { return TypePing }

// EventType tags a decoded event.
type EventType string

const (
	EventStatusUpdate      EventType = "status_update"
	EventButtonPressed     EventType = "button_pressed"
	EventCategoryChanged   EventType = "category_changed"
	EventHeartbeat         EventType = "heartbeat"
	EventTransferProgress  EventType = "transfer_progress"
	EventTransferComplete  EventType = "transfer_complete"
	EventConnectionChanged EventType = "connection_changed"
	EventError             EventType = "error"
	EventRaw               EventType = "raw"
	EventButtonConfigured  EventType = "button_configured"
	EventPong              EventType = "pong"
)

// Event is one decoded protocol or connection event.
type Event interface {
	EventType() EventType
}

// StatusUpdateEvent carries the patch from the frame and, once the client has
// merged it, the resulting snapshot.
type StatusUpdateEvent struct {
	Patch  StatusPatch
	Status DeviceStatus
}

type ButtonPressedEvent struct {
	Button       int
	Category     int
	MessageID    int
	AudioFile    string
	Timestamp    int64
	CategoryName string
}

type CategoryChangedEvent struct {
	Category     int
	CategoryName string
	Timestamp    int64
}

type HeartbeatEvent struct {
	Battery    *int
	SystemOn   *bool
	Category   *int
	Timestamp  int64
	ReceivedAt time.Time
}

// Patch converts the heartbeat into a cache update that stamps the liveness
// time.
func (e HeartbeatEvent) Patch() StatusPatch {
	return StatusPatch{
		Battery:       cloneInt(e.Battery),
		SystemOn:      cloneBool(e.SystemOn),
		Category:      cloneInt(e.Category),
		FromHeartbeat: true,
		ReceivedAt:    e.ReceivedAt,
	}
}

type TransferProgressEvent struct {
	Filename         string
	Progress         int
	BytesTransferred int64
	TotalBytes       int64
}

type TransferCompleteEvent struct {
	Filename string
	Success  bool
	Error    string
}

type ConnectionChangedEvent struct {
	Connected bool
}

type ErrorEvent struct {
	Code    string
	Message string
}

// RawEvent preserves a frame whose type this package does not model.
type RawEvent struct {
	Type    string
	Payload map[string]interface{}
}

type ButtonConfiguredEvent struct {
	Button    int
	Success   bool
	AudioFile string
	Message   string
}

type PongEvent struct {
	Timestamp int64
}

func (StatusUpdateEvent) EventType() EventType      { return EventStatusUpdate }
func (ButtonPressedEvent) EventType() EventType     { return EventButtonPressed }
func (CategoryChangedEvent) EventType() EventType   { return EventCategoryChanged }
func (HeartbeatEvent) EventType() EventType         { return EventHeartbeat }
func (TransferProgressEvent) EventType() EventType  { return EventTransferProgress }
func (TransferCompleteEvent) EventType() EventType  { return EventTransferComplete }
func (ConnectionChangedEvent) EventType() EventType { return EventConnectionChanged }
func (ErrorEvent) EventType() EventType             { return EventError }
func (RawEvent) EventType() EventType               { return EventRaw }
func (ButtonConfiguredEvent) EventType() EventType  { return EventButtonConfigured }
func (PongEvent) EventType() EventType              { return EventPong }

// errorEventFrom converts a LinkError into the event broadcast for it.
func errorEventFrom(err *LinkError) ErrorEvent {
	return ErrorEvent{Code: err.Code, Message: err.Error()}
}

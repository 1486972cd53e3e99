package esplink

import "time"

// ConnectionState enum
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// TransferPhase enum
type TransferPhase string

const (
	TransferIdle         TransferPhase = "idle"
	TransferTransferring TransferPhase = "transferring"
	TransferCompleted    TransferPhase = "completed"
	TransferFailed       TransferPhase = "failed"
)

// ButtonInfo describes one physical button as reported by the device.
type ButtonInfo struct {
	Number       int    `json:"number"`
	Configured   bool   `json:"configured"`
	AudioFile    string `json:"audioFile,omitempty"`
	MessageText  string `json:"messageText,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
}

// DeviceStatus is the last-known state of the device. Nil fields have never
// been reported.
type DeviceStatus struct {
	Connected           bool
	Battery             *int
	Category            *int
	SystemOn            *bool
	MP3Ready            *bool
	SDReady             *bool
	AudioTransferActive *bool
	BootCount           *int
	UptimeSeconds       *int
	WifiRSSI            *int
	FreeHeapBytes       *int
	Buttons             []ButtonInfo
	LastHeartbeatAt     time.Time
}

// StatusPatch is a partial DeviceStatus decoded from one status or heartbeat
// frame. Nil fields are absent from the frame.
type StatusPatch struct {
	Connected           *bool
	Battery             *int
	Category            *int
	SystemOn            *bool
	MP3Ready            *bool
	SDReady             *bool
	AudioTransferActive *bool
	BootCount           *int
	UptimeSeconds       *int
	WifiRSSI            *int
	FreeHeapBytes       *int
	Buttons             []ButtonInfo
	FromHeartbeat       bool
	ReceivedAt          time.Time
}

// TransferMetadata accompanies an audio push so the device can label the file.
type TransferMetadata struct {
	MessageID    int
	MessageText  string
	CategoryName string
}

// TransferState is the lifecycle of the tracked audio transfer.
type TransferState struct {
	Filename         string
	Progress         int
	BytesTransferred int64
	TotalBytes       int64
	Phase            TransferPhase
	Error            string
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// Listener receives every broadcast event.
type Listener func(Event)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneButtons(b []ButtonInfo) []ButtonInfo {
	if b == nil {
		return nil
	}
	out := make([]ButtonInfo, len(b))
	copy(out, b)
	return out
}

// Clone returns a deep copy that shares no memory with s.
func (s DeviceStatus) Clone() DeviceStatus {
	out := s
	out.Battery = cloneInt(s.Battery)
	out.Category = cloneInt(s.Category)
	out.SystemOn = cloneBool(s.SystemOn)
	out.MP3Ready = cloneBool(s.MP3Ready)
	out.SDReady = cloneBool(s.SDReady)
	out.AudioTransferActive = cloneBool(s.AudioTransferActive)
	out.BootCount = cloneInt(s.BootCount)
	out.UptimeSeconds = cloneInt(s.UptimeSeconds)
	out.WifiRSSI = cloneInt(s.WifiRSSI)
	out.FreeHeapBytes = cloneInt(s.FreeHeapBytes)
	out.Buttons = cloneButtons(s.Buttons)
	return out
}

package esplink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Codec translates between wire frames and Commands/Events. It is the only
// place outbound JSON is produced.
type Codec struct {
	now func() time.Time
}

func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// Encode serialises cmd into a flat JSON object with a "type" discriminator.
func (c *Codec) Encode(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, NewProtocolError(ErrCodeMalformedFrame, "nil command")
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, NewProtocolError(ErrCodeMalformedFrame, "encode "+cmd.CommandType()).Wrap(err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, NewProtocolError(ErrCodeMalformedFrame, "encode "+cmd.CommandType()).Wrap(err)
	}
	typ, _ := json.Marshal(cmd.CommandType())
	fields["type"] = typ

	return json.Marshal(fields)
}

// Decode parses one inbound frame. It never fails: unparseable input becomes
// an ErrorEvent and unknown types become a RawEvent.
func (c *Codec) Decode(raw []byte) Event {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return malformed("", err)
	}

	typeRaw, ok := fields["type"]
	var typ string
	if !ok || json.Unmarshal(typeRaw, &typ) != nil || typ == "" {
		return errorEventFrom(NewProtocolError(ErrCodeMissingType, "frame has no type discriminator"))
	}

	switch typ {
	case TypeESP32Status, TypeStatusResponse:
		var f statusFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		return StatusUpdateEvent{Patch: f.patch(c.now())}

	case TypeHeartbeat:
		var f heartbeatFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		return HeartbeatEvent{
			Battery:    clampBattery(f.Battery.ptr()),
			SystemOn:   f.SystemOn,
			Category:   positive(f.Category.ptr()),
			Timestamp:  int64(f.Timestamp),
			ReceivedAt: c.now(),
		}

	case TypeButtonPressed:
		var f buttonPressedFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		return ButtonPressedEvent{
			Button:       int(f.Button),
			Category:     int(f.Category),
			MessageID:    int(f.MessageID),
			AudioFile:    f.AudioFile,
			Timestamp:    int64(f.Timestamp),
			CategoryName: f.CategoryName,
		}

	case TypeCategoryChanged:
		var f categoryChangedFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		return CategoryChangedEvent{
			Category:     int(f.Category),
			CategoryName: f.CategoryName,
			Timestamp:    int64(f.Timestamp),
		}

	case TypeAudioTransferProgress:
		var f transferProgressFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		if f.Filename == "" {
			return malformed(typ, fmt.Errorf("missing filename"))
		}
		return TransferProgressEvent{
			Filename:         f.Filename,
			Progress:         int(f.Progress),
			BytesTransferred: int64(f.BytesTransferred),
			TotalBytes:       int64(f.TotalBytes),
		}

	case TypeAudioTransferComplete, TypeAudioTransferError:
		var f transferResultFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		if f.Filename == "" {
			return malformed(typ, fmt.Errorf("missing filename"))
		}
		success := typ == TypeAudioTransferComplete
		if f.Success != nil && !*f.Success {
			success = false
		}
		errMsg := f.Error
		if !success && errMsg == "" {
			errMsg = "device reported transfer failure"
		}
		return TransferCompleteEvent{Filename: f.Filename, Success: success, Error: errMsg}

	case TypeButtonConfigured:
		var f buttonConfiguredFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		success := true
		if f.Success != nil {
			success = *f.Success
		}
		return ButtonConfiguredEvent{
			Button:    int(f.Button),
			Success:   success,
			AudioFile: f.AudioFile,
			Message:   f.Message,
		}

	case TypePong:
		var f pongFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		return PongEvent{Timestamp: int64(f.Timestamp)}

	case TypeError:
		var f errorFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return malformed(typ, err)
		}
		msg := f.Message
		if msg == "" {
			msg = "device reported an error"
		}
		return ErrorEvent{Code: ErrCodeDeviceError, Message: msg}
	}

	payload := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return malformed(typ, err)
	}
	return RawEvent{Type: typ, Payload: payload}
}

func malformed(typ string, err error) ErrorEvent {
	msg := "invalid frame"
	if typ != "" {
		msg = fmt.Sprintf("invalid %s frame", typ)
	}
	return errorEventFrom(NewProtocolError(ErrCodeMalformedFrame, msg).Wrap(err))
}

// flexInt accepts integral and fractional JSON numbers; firmware sometimes
// reports readings as floats.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("invalid number %s", b)
	}
	*f = flexInt(math.Round(n))
	return nil
}

// optInt distinguishes an absent field from zero.
type optInt struct {
	set   bool
	value int
}

func (o *optInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f flexInt
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	o.set = true
	o.value = int(f)
	return nil
}

func (o optInt) ptr() *int {
	if !o.set {
		return nil
	}
	return intPtr(o.value)
}

func clampBattery(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

func positive(p *int) *int {
	if p == nil || *p <= 0 {
		return nil
	}
	return p
}

type buttonFrame struct {
	Number       flexInt `json:"number"`
	Button       flexInt `json:"button"`
	Configured   bool    `json:"configured"`
	AudioFile    string  `json:"audioFile"`
	MessageText  string  `json:"messageText"`
	CategoryName string  `json:"categoryName"`
}

type statusFrame struct {
	Connected           *bool         `json:"connected"`
	Battery             optInt        `json:"battery"`
	Category            optInt        `json:"category"`
	SystemOn            *bool         `json:"system_on"`
	MP3Ready            *bool         `json:"mp3_ready"`
	SDReady             *bool         `json:"sd_ready"`
	AudioTransferActive *bool         `json:"audio_transfer_active"`
	BootCount           optInt        `json:"bootCount"`
	Uptime              optInt        `json:"uptime"`
	WifiRSSI            optInt        `json:"wifi_rssi"`
	FreeHeap            optInt        `json:"free_heap"`
	Buttons             []buttonFrame `json:"buttons"`
}

func (f statusFrame) patch(at time.Time) StatusPatch {
	p := StatusPatch{
		Connected:           f.Connected,
		Battery:             clampBattery(f.Battery.ptr()),
		Category:            positive(f.Category.ptr()),
		SystemOn:            f.SystemOn,
		MP3Ready:            f.MP3Ready,
		SDReady:             f.SDReady,
		AudioTransferActive: f.AudioTransferActive,
		BootCount:           f.BootCount.ptr(),
		UptimeSeconds:       f.Uptime.ptr(),
		WifiRSSI:            f.WifiRSSI.ptr(),
		FreeHeapBytes:       f.FreeHeap.ptr(),
		ReceivedAt:          at,
	}
	if f.Buttons != nil {
		p.Buttons = make([]ButtonInfo, 0, len(f.Buttons))
		for i, b := range f.Buttons {
			n := int(b.Number)
			if n == 0 {
				n = int(b.Button)
			}
			if n == 0 {
				n = i + 1
			}
			p.Buttons = append(p.Buttons, ButtonInfo{
				Number:       n,
				Configured:   b.Configured,
				AudioFile:    b.AudioFile,
				MessageText:  b.MessageText,
				CategoryName: b.CategoryName,
			})
		}
	}
	return p
}

type heartbeatFrame struct {
	Battery   optInt  `json:"battery"`
	SystemOn  *bool   `json:"system_on"`
	Category  optInt  `json:"category"`
	Timestamp flexInt `json:"timestamp"`
}

type buttonPressedFrame struct {
	Button       flexInt `json:"button"`
	Category     flexInt `json:"category"`
	MessageID    flexInt `json:"messageId"`
	AudioFile    string  `json:"audioFile"`
	Timestamp    flexInt `json:"timestamp"`
	CategoryName string  `json:"categoryName"`
}

type categoryChangedFrame struct {
	Category     flexInt `json:"category"`
	CategoryName string  `json:"categoryName"`
	Timestamp    flexInt `json:"timestamp"`
}

type transferProgressFrame struct {
	Filename         string  `json:"filename"`
	Progress         flexInt `json:"progress"`
	BytesTransferred flexInt `json:"bytesTransferred"`
	TotalBytes       flexInt `json:"totalBytes"`
}

type transferResultFrame struct {
	Filename string `json:"filename"`
	Success  *bool  `json:"success"`
	Error    string `json:"error"`
}

type buttonConfiguredFrame struct {
	Button    flexInt `json:"button"`
	Success   *bool   `json:"success"`
	AudioFile string  `json:"audioFile"`
	Message   string  `json:"message"`
}

type pongFrame struct {
	Timestamp flexInt `json:"timestamp"`
}

type errorFrame struct {
	Message string `json:"message"`
}

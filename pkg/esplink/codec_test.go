package esplink

import (
	"encoding/json"
	"testing"
	"time"
)

func fixedCodec(at time.Time) *Codec {
	return &Codec{now: func() time.Time { return at }}
}

func decodeObject(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not a JSON object: %v (%s)", err, data)
	}
	return m
}

func TestCodec_EncodeAddsTypeDiscriminator(t *testing.T) {
	c := NewCodec()

	cases := []struct {
		cmd    Command
		typ    string
		fields map[string]interface{}
	}{
		{IdentifyCommand{Device: "tab-1", Version: "1.0.0"}, "connection", map[string]interface{}{"device": "tab-1", "version": "1.0.0"}},
		{PlayAudioCommand{Button: 3}, "play_audio", map[string]interface{}{"button": float64(3)}},
		{ChangeCategoryCommand{Category: 2}, "change_category", map[string]interface{}{"category": float64(2)}},
		{GetStatusCommand{}, "get_status", nil},
		{PingCommand{Timestamp: 1700000000000}, "ping", map[string]interface{}{"timestamp": float64(1700000000000)}},
		{ConfigureButtonCommand{Button: 1, AudioFile: "001.wav", MessageID: 7, MessageText: "hi", CategoryName: "Basics"}, "configure_button",
			map[string]interface{}{"button": float64(1), "audioFile": "001.wav", "messageId": float64(7), "messageText": "hi", "categoryName": "Basics"}},
		{TransferAudioCommand{Filename: "001.wav", AudioData: "AAAA", MessageID: 7, MessageText: "hi", CategoryName: "Basics", AudioSize: 3}, "transfer_audio",
			map[string]interface{}{"filename": "001.wav", "audioData": "AAAA", "messageId": float64(7), "audioSize": float64(3)}},
	}

	for _, tc := range cases {
		data, err := c.Encode(tc.cmd)
		if err != nil {
			t.Fatalf("%s: encode: %v", tc.typ, err)
		}
		m := decodeObject(t, data)
		if m["type"] != tc.typ {
			t.Fatalf("%s: type=%v", tc.typ, m["type"])
		}
		for k, want := range tc.fields {
			if m[k] != want {
				t.Fatalf("%s: field %s=%v want %v", tc.typ, k, m[k], want)
			}
		}
	}
}

func TestCodec_EncodeNil(t *testing.T) {
	if _, err := NewCodec().Encode(nil); err == nil {
		t.Fatalf("expected error for nil command")
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	c := NewCodec()

	cases := map[string]struct {
		raw  string
		code string
	}{
		"not json":     {`{"type":`, ErrCodeMalformedFrame},
		"array":        {`[1,2,3]`, ErrCodeMalformedFrame},
		"no type":      {`{"battery":50}`, ErrCodeMissingType},
		"empty type":   {`{"type":""}`, ErrCodeMissingType},
		"numeric type": {`{"type":5}`, ErrCodeMissingType},
		"bad field":    {`{"type":"button_pressed","button":"three"}`, ErrCodeMalformedFrame},
		"no filename":  {`{"type":"audio_transfer_progress","progress":5}`, ErrCodeMalformedFrame},
	}

	for name, tc := range cases {
		ev := c.Decode([]byte(tc.raw))
		errEv, ok := ev.(ErrorEvent)
		if !ok {
			t.Fatalf("%s: expected ErrorEvent, got %T", name, ev)
		}
		if errEv.Code != tc.code {
			t.Fatalf("%s: code=%s want %s", name, errEv.Code, tc.code)
		}
		if errEv.Message == "" {
			t.Fatalf("%s: empty message", name)
		}
	}
}

func TestCodec_DecodeStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := fixedCodec(at)

	raw := `{"type":"esp32_status","connected":true,"battery":87.6,"category":2,
		"mp3_ready":true,"sd_ready":false,"bootCount":12,"uptime":3600,
		"wifi_rssi":-61,"free_heap":120000,
		"buttons":[{"number":1,"configured":true,"audioFile":"001.wav","messageText":"Hello","categoryName":"Basics"},
		           {"button":2,"configured":false}]}`

	ev, ok := c.Decode([]byte(raw)).(StatusUpdateEvent)
	if !ok {
		t.Fatalf("expected StatusUpdateEvent")
	}
	p := ev.Patch
	if p.Connected == nil || !*p.Connected {
		t.Fatalf("connected not decoded")
	}
	if p.Battery == nil || *p.Battery != 88 {
		t.Fatalf("battery=%v", p.Battery)
	}
	if p.Category == nil || *p.Category != 2 {
		t.Fatalf("category=%v", p.Category)
	}
	if p.MP3Ready == nil || !*p.MP3Ready || p.SDReady == nil || *p.SDReady {
		t.Fatalf("ready flags wrong")
	}
	if p.SystemOn != nil {
		t.Fatalf("system_on should be absent")
	}
	if *p.BootCount != 12 || *p.UptimeSeconds != 3600 || *p.WifiRSSI != -61 || *p.FreeHeapBytes != 120000 {
		t.Fatalf("counters wrong: %+v", p)
	}
	if len(p.Buttons) != 2 || p.Buttons[0].AudioFile != "001.wav" || p.Buttons[1].Number != 2 {
		t.Fatalf("buttons=%+v", p.Buttons)
	}
	if p.FromHeartbeat {
		t.Fatalf("status frame must not count as heartbeat")
	}
	if !p.ReceivedAt.Equal(at) {
		t.Fatalf("received at %v", p.ReceivedAt)
	}

	// status_response is the same shape
	if _, ok := c.Decode([]byte(`{"type":"status_response","battery":5}`)).(StatusUpdateEvent); !ok {
		t.Fatalf("status_response not decoded as status")
	}
}

func TestCodec_DecodeStatusClampsAndDropsInvalid(t *testing.T) {
	ev := NewCodec().Decode([]byte(`{"type":"esp32_status","battery":140,"category":0}`)).(StatusUpdateEvent)
	if *ev.Patch.Battery != 100 {
		t.Fatalf("battery=%d", *ev.Patch.Battery)
	}
	if ev.Patch.Category != nil {
		t.Fatalf("category 0 should be treated as absent")
	}
}

func TestCodec_DecodeHeartbeat(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, ok := fixedCodec(at).Decode([]byte(`{"type":"heartbeat","battery":50,"system_on":true,"category":3,"timestamp":123}`)).(HeartbeatEvent)
	if !ok {
		t.Fatalf("expected HeartbeatEvent")
	}
	if *ev.Battery != 50 || !*ev.SystemOn || *ev.Category != 3 || ev.Timestamp != 123 {
		t.Fatalf("heartbeat=%+v", ev)
	}
	p := ev.Patch()
	if !p.FromHeartbeat || !p.ReceivedAt.Equal(at) {
		t.Fatalf("patch=%+v", p)
	}
}

func TestCodec_DecodeEvents(t *testing.T) {
	c := NewCodec()

	bp := c.Decode([]byte(`{"type":"button_pressed","button":4,"category":2,"messageId":9,"audioFile":"009.wav","timestamp":55,"categoryName":"Food"}`))
	if got, want := bp, (ButtonPressedEvent{Button: 4, Category: 2, MessageID: 9, AudioFile: "009.wav", Timestamp: 55, CategoryName: "Food"}); got != want {
		t.Fatalf("button_pressed=%+v", got)
	}

	cc := c.Decode([]byte(`{"type":"category_changed","category":3,"categoryName":"Feelings","timestamp":77}`))
	if got, want := cc, (CategoryChangedEvent{Category: 3, CategoryName: "Feelings", Timestamp: 77}); got != want {
		t.Fatalf("category_changed=%+v", got)
	}

	tp := c.Decode([]byte(`{"type":"audio_transfer_progress","filename":"001.wav","progress":50,"bytesTransferred":512,"totalBytes":1024}`))
	if got, want := tp, (TransferProgressEvent{Filename: "001.wav", Progress: 50, BytesTransferred: 512, TotalBytes: 1024}); got != want {
		t.Fatalf("progress=%+v", got)
	}

	done := c.Decode([]byte(`{"type":"audio_transfer_complete","filename":"001.wav"}`))
	if got, want := done, (TransferCompleteEvent{Filename: "001.wav", Success: true}); got != want {
		t.Fatalf("complete=%+v", got)
	}

	failed := c.Decode([]byte(`{"type":"audio_transfer_error","filename":"001.wav","error":"SD full"}`))
	if got, want := failed, (TransferCompleteEvent{Filename: "001.wav", Success: false, Error: "SD full"}); got != want {
		t.Fatalf("error=%+v", got)
	}

	devErr := c.Decode([]byte(`{"type":"error","message":"unknown command"}`))
	if got, want := devErr, (ErrorEvent{Code: ErrCodeDeviceError, Message: "unknown command"}); got != want {
		t.Fatalf("error=%+v", got)
	}

	cfg := c.Decode([]byte(`{"type":"button_configured","button":2,"success":false,"message":"no file"}`))
	if got, want := cfg, (ButtonConfiguredEvent{Button: 2, Success: false, Message: "no file"}); got != want {
		t.Fatalf("button_configured=%+v", got)
	}

	pong := c.Decode([]byte(`{"type":"pong","timestamp":99}`))
	if got, want := pong, (PongEvent{Timestamp: 99}); got != want {
		t.Fatalf("pong=%+v", got)
	}
}

func TestCodec_DecodeUnknownTypeIsRaw(t *testing.T) {
	ev, ok := NewCodec().Decode([]byte(`{"type":"ota_status","stage":"download","percent":12}`)).(RawEvent)
	if !ok {
		t.Fatalf("expected RawEvent")
	}
	if ev.Type != "ota_status" || ev.Payload["stage"] != "download" {
		t.Fatalf("raw=%+v", ev)
	}
	if n, ok := ev.Payload["percent"].(json.Number); !ok || n.String() != "12" {
		t.Fatalf("percent=%#v", ev.Payload["percent"])
	}
}

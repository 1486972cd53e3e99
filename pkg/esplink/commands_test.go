package esplink

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCommandAPI(ok bool, fetcher AudioFetcher) (*CommandAPI, *fakeSender, *AudioTransferCoordinator) {
	sender := &fakeSender{ok: ok}
	transfers := NewAudioTransferCoordinator(sender, NewEventBus(NopLogger()), testConfig(), NopLogger())
	return NewCommandAPI(sender, transfers, fetcher, NopLogger()), sender, transfers
}

func TestCommandAPI_SimpleCommands(t *testing.T) {
	api, sender, _ := newTestCommandAPI(true, nil)
	api.now = func() time.Time { return time.UnixMilli(1700000000123) }

	if !api.PlayAudio(2) || !api.ChangeCategory(3) || !api.RequestStatus() || !api.Ping() {
		t.Fatalf("command rejected")
	}
	if !api.ConfigureButton(1, 42, "I need help", "Needs", "042.wav") {
		t.Fatalf("configure rejected")
	}

	want := []Command{
		PlayAudioCommand{Button: 2},
		ChangeCategoryCommand{Category: 3},
		GetStatusCommand{},
		PingCommand{Timestamp: 1700000000123},
		ConfigureButtonCommand{Button: 1, AudioFile: "042.wav", MessageID: 42, MessageText: "I need help", CategoryName: "Needs"},
	}
	got := sender.commands()
	if len(got) != len(want) {
		t.Fatalf("sent=%+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestCommandAPI_RejectsInvalidArguments(t *testing.T) {
	api, sender, _ := newTestCommandAPI(true, nil)

	if api.PlayAudio(0) || api.ChangeCategory(-1) || api.ConfigureButton(0, 1, "", "", "x.wav") {
		t.Fatalf("invalid command accepted")
	}
	if len(sender.commands()) != 0 {
		t.Fatalf("invalid command sent")
	}
}

func TestCommandAPI_NotConnected(t *testing.T) {
	api, _, _ := newTestCommandAPI(false, nil)

	if api.PlayAudio(1) || api.RequestStatus() {
		t.Fatalf("command reported success while disconnected")
	}
}

func TestCommandAPI_TransferMessageAudio(t *testing.T) {
	var fetched int
	fetcher := AudioFetcherFunc(func(ctx context.Context, id int) (string, error) {
		fetched = id
		return "AAAA", nil
	})
	api, sender, transfers := newTestCommandAPI(true, fetcher)

	err := api.TransferMessageAudio(context.Background(), 42, "042.wav", TransferMetadata{MessageText: "hi"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if fetched != 42 {
		t.Fatalf("fetched=%d", fetched)
	}
	cmd := sender.commands()[0].(TransferAudioCommand)
	if cmd.Filename != "042.wav" || cmd.MessageID != 42 || cmd.MessageText != "hi" || cmd.AudioData != "AAAA" {
		t.Fatalf("cmd=%+v", cmd)
	}
	if !transfers.IsTransferring() {
		t.Fatalf("transfer not started")
	}

	// a second request is refused before fetching
	fetched = 0
	err = api.TransferMessageAudio(context.Background(), 43, "043.wav", TransferMetadata{})
	if !errors.Is(err, ErrTransferInProgress) || fetched != 0 {
		t.Fatalf("err=%v fetched=%d", err, fetched)
	}
}

func TestCommandAPI_TransferMessageAudioFetchFailure(t *testing.T) {
	boom := errors.New("backend down")
	api, sender, transfers := newTestCommandAPI(true, AudioFetcherFunc(func(context.Context, int) (string, error) {
		return "", boom
	}))

	err := api.TransferMessageAudio(context.Background(), 1, "001.wav", TransferMetadata{})
	if !IsErrorCode(err, ErrCodeAudioFetch) || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(sender.commands()) != 0 || transfers.State().Phase != TransferIdle {
		t.Fatalf("failed fetch started a transfer")
	}

	noFetcher, _, _ := newTestCommandAPI(true, nil)
	if err := noFetcher.TransferMessageAudio(context.Background(), 1, "001.wav", TransferMetadata{}); !IsErrorCode(err, ErrCodeConfigInvalid) {
		t.Fatalf("no fetcher: %v", err)
	}
}

package esplink

import (
	"context"
	"time"
)

// CommandAPI holds the typed device commands. The boolean results only say
// whether the frame reached an open socket; the device confirms (if at all)
// through later events such as ButtonConfiguredEvent or CategoryChangedEvent.
type CommandAPI struct {
	sender    CommandSender
	transfers *AudioTransferCoordinator
	fetcher   AudioFetcher
	log       *Logger
	now       func() time.Time
}

func NewCommandAPI(sender CommandSender, transfers *AudioTransferCoordinator, fetcher AudioFetcher, log *Logger) *CommandAPI {
	if log == nil {
		log = DefaultLogger()
	}
	return &CommandAPI{
		sender:    sender,
		transfers: transfers,
		fetcher:   fetcher,
		log:       log.WithComponent("commands"),
		now:       time.Now,
	}
}

func (api *CommandAPI) ConfigureButton(button, messageID int, messageText, categoryName, audioFile string) bool {
	if button <= 0 {
		api.log.Warnf("configure_button: invalid button %d", button)
		return false
	}
	return api.sender.Send(ConfigureButtonCommand{
		Button:       button,
		AudioFile:    audioFile,
		MessageID:    messageID,
		MessageText:  messageText,
		CategoryName: categoryName,
	})
}

func (api *CommandAPI) PlayAudio(button int) bool {
	if button <= 0 {
		api.log.Warnf("play_audio: invalid button %d", button)
		return false
	}
	return api.sender.Send(PlayAudioCommand{Button: button})
}

func (api *CommandAPI) ChangeCategory(category int) bool {
	if category <= 0 {
		api.log.Warnf("change_category: invalid category %d", category)
		return false
	}
	return api.sender.Send(ChangeCategoryCommand{Category: category})
}

func (api *CommandAPI) RequestStatus() bool {
	return api.sender.Send(GetStatusCommand{})
}

func (api *CommandAPI) Ping() bool {
	return api.sender.Send(PingCommand{Timestamp: api.now().UnixMilli()})
}

// TransferAudio pushes an already-encoded clip to the device.
func (api *CommandAPI) TransferAudio(filename, base64Data string, meta TransferMetadata) error {
	if api.transfers == nil {
		return NewTransferError(ErrCodeInvalidTransfer, "audio transfer not enabled")
	}
	return api.transfers.Start(filename, base64Data, meta)
}

// TransferMessageAudio fetches the audio for messageID and pushes it as
// filename. The fetch runs on the caller's goroutine.
func (api *CommandAPI) TransferMessageAudio(ctx context.Context, messageID int, filename string, meta TransferMetadata) error {
	if api.fetcher == nil {
		return NewConfigError("no audio fetcher configured")
	}
	if api.transfers != nil && api.transfers.IsTransferring() {
		state := api.transfers.State()
		return NewTransferError(ErrCodeTransferInProgress, "transfer of "+state.Filename+" already in progress").
			AddDetail("in_flight", state.Filename).
			AddDetail("requested", filename)
	}

	data, err := api.fetcher.FetchAudioBase64(ctx, messageID)
	if err != nil {
		if _, ok := AsLinkError(err); ok {
			return err
		}
		return NewFetchError("fetch audio").Wrap(err).AddDetail("message_id", messageID)
	}

	if meta.MessageID == 0 {
		meta.MessageID = messageID
	}
	return api.TransferAudio(filename, data, meta)
}

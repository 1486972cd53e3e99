package esplink

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AudioFetcher supplies the payload for transfer_audio. The surrounding
// application owns where audio lives; BackendClient is the stock HTTP version.
type AudioFetcher interface {
	FetchAudioBase64(ctx context.Context, messageID int) (string, error)
}

// AudioFetcherFunc adapts a function to AudioFetcher.
type AudioFetcherFunc func(ctx context.Context, messageID int) (string, error)

func (f AudioFetcherFunc) FetchAudioBase64(ctx context.Context, messageID int) (string, error) {
	return f(ctx, messageID)
}

const DefaultAudioPath = "/api/messages/%d/audio"

// MaxAudioBytes caps a downloaded clip. The whole payload travels in one frame.
const MaxAudioBytes = 8 << 20

type BackendClient struct {
	baseURL    string
	apiToken   string
	audioPath  string
	httpClient *http.Client
}

func NewBackendClient(baseURL, apiToken string) *BackendClient {
	return &BackendClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiToken:  apiToken,
		audioPath: DefaultAudioPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

func NewBackendClientFromConfig(config *LinkConfig) *BackendClient {
	return NewBackendClient(config.APIBaseURL, config.APIToken)
}

// SetAudioPath overrides the printf-style path used to fetch a message's audio.
func (bc *BackendClient) SetAudioPath(path string) {
	bc.audioPath = path
}

func (bc *BackendClient) SetTimeout(timeout time.Duration) {
	bc.httpClient.Timeout = timeout
}

// FetchAudio downloads the raw audio bytes for messageID.
func (bc *BackendClient) FetchAudio(ctx context.Context, messageID int) ([]byte, error) {
	if bc.baseURL == "" {
		return nil, NewConfigError("API base URL not configured")
	}
	if messageID <= 0 {
		return nil, NewFetchError(fmt.Sprintf("invalid message id %d", messageID))
	}

	url := bc.baseURL + fmt.Sprintf(bc.audioPath, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewConfigError("build audio request").Wrap(err)
	}
	req.Header.Set("Accept", "audio/*, application/octet-stream")
	req.Header.Set("User-Agent", "esplink-go/"+DefaultClientVersion)
	if bc.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+bc.apiToken)
	}

	resp, err := bc.httpClient.Do(req)
	if err != nil {
		return nil, NewFetchError("audio request failed").Wrap(err).AddDetail("message_id", messageID)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, NewFetchError(msg).
			AddDetail("status_code", resp.StatusCode).
			AddDetail("message_id", messageID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return nil, NewFetchError("read audio body").Wrap(err).AddDetail("message_id", messageID)
	}
	if len(data) > MaxAudioBytes {
		return nil, NewFetchError(fmt.Sprintf("audio exceeds %d bytes", MaxAudioBytes)).AddDetail("message_id", messageID)
	}
	if len(data) == 0 {
		return nil, NewFetchError("audio body is empty").AddDetail("message_id", messageID)
	}
	return data, nil
}

// FetchAudioBase64 downloads and base64-encodes the audio for messageID.
func (bc *BackendClient) FetchAudioBase64(ctx context.Context, messageID int) (string, error) {
	data, err := bc.FetchAudio(ctx, messageID)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voiceconfirm/internal/config"
)

const ttsModelID = "eleven_monolingual_v1"

// Transport-level failures are retried; HTTP-level rejections are not.
const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// ElevenLabsClient is the ElevenLabs text-to-speech adapter.
// No provider SDK calls outside this file.
type ElevenLabsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewElevenLabsClient(cfg config.VoiceConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// GenerateScriptAndAudio renders the confirmation script and synthesizes it.
func (c *ElevenLabsClient) GenerateScriptAndAudio(ctx context.Context, req ScriptRequest, voiceID string) (Script, error) {
	text := BuildConfirmationScript(req)

	audio, err := c.TextToSpeech(ctx, text, voiceID)
	if err != nil {
		return Script{}, err
	}
	return Script{Text: text, Audio: audio}, nil
}

// TextToSpeech synthesizes text with the given voice and returns MP3 bytes.
func (c *ElevenLabsClient) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("voice: elevenlabs api key not configured")
	}
	if text == "" || voiceID == "" {
		return nil, fmt.Errorf("voice: text and voice id are required")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: ttsModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voiceID)

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("xi-api-key", c.apiKey)

		resp, err = c.client.Do(req)
		if err == nil {
			break
		}
		if attempt >= maxAttempts || ctx.Err() != nil {
			return nil, fmt.Errorf("voice: tts request failed: %w", err)
		}
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("voice: tts request failed: %w", ctx.Err())
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("voice: tts status %d body=%q", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice: read tts body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("voice: empty audio response")
	}
	return audio, nil
}

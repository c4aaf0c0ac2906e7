// Package elevenlabs voices lines through the ElevenLabs stream-input
// WebSocket. Each line opens one stream: a begin frame carrying the voice
// settings, the text with a flush, then an empty end frame. Audio chunks
// arrive base64-encoded and are joined into a single clip.
package elevenlabs

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

const (
	defaultModel  = "eleven_multilingual_v2"
	defaultFormat = "pcm_16000"
)

var _ tts.Provider = (*Provider)(nil)

// Settings are the per-stream voice settings.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Provider streams speech from ElevenLabs. It is safe for concurrent use.
type Provider struct {
	key      string
	model    string
	format   string
	rate     int
	language string
	settings Settings
	wsBase   string
	apiBase  string
	client   *http.Client
}

// Option configures [New].
type Option func(*Provider)

// WithModel sets the model id. Default: eleven_multilingual_v2.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets a raw PCM output format such as "pcm_24000".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// WithLanguage pins the language code on models that accept one
// (e.g. "zh" on eleven_flash_v2_5).
func WithLanguage(code string) Option {
	return func(p *Provider) { p.language = code }
}

// WithSettings replaces the default stability 0.5 / similarity 0.75.
func WithSettings(s Settings) Option {
	return func(p *Provider) { p.settings = s }
}

// WithBaseURLs points the provider at other WebSocket and REST hosts.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// New returns a provider authenticating with key.
func New(key string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	p := &Provider{
		key:      key,
		model:    defaultModel,
		format:   defaultFormat,
		settings: Settings{Stability: 0.5, SimilarityBoost: 0.75},
		wsBase:   "wss://api.elevenlabs.io",
		apiBase:  "https://api.elevenlabs.io",
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.format)
	if err != nil {
		return nil, err
	}
	p.rate = rate
	return p, nil
}

// pcmRate extracts the sample rate from a "pcm_<rate>" format.
func pcmRate(format string) (int, error) {
	digits, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw pcm", format)
	}
	rate, err := strconv.Atoi(digits)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has no sample rate", format)
	}
	return rate, nil
}

type frame struct {
	Text          string    `json:"text"`
	Flush         bool      `json:"flush,omitempty"`
	VoiceSettings *Settings `json:"voice_settings,omitempty"`
}

type chunk struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	if voice.ID == "" {
		return tts.Audio{}, errors.New("elevenlabs: voice id is required")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), &websocket.DialOptions{
		HTTPHeader: http.Header{"xi-api-key": {p.key}},
	})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	settings := p.settings
	if voice.Speed > 0 && voice.Speed != 1 {
		settings.Speed = voice.Speed
	}
	// The API wants a single space to open the stream and trailing spaces
	// on text frames.
	for _, f := range []frame{
		{Text: " ", VoiceSettings: &settings},
		{Text: text + " ", Flush: true},
		{Text: ""},
	} {
		b, err := json.Marshal(f)
		if err != nil {
			return tts.Audio{}, err
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	pcm, err := drain(ctx, conn)
	if err != nil {
		return tts.Audio{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return tts.Audio{Data: pcm, SampleRate: p.rate, Channels: 1}, nil
}

// drain reads chunks until the final flag or a normal close.
func drain(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var c chunk
		if json.Unmarshal(msg, &c) != nil {
			continue
		}
		if c.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", c.Error, c.Message)
		}
		if c.Audio != "" {
			b, err := base64.StdEncoding.DecodeString(c.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode chunk: %w", err)
			}
			pcm.Write(b)
		}
		if c.IsFinal {
			break
		}
	}
	if pcm.Len() == 0 {
		return nil, errors.New("elevenlabs: stream ended without audio")
	}
	return pcm.Bytes(), nil
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	if p.language != "" {
		q.Set("language_code", p.language)
	}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

type apiVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices implements [tts.Provider]. Voices are sorted by name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.key)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var body struct {
		Voices []apiVoice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}

	out := make([]tts.Voice, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := maps.Clone(v.Labels)
		if meta == nil {
			meta = map[string]string{}
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, tts.Voice{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	slices.SortFunc(out, func(a, b tts.Voice) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Package coqui voices lines on a self-hosted Coqui TTS server.
//
// Two server flavours are supported: the stock tts-server (GET /api/tts)
// and xtts-api-server (POST /tts_to_audio/), which clones the speaker from
// a reference wav named by the voice id. Both answer with WAV, which is
// unwrapped into raw PCM and optionally resampled.
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/werewolf/pkg/audio"
	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// APIMode selects the server flavour.
type APIMode string

const (
	// APIModeStandard targets the tts-server shipped with Coqui TTS.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets xtts-api-server.
	APIModeXTTS APIMode = "xtts"
)

// Provider talks to one Coqui server. It is safe for concurrent use.
type Provider struct {
	base       string
	language   string
	mode       APIMode
	outputRate int
	client     *http.Client
}

// Option configures [New].
type Option func(*Provider)

// WithLanguage sets the language id sent with every line. Default: "zh-cn".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each request. Default: one minute, since XTTS on a CPU
// is slow.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithAPIMode selects the server flavour. Default: [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// WithOutputSampleRate resamples clips to rate. Zero keeps the server rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// New returns a provider for the server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server url is required")
	}
	p := &Provider{
		base:     strings.TrimRight(baseURL, "/"),
		language: "zh-cn",
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) synthesisRequest(ctx context.Context, text string, voice tts.Voice) (*http.Request, error) {
	if p.mode == APIModeXTTS {
		if voice.ID == "" {
			return nil, errors.New("coqui: xtts needs a speaker wav as voice id")
		}
		body, err := json.Marshal(xttsRequest{Text: text, SpeakerWav: voice.ID, Language: p.language})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/tts_to_audio/", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := url.Values{"text": {text}}
	if voice.ID != "" {
		q.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/api/tts?"+q.Encode(), nil)
}

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	req, err := p.synthesisRequest(ctx, text, voice)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	body, err := p.do(req)
	if err != nil {
		return tts.Audio{}, err
	}
	clip, err := audio.DecodeWAV(body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate > 0 && clip.SampleRate != p.outputRate {
		clip.Data = audio.Resample(clip.Data, clip.Channels, clip.SampleRate, p.outputRate)
		clip.SampleRate = p.outputRate
	}
	return clip, nil
}

// ListVoices implements [tts.Provider]. A single-speaker model is reported
// as one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.mode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, "/studio_speakers", &speakers); err != nil {
			return nil, err
		}
		return voices(slices.Sorted(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, "/details", &details); err != nil {
		return nil, err
	}
	meta := map[string]string{"type": "speaker", "model_name": details.ModelName}
	names := slices.Sorted(slices.Values(details.Speakers))
	if len(names) == 0 {
		meta["type"] = "single-speaker"
		names = []string{cmp.Or(details.ModelName, "default")}
	}
	return voices(names, meta), nil
}

func voices(names []string, meta map[string]string) []tts.Voice {
	out := make([]tts.Voice, 0, len(names))
	for _, n := range names {
		out = append(out, tts.Voice{ID: n, Name: n, Provider: "coqui", Metadata: maps.Clone(meta)})
	}
	return out
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("coqui: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", req.URL.Path, err)
	}
	return body, nil
}

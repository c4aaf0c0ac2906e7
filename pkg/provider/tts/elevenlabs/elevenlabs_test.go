package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		opts     []Option
		wantRate int
		wantErr  bool
	}{
		{name: "missing key", wantErr: true},
		{name: "mp3 rejected", key: "k", opts: []Option{WithOutputFormat("mp3_44100_128")}, wantErr: true},
		{name: "no rate", key: "k", opts: []Option{WithOutputFormat("pcm_")}, wantErr: true},
		{name: "default", key: "k", wantRate: 16000},
		{name: "24k", key: "k", opts: []Option{WithOutputFormat("pcm_24000")}, wantRate: 24000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.key, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.rate != tt.wantRate {
				t.Errorf("rate = %d, want %d", p.rate, tt.wantRate)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, _ := New("k", WithModel("eleven_flash_v2_5"), WithLanguage("zh"))
	got := p.streamURL("voice/1")
	for _, want := range []string{
		"wss://api.elevenlabs.io/v1/text-to-speech/voice%2F1/stream-input?",
		"model_id=eleven_flash_v2_5",
		"output_format=pcm_16000",
		"language_code=zh",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("url %q lacks %q", got, want)
		}
	}
}

type session struct {
	key    string
	frames []frame
}

// streamServer records the frames of one stream and answers with chunks.
func streamServer(t *testing.T, replies []chunk) (*httptest.Server, <-chan session) {
	t.Helper()
	got := make(chan session, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		s := session{key: r.Header.Get("xi-api-key")}
		for range 3 {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f frame
			_ = json.Unmarshal(msg, &f)
			s.frames = append(s.frames, f)
		}
		got <- s
		for _, c := range replies {
			b, _ := json.Marshal(c)
			if conn.Write(ctx, websocket.MessageText, b) != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func dialTo(t *testing.T, srv *httptest.Server, opts ...Option) *Provider {
	t.Helper()
	opts = append(opts, WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), srv.URL))
	p, err := New("secret", opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func b64(b ...byte) string { return base64.StdEncoding.EncodeToString(b) }

func TestSynthesize(t *testing.T) {
	t.Parallel()

	srv, sessions := streamServer(t, []chunk{{Audio: b64(1, 2)}, {Audio: b64(3, 4)}, {IsFinal: true}})
	p := dialTo(t, srv)

	clip, err := p.Synthesize(context.Background(), "天亮了", tts.Voice{ID: "v1", Speed: 1.1})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if string(clip.Data) != "\x01\x02\x03\x04" || clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("clip = %+v", clip)
	}

	s := <-sessions
	if s.key != "secret" {
		t.Errorf("xi-api-key = %q", s.key)
	}
	if s.frames[0].VoiceSettings == nil || s.frames[0].VoiceSettings.Speed != 1.1 || s.frames[0].VoiceSettings.Stability != 0.5 {
		t.Errorf("opening frame = %+v", s.frames[0])
	}
	if s.frames[1].Text != "天亮了 " || !s.frames[1].Flush || s.frames[2].Text != "" {
		t.Errorf("frames = %+v", s.frames)
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		replies []chunk
		wantMsg string
	}{
		{name: "server error", replies: []chunk{{Error: "quota_exceeded", Message: "out of characters"}}, wantMsg: "quota_exceeded"},
		{name: "no audio", replies: []chunk{{IsFinal: true}}, wantMsg: "without audio"},
		{name: "closed early", wantMsg: "without audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := streamServer(t, tt.replies)
			p := dialTo(t, srv)
			_, err := p.Synthesize(context.Background(), "x", tts.Voice{ID: "v"})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Synthesize() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}

	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), "x", tts.Voice{}); err == nil {
		t.Error("expected an error without a voice id")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"z","name":"Rachel","category":"premade","labels":{"gender":"female"}},
			{"voice_id":"a","name":"Adam"}
		]}`))
	}))
	defer srv.Close()

	voices, err := dialTo(t, srv).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error: %v", err)
	}
	if len(voices) != 2 || voices[0].Name != "Adam" || voices[1].ID != "z" {
		t.Fatalf("voices = %+v, want sorted by name", voices)
	}
	if m := voices[1].Metadata; m["gender"] != "female" || m["category"] != "premade" {
		t.Errorf("metadata = %v", m)
	}

	bad, _ := New("wrong", WithBaseURLs("ws://unused", srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("ListVoices() with a bad key error = %v", err)
	}
}

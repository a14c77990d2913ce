package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxtrace/voxtrace/pkg/provider/synth/gemini"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *gemini.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func audioResponse(pcm []byte) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{
						{
							"inlineData": map[string]any{
								"mimeType": "audio/pcm;rate=24000",
								"data":     base64.StdEncoding.EncodeToString(pcm),
							},
						},
					},
				},
			},
		},
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(""); err == nil {
		t.Fatal("New with empty API key should return an error")
	}
}

func TestSynthesize_ReturnsDecodedPCM(t *testing.T) {
	t.Parallel()

	wantPCM := []byte{0x10, 0x20, 0x30, 0x40}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(audioResponse(wantPCM))
	})

	got, err := p.Synthesize(context.Background(), "step one", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wantPCM) {
		t.Errorf("pcm = %v; want %v", got, wantPCM)
	}
}

func TestSynthesize_RequestShape(t *testing.T) {
	t.Parallel()

	type request struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
			SpeechConfig       struct {
				VoiceConfig struct {
					PrebuiltVoiceConfig struct {
						VoiceName string `json:"voiceName"`
					} `json:"prebuiltVoiceConfig"`
				} `json:"voiceConfig"`
			} `json:"speechConfig"`
		} `json:"generationConfig"`
	}

	var (
		gotPath  string
		gotQuery string
		gotReq   request
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(audioResponse([]byte{1, 2}))
	})

	if _, err := p.Synthesize(context.Background(), "the loop starts here", "Puck"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if !strings.Contains(gotPath, ":generateContent") {
		t.Errorf("path = %q; want generateContent endpoint", gotPath)
	}
	if !strings.Contains(gotQuery, "key=test-key") {
		t.Errorf("query = %q; want key=test-key", gotQuery)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "the loop starts here" {
		t.Errorf("unexpected contents: %+v", gotReq.Contents)
	}
	mods := gotReq.GenerationConfig.ResponseModalities
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("responseModalities = %v; want [AUDIO]", mods)
	}
	voice := gotReq.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName
	if voice != "Puck" {
		t.Errorf("voiceName = %q; want Puck", voice)
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(audioResponse([]byte{1}))
	})

	if _, err := p.Synthesize(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	data, _ := json.Marshal(gotBody)
	if !strings.Contains(string(data), `"voiceName":"Kore"`) {
		t.Errorf("request %s should use the default voice", data)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, err := gemini.New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "", "Kore"); err == nil {
		t.Fatal("Synthesize with empty text should return an error")
	}
}

func TestSynthesize_HTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	})

	if _, err := p.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("Synthesize should surface non-200 responses as errors")
	}
}

func TestSynthesize_NoAudioInResponse(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "no audio here"}}}},
			},
		})
	})

	if _, err := p.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("Synthesize should fail when the response carries no audio part")
	}
}

func TestSynthesize_MalformedBase64(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{
							{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": "!!!not-base64!!!"}},
						},
					},
				},
			},
		})
	})

	if _, err := p.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("Synthesize should fail on malformed audio data")
	}
}

func TestSynthesize_CancelledContext(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(audioResponse([]byte{1}))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Synthesize(ctx, "hello", ""); err == nil {
		t.Fatal("Synthesize with cancelled context should return an error")
	}
}

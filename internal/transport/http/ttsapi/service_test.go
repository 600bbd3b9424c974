package ttsapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/blob"
)

type fakeAudio struct {
	text      string
	speakerID int
	result    aggregate.AudioResult
	statsErr  error
}

func (f *fakeAudio) GetAudio(_ context.Context, text string, speakerID int) aggregate.AudioResult {
	f.text = text
	f.speakerID = speakerID
	return f.result
}

func (f *fakeAudio) Stats(context.Context) (map[string]any, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return map[string]any{"hits": 3}, nil
}

func newEngine(t *testing.T, audio AudioService, blobs BlobServer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api")

	svc, err := NewService(audio, blobs, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Register(context.Background(), api, api); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return engine
}

func decodeDescriptor(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode descriptor: %v (%s)", err, body)
	}
	return out
}

func TestSynthesizeReturnsDescriptor(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	audio := &fakeAudio{result: aggregate.Success("k1", "https://cdn/audio.wav", now, now.Add(time.Hour), true)}
	engine := newEngine(t, audio, nil)

	body := bytes.NewBufferString(`{"text":"こんにちは","speaker_id":8}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tts/synthesize", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if audio.text != "こんにちは" || audio.speakerID != 8 {
		t.Fatalf("service called with %q/%d", audio.text, audio.speakerID)
	}
	d := decodeDescriptor(t, rec.Body.Bytes())
	if d["url"] != "https://cdn/audio.wav" || d["cacheKey"] != "k1" || d["cached"] != true {
		t.Fatalf("unexpected descriptor %v", d)
	}
	if _, ok := d["error"]; !ok || d["error"] != nil {
		t.Fatalf("error field should be present and null: %v", d)
	}
}

func TestSynthesizeDefaultsSpeaker(t *testing.T) {
	audio := &fakeAudio{result: aggregate.Success("k", "u", time.Now(), time.Now(), false)}
	engine := newEngine(t, audio, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tts/synthesize", strings.NewReader(`{"text":"やあ"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(httptest.NewRecorder(), req)

	if audio.speakerID != defaultSpeakerID {
		t.Fatalf("speaker = %d, want default", audio.speakerID)
	}
}

func TestFailureStillAnswers200(t *testing.T) {
	now := time.Now()
	audio := &fakeAudio{result: aggregate.Failure("k2", stderrors.New("engine down"), now, 24*time.Hour)}
	engine := newEngine(t, audio, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tts/audio?text=hi&speaker_id=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	d := decodeDescriptor(t, rec.Body.Bytes())
	if d["url"] != nil || d["error"] != "engine down" || d["cached"] != false {
		t.Fatalf("unexpected degraded descriptor %v", d)
	}
}

func TestRequestValidation(t *testing.T) {
	engine := newEngine(t, &fakeAudio{}, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "missing text body", method: http.MethodPost, target: "/api/tts/synthesize", body: `{"speaker_id":1}`},
		{name: "malformed json", method: http.MethodPost, target: "/api/tts/synthesize", body: `{`},
		{name: "missing text query", method: http.MethodGet, target: "/api/tts/audio"},
		{name: "bad speaker", method: http.MethodGet, target: "/api/tts/audio?text=a&speaker_id=x"},
		{name: "empty text query", method: http.MethodGet, target: "/api/tts/audio?text="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestEngineDecidesUnusualInput(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		text    string
		speaker int
	}{
		{name: "blank text", target: "/api/tts/audio?text=%20%20", text: "  ", speaker: defaultSpeakerID},
		{name: "negative speaker", target: "/api/tts/audio?text=a&speaker_id=-1", text: "a", speaker: -1},
		{name: "long text", target: "/api/tts/audio?text=" + strings.Repeat("a", 2000), text: strings.Repeat("a", 2000), speaker: defaultSpeakerID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audio := &fakeAudio{result: aggregate.Failure("k", stderrors.New("engine rejected request"), time.Now(), 24*time.Hour)}
			engine := newEngine(t, audio, nil)

			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if audio.text != tt.text || audio.speakerID != tt.speaker {
				t.Fatalf("service saw text=%q speaker=%d", audio.text, audio.speakerID)
			}
			if d := decodeDescriptor(t, rec.Body.Bytes()); d["url"] != nil || d["error"] == nil {
				t.Fatalf("expected degraded descriptor, got %v", d)
			}
		})
	}
}

func TestStats(t *testing.T) {
	engine := newEngine(t, &fakeAudio{}, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tts/stats", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"hits":3`) {
		t.Fatalf("unexpected stats response %d %s", rec.Code, rec.Body.String())
	}

	engine = newEngine(t, &fakeAudio{statsErr: stderrors.New("redis down")}, nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tts/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestBlobDownload(t *testing.T) {
	store, err := blob.NewLocal(blob.LocalConfig{
		Root:          t.TempDir(),
		PublicBaseURL: "http://example.test",
		SigningKey:    "blob-secret",
	})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Upload(ctx, "tts/abc.wav", []byte("RIFFdata"), "audio/wav", nil); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	signed, err := store.SignURL(ctx, "tts/abc.wav", time.Hour)
	if err != nil {
		t.Fatalf("SignURL() error = %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}

	engine := newEngine(t, &fakeAudio{}, store)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "RIFFdata" || rec.Header().Get("Content-Type") != "audio/wav" {
		t.Fatalf("unexpected blob response %q %s", rec.Body.String(), rec.Header().Get("Content-Type"))
	}

	token := u.Query().Get("token")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tts/blob/tts/other.wav?token="+url.QueryEscape(token), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("token for another path: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tts/blob/tts/abc.wav", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token: status = %d, want 400", rec.Code)
	}

	if err := store.Delete(ctx, "tts/abc.wav"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted object: status = %d, want 404", rec.Code)
	}
}

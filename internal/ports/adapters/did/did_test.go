package did

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smendola/conciser/internal/faults"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRenderAvatar_FullFlow(t *testing.T) {
	var polls int32
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/images":
			json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/img"})
		case r.Method == "POST" && r.URL.Path == "/audios":
			json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/audio"})
		case r.Method == "POST" && r.URL.Path == "/talks":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "https://cdn.example/img", body["source_url"])
			json.NewEncoder(w).Encode(map[string]string{"id": "talk-1"})
		case r.Method == "GET" && r.URL.Path == "/talks/talk-1":
			if atomic.AddInt32(&polls, 1) < 2 {
				json.NewEncoder(w).Encode(map[string]string{"status": "started"})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "done", "result_url": srvURL + "/result.mp4"})
		case r.URL.Path == "/result.mp4":
			w.Write([]byte("rendered"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	a := New("key", srv.URL)
	a.poll = 10 * time.Millisecond

	out := filepath.Join(t.TempDir(), "avatar.mp4")
	frame := writeTemp(t, "frame.jpg", "jpg")
	audio := writeTemp(t, "speech.mp3", "mp3")

	require.NoError(t, a.RenderAvatar(context.Background(), frame, audio, out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "rendered", string(b))
	assert.GreaterOrEqual(t, polls, int32(2))
}

func TestRenderAvatar_RejectedTalkIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/images" || r.URL.Path == "/audios":
			json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/x"})
		case r.URL.Path == "/talks":
			json.NewEncoder(w).Encode(map[string]string{"id": "talk-9"})
		default:
			json.NewEncoder(w).Encode(map[string]any{"status": "rejected", "error": "face not detected"})
		}
	}))
	defer srv.Close()

	a := New("key", srv.URL)
	a.poll = time.Millisecond

	err := a.RenderAvatar(context.Background(),
		writeTemp(t, "f.jpg", "x"), writeTemp(t, "a.mp3", "x"),
		filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.True(t, faults.IsExternal(err))
	assert.Contains(t, err.Error(), "face not detected")
}

func TestRenderAvatar_QuotaIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"description":"insufficient credits"}`))
	}))
	defer srv.Close()

	a := New("key", srv.URL)
	err := a.RenderAvatar(context.Background(),
		writeTemp(t, "f.jpg", "x"), writeTemp(t, "a.mp3", "x"),
		filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.True(t, faults.IsExternal(err))
}

package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakePlayer implements Player for handler tests.
type fakePlayer struct {
	CurrentPlaybackFunc func(ctx context.Context, token string) (*PlaybackState, error)
	ControlFunc         func(ctx context.Context, token, action string) error
	SearchFunc          func(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error)
	AddToQueueFunc      func(ctx context.Context, token, uri string) error
}

func (f *fakePlayer) CurrentPlayback(ctx context.Context, token string) (*PlaybackState, error) {
	if f.CurrentPlaybackFunc != nil {
		return f.CurrentPlaybackFunc(ctx, token)
	}
	return nil, nil
}

func (f *fakePlayer) Control(ctx context.Context, token, action string) error {
	if f.ControlFunc != nil {
		return f.ControlFunc(ctx, token, action)
	}
	return nil
}

func (f *fakePlayer) Search(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error) {
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, token, query, offset, limit)
	}
	return &SearchResults{}, nil
}

func (f *fakePlayer) AddToQueue(ctx context.Context, token, uri string) error {
	if f.AddToQueueFunc != nil {
		return f.AddToQueueFunc(ctx, token, uri)
	}
	return nil
}

func serveSpotify(p Player, method, target, token, body string) *httptest.ResponseRecorder {
	srv := NewServer(p)
	r := srv.Router()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleGetPlayer_MissingToken(t *testing.T) {
	w := serveSpotify(&fakePlayer{}, "GET", "/player", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleGetPlayer_NothingPlaying(t *testing.T) {
	w := serveSpotify(&fakePlayer{}, "GET", "/player", "tok", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if playing, ok := resp["is_playing"].(bool); !ok || playing {
		t.Errorf("expected is_playing false, got %v", resp)
	}
}

func TestHandleGetPlayer_PassesToken(t *testing.T) {
	var gotToken string
	p := &fakePlayer{
		CurrentPlaybackFunc: func(ctx context.Context, token string) (*PlaybackState, error) {
			gotToken = token
			return &PlaybackState{IsPlaying: true, ProgressMs: 100}, nil
		},
	}
	w := serveSpotify(p, "GET", "/player", "tok-abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotToken != "tok-abc" {
		t.Errorf("expected token relayed, got %q", gotToken)
	}

	var state PlaybackState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !state.IsPlaying || state.ProgressMs != 100 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestHandleGetPlayer_StaleToken(t *testing.T) {
	p := &fakePlayer{
		CurrentPlaybackFunc: func(ctx context.Context, token string) (*PlaybackState, error) {
			return nil, &APIError{Status: 401, Message: "The access token expired"}
		},
	}
	w := serveSpotify(p, "GET", "/player", "stale", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] != "spotify token rejected" {
		t.Errorf("unexpected error message: %v", resp)
	}
}

func TestHandleGetPlayer_ProviderOutage(t *testing.T) {
	p := &fakePlayer{
		CurrentPlaybackFunc: func(ctx context.Context, token string) (*PlaybackState, error) {
			return nil, &APIError{Status: 503, Message: "Service unavailable"}
		},
	}
	w := serveSpotify(p, "GET", "/player", "tok", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	var resp struct {
		Error          string `json:"error"`
		ProviderStatus int    `json:"providerStatus"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ProviderStatus != 503 || resp.Error != "Service unavailable" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleGetPlayer_TransportFailure(t *testing.T) {
	p := &fakePlayer{
		CurrentPlaybackFunc: func(ctx context.Context, token string) (*PlaybackState, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	w := serveSpotify(p, "GET", "/player", "tok", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestControlRoutes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		action string
	}{
		{"PUT", "/player/play", "play"},
		{"PUT", "/player/pause", "pause"},
		{"POST", "/player/next", "next"},
		{"POST", "/player/previous", "previous"},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			var gotAction string
			p := &fakePlayer{
				ControlFunc: func(ctx context.Context, token, action string) error {
					gotAction = action
					return nil
				},
			}
			w := serveSpotify(p, tt.method, tt.path, "tok", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if gotAction != tt.action {
				t.Errorf("expected action %q, got %q", tt.action, gotAction)
			}
		})
	}
}

func TestHandleSearch(t *testing.T) {
	var gotQuery string
	var gotOffset, gotLimit int
	p := &fakePlayer{
		SearchFunc: func(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error) {
			gotQuery, gotOffset, gotLimit = query, offset, limit
			return &SearchResults{Tracks: []Track{{ID: "t1", Name: "Song"}}, Total: 1, Limit: limit, Offset: offset}, nil
		},
	}

	w := serveSpotify(p, "GET", "/search?query=daft+punk&limit=5&offset=10", "tok", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotQuery != "daft punk" || gotLimit != 5 || gotOffset != 10 {
		t.Errorf("unexpected search args: q=%q offset=%d limit=%d", gotQuery, gotOffset, gotLimit)
	}

	var results SearchResults
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(results.Tracks) != 1 || results.Tracks[0].ID != "t1" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestHandleSearch_Validation(t *testing.T) {
	longQuery := strings.Repeat("a", 201)
	tests := []struct {
		name   string
		target string
	}{
		{"missing query", "/search"},
		{"blank query", "/search?query=+++"},
		{"query too long", "/search?query=" + longQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			p := &fakePlayer{
				SearchFunc: func(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error) {
					called = true
					return &SearchResults{}, nil
				},
			}
			w := serveSpotify(p, "GET", tt.target, "tok", "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if called {
				t.Error("invalid search must not reach the provider")
			}
		})
	}
}

func TestHandleSearch_DefaultsAndClamping(t *testing.T) {
	var gotOffset, gotLimit int
	p := &fakePlayer{
		SearchFunc: func(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error) {
			gotOffset, gotLimit = offset, limit
			return &SearchResults{}, nil
		},
	}

	// No paging params: defaults apply.
	serveSpotify(p, "GET", "/search?query=x", "tok", "")
	if gotLimit != 10 || gotOffset != 0 {
		t.Errorf("expected defaults 10/0, got limit=%d offset=%d", gotLimit, gotOffset)
	}

	// Out-of-range values fall back to defaults.
	serveSpotify(p, "GET", "/search?query=x&limit=500&offset=-3", "tok", "")
	if gotLimit != 10 || gotOffset != 0 {
		t.Errorf("expected out-of-range paging rejected, got limit=%d offset=%d", gotLimit, gotOffset)
	}
}

func TestHandleQueueTrack(t *testing.T) {
	var gotURI string
	p := &fakePlayer{
		AddToQueueFunc: func(ctx context.Context, token, uri string) error {
			gotURI = uri
			return nil
		},
	}

	w := serveSpotify(p, "POST", "/player/queue", "tok", `{"uri":"spotify:track:t1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotURI != "spotify:track:t1" {
		t.Errorf("expected uri relayed, got %q", gotURI)
	}
}

func TestHandleQueueTrack_Validation(t *testing.T) {
	w := serveSpotify(&fakePlayer{}, "POST", "/player/queue", "tok", `{"uri":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank uri, got %d", w.Code)
	}

	w = serveSpotify(&fakePlayer{}, "POST", "/player/queue", "tok", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", w.Code)
	}
}

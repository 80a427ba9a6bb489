package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// APIError is a non-success response from the Spotify Web API. The provider
// status code is kept as-is and surfaced to the caller untransformed.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: status %d: %s", e.Status, e.Message)
}

// Client relays calls to the Spotify Web API with the caller's access
// token. It holds no credentials of its own; token refresh belongs to the
// identity provider.
type Client struct {
	baseURL string
	base    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		base: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// httpClient wraps the base transport with the caller's bearer token.
func (c *Client) httpClient(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// do performs one authenticated call and decodes the response into out when
// out is non-nil. Returns the HTTP status so callers can tell 204 apart
// from a decoded 200. No retries: a failed call surfaces immediately.
func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient(ctx, token).Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errBody struct {
			Error struct {
				Status  int    `json:"status"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// CurrentPlayback returns the user's player state, or nil when nothing is
// playing (Spotify answers 204).
func (c *Client) CurrentPlayback(ctx context.Context, token string) (*PlaybackState, error) {
	var state PlaybackState
	status, err := c.do(ctx, token, http.MethodGet, "/me/player", nil, &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &state, nil
}

// Control issues one transport command: "play", "pause", "next" or
// "previous".
func (c *Client) Control(ctx context.Context, token, action string) error {
	var method string
	switch action {
	case "play", "pause":
		method = http.MethodPut
	case "next", "previous":
		method = http.MethodPost
	default:
		return fmt.Errorf("spotify: unknown player action %q", action)
	}

	_, err := c.do(ctx, token, method, "/me/player/"+action, nil, nil)
	return err
}

// Search runs a paginated track search.
func (c *Client) Search(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error) {
	val := url.Values{}
	val.Set("q", query)
	val.Set("type", "track")
	val.Set("limit", strconv.Itoa(limit))
	val.Set("offset", strconv.Itoa(offset))

	var body searchResponse
	if _, err := c.do(ctx, token, http.MethodGet, "/search", val, &body); err != nil {
		return nil, err
	}

	return &SearchResults{
		Tracks: body.Tracks.Items,
		Total:  body.Tracks.Total,
		Limit:  body.Tracks.Limit,
		Offset: body.Tracks.Offset,
	}, nil
}

// AddToQueue pushes a track onto the device-level playback queue. This is
// Spotify's own queue, distinct from the session queue.
func (c *Client) AddToQueue(ctx context.Context, token, uri string) error {
	val := url.Values{}
	val.Set("uri", uri)

	_, err := c.do(ctx, token, http.MethodPost, "/me/player/queue", val, nil)
	return err
}

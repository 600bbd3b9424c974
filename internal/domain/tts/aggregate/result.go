package aggregate

import "time"

// ResultKind tags an AudioResult.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFailure
)

func (k ResultKind) String() string {
	if k == ResultFailure {
		return "failure"
	}
	return "success"
}

// AudioResult is the outcome of an audio lookup. Success results carry URL,
// ExpiresAt and Cached; failure results carry Err and a fallback ExpiresAt.
type AudioResult struct {
	Kind      ResultKind
	CacheKey  string
	CreatedAt time.Time
	ExpiresAt time.Time
	URL       string
	Cached    bool
	Err       error
}

// Success builds a playable result.
func Success(key, url string, createdAt, expiresAt time.Time, cached bool) AudioResult {
	return AudioResult{
		Kind:      ResultSuccess,
		CacheKey:  key,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		URL:       url,
		Cached:    cached,
	}
}

// Failure builds a degraded result. now is used as the creation time and
// now+retryAfter as the expiry so callers know when to try again.
func Failure(key string, err error, now time.Time, retryAfter time.Duration) AudioResult {
	return AudioResult{
		Kind:      ResultFailure,
		CacheKey:  key,
		CreatedAt: now,
		ExpiresAt: now.Add(retryAfter),
		Err:       err,
	}
}

// OK reports whether the result carries a usable URL.
func (r AudioResult) OK() bool {
	return r.Kind == ResultSuccess && r.URL != ""
}

// AudioDescriptor is the wire shape returned to clients. url is null and
// error is set when no audio is available.
type AudioDescriptor struct {
	URL       *string `json:"url"`
	CacheKey  string  `json:"cacheKey"`
	CreatedAt string  `json:"createdAt"`
	ExpiresAt *string `json:"expiresAt"`
	Cached    bool    `json:"cached"`
	Error     *string `json:"error"`
}

// Descriptor renders the result in its wire form.
func (r AudioResult) Descriptor() AudioDescriptor {
	d := AudioDescriptor{
		CacheKey:  r.CacheKey,
		CreatedAt: formatTime(r.CreatedAt),
	}
	if !r.ExpiresAt.IsZero() {
		exp := formatTime(r.ExpiresAt)
		d.ExpiresAt = &exp
	}

	switch r.Kind {
	case ResultSuccess:
		url := r.URL
		d.URL = &url
		d.Cached = r.Cached
	case ResultFailure:
		msg := "audio unavailable"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		d.Error = &msg
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

package aggregate

import "time"

// CacheEntry is the persisted record for one (speaker, text) pair.
//
// StoragePath and CreatedAt are fixed when the audio is first synthesized.
// URL and URLExpiresAt change on every refresh. CacheExpiresAt is the logical
// horizon of the entry and is independent of the signed URL lifetime.
type CacheEntry struct {
	Key            string    `json:"key"`
	StoragePath    string    `json:"storagePath"`
	URL            string    `json:"url"`
	ContentType    string    `json:"contentType,omitempty"`
	SpeakerID      int       `json:"speakerId"`
	TextLength     int       `json:"textLength"`
	CreatedAt      time.Time `json:"createdAt"`
	URLExpiresAt   time.Time `json:"expiresAt"`
	CacheExpiresAt time.Time `json:"cacheExpiresAt"`
}

// URLValid reports whether the stored signed URL may still be handed out.
func (e CacheEntry) URLValid(now time.Time) bool {
	return !now.After(e.URLExpiresAt)
}

// Stale reports whether the entry is past its cache horizon.
func (e CacheEntry) Stale(now time.Time) bool {
	return now.After(e.CacheExpiresAt)
}

// Apply returns a copy of the entry with the patch fields replaced.
func (e CacheEntry) Apply(p URLPatch) CacheEntry {
	e.URL = p.URL
	e.URLExpiresAt = p.URLExpiresAt
	return e
}

// URLPatch is the partial update written when a signed URL is re-issued.
type URLPatch struct {
	URL          string    `json:"url"`
	URLExpiresAt time.Time `json:"expiresAt"`
}

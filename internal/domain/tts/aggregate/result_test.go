package aggregate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSuccessDescriptor(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	expires := created.Add(7 * 24 * time.Hour)

	d := Success("k1", "https://blob/a.wav", created, expires, true).Descriptor()

	if d.URL == nil || *d.URL != "https://blob/a.wav" {
		t.Fatalf("unexpected url %v", d.URL)
	}
	if d.Error != nil {
		t.Fatalf("success descriptor must not carry an error, got %q", *d.Error)
	}
	if !d.Cached {
		t.Fatal("expected cached=true")
	}
	if d.ExpiresAt == nil || *d.ExpiresAt != "2024-05-08T09:00:00Z" {
		t.Fatalf("unexpected expiresAt %v", d.ExpiresAt)
	}
}

func TestFailureDescriptorWireShape(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	res := Failure("k2", errors.New("engine down"), now, 24*time.Hour)

	if res.OK() {
		t.Fatal("failure result must not be OK")
	}

	raw, err := json.Marshal(res.Descriptor())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if v, ok := decoded["url"]; !ok || v != nil {
		t.Fatalf("url must be present and null, got %v", decoded["url"])
	}
	if decoded["error"] != "engine down" {
		t.Fatalf("unexpected error field %v", decoded["error"])
	}
	if decoded["cached"] != false {
		t.Fatalf("failure must report cached=false, got %v", decoded["cached"])
	}
	if decoded["expiresAt"] != "2024-05-02T09:00:00Z" {
		t.Fatalf("unexpected fallback expiry %v", decoded["expiresAt"])
	}
}

func TestEntryValidityAndPatch(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	entry := CacheEntry{
		Key:            "k",
		StoragePath:    "tts/k.wav",
		URL:            "old",
		CreatedAt:      now,
		URLExpiresAt:   now.Add(time.Hour),
		CacheExpiresAt: now.Add(30 * 24 * time.Hour),
	}

	if !entry.URLValid(now.Add(time.Hour)) {
		t.Fatal("url should be valid at its exact expiry instant")
	}
	if entry.URLValid(now.Add(time.Hour + time.Second)) {
		t.Fatal("url should be invalid after expiry")
	}
	if entry.Stale(now.Add(29 * 24 * time.Hour)) {
		t.Fatal("entry should not be stale inside the horizon")
	}

	patched := entry.Apply(URLPatch{URL: "new", URLExpiresAt: now.Add(2 * time.Hour)})
	if patched.URL != "new" || patched.StoragePath != entry.StoragePath || !patched.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("patch touched immutable fields: %+v", patched)
	}
	if entry.URL != "old" {
		t.Fatal("Apply must not mutate the receiver")
	}
}

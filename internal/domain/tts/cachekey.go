package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
)

// DeriveKey returns the cache key for a speaker and the text as the caller
// supplied it. Keys are computed before normalization so that entries written
// by earlier deployments stay addressable.
func DeriveKey(speakerID int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%s", speakerID, text)))
	return hex.EncodeToString(sum[:])
}

// TextHash is the sha256 of the original text, stored as blob metadata.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StoragePath places the audio for key under folder.
func StoragePath(folder, key, ext string) string {
	return path.Join(folder, key+ext)
}

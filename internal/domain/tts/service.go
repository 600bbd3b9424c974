package tts

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"mochimon-server-go/internal/domain/eventbus"
	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/inter"
	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/logging"
	"mochimon-server-go/internal/platform/observability"
)

const (
	DefaultFolder       = "tts"
	DefaultCacheHorizon = 30 * 24 * time.Hour
	DefaultErrorExpiry  = 24 * time.Hour

	fallbackContentType = "audio/wav"
	fallbackExtension   = ".wav"
)

// Options wires the service to its collaborators.
type Options struct {
	Store       inter.MetadataStore
	Blobs       inter.BlobStore
	Synthesizer inter.SynthesisClient
	Events      inter.EventPublisher
	Logger      *logging.Logger

	// Folder is the blob prefix audio is written under.
	Folder string
	// CacheHorizon is how long an entry is considered reusable.
	CacheHorizon time.Duration
	// URLValidity is the signed URL lifetime, capped at inter.MaxURLValidity.
	URLValidity time.Duration
	// ErrorExpiry is the retry hint attached to degraded results.
	ErrorExpiry time.Duration
	// EnforceCacheHorizon purges entries past CacheHorizon on read.
	EnforceCacheHorizon bool

	Clock func() time.Time
}

// AudioCacheService resolves (speaker, text) pairs to playable audio URLs,
// synthesizing only when no reusable blob exists.
type AudioCacheService struct {
	store  inter.MetadataStore
	blobs  inter.BlobStore
	synth  inter.SynthesisClient
	events inter.EventPublisher
	logger *logging.Logger

	folder         string
	cacheHorizon   time.Duration
	urlValidity    time.Duration
	errorExpiry    time.Duration
	enforceHorizon bool
	now            func() time.Time

	flights singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	refreshes atomic.Int64
	purges    atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64
}

// NewAudioCacheService validates opts and fills defaults.
func NewAudioCacheService(opts Options) (*AudioCacheService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New(errors.KindConfig, "tts.service.new", "metadata store is required")
	case opts.Blobs == nil:
		return nil, errors.New(errors.KindConfig, "tts.service.new", "blob store is required")
	case opts.Synthesizer == nil:
		return nil, errors.New(errors.KindConfig, "tts.service.new", "synthesis client is required")
	}

	s := &AudioCacheService{
		store:          opts.Store,
		blobs:          opts.Blobs,
		synth:          opts.Synthesizer,
		events:         opts.Events,
		logger:         opts.Logger,
		folder:         strings.Trim(opts.Folder, "/"),
		cacheHorizon:   opts.CacheHorizon,
		urlValidity:    opts.URLValidity,
		errorExpiry:    opts.ErrorExpiry,
		enforceHorizon: opts.EnforceCacheHorizon,
		now:            opts.Clock,
	}
	if s.folder == "" {
		s.folder = DefaultFolder
	}
	if s.cacheHorizon <= 0 {
		s.cacheHorizon = DefaultCacheHorizon
	}
	if s.urlValidity <= 0 || s.urlValidity > inter.MaxURLValidity {
		s.urlValidity = inter.MaxURLValidity
	}
	if s.errorExpiry <= 0 {
		s.errorExpiry = DefaultErrorExpiry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// GetAudio returns the audio for text spoken by speakerID. It never returns
// an error: failures are reported as a degraded result.
func (s *AudioCacheService) GetAudio(ctx context.Context, text string, speakerID int) aggregate.AudioResult {
	ctx, end := observability.StartSpan(ctx, "tts", "get_audio")
	key := DeriveKey(speakerID, text)
	start := s.now()

	result, outcome := s.lookup(ctx, key, text, speakerID)

	end(result.Err)
	observability.RecordMetric(ctx, "tts_cache_lookups", 1, map[string]string{"outcome": outcome})
	observability.RecordMetric(ctx, "tts_get_audio_duration_ms", float64(s.now().Sub(start).Milliseconds()), map[string]string{"outcome": outcome})
	return result
}

func (s *AudioCacheService) lookup(ctx context.Context, key, text string, speakerID int) (aggregate.AudioResult, string) {
	now := s.now()

	entry, found, err := s.store.Get(ctx, key)
	if err != nil {
		return s.fail(key, speakerID, "", errors.Wrap(errors.KindStorage, "tts.get_audio", "metadata lookup failed", err)), "error"
	}

	if found && s.enforceHorizon && entry.Stale(now) {
		s.purge(ctx, entry, "cache horizon exceeded")
		found = false
	}

	if found {
		if entry.URLValid(now) {
			s.hits.Add(1)
			s.publish(eventbus.EventTTSHit, eventbus.TTSEventData{
				CacheKey:    key,
				SpeakerID:   speakerID,
				StoragePath: entry.StoragePath,
				Cached:      true,
			})
			return aggregate.Success(key, entry.URL, entry.CreatedAt, entry.URLExpiresAt, true), "hit"
		}

		result, refreshed := s.refresh(ctx, entry, now)
		if refreshed {
			return result, "refresh"
		}
		if result.Kind == aggregate.ResultFailure {
			return result, "error"
		}
	}

	result := s.synthesizeOnce(ctx, key, text, speakerID)
	if result.Kind == aggregate.ResultFailure {
		return result, "error"
	}
	return result, "miss"
}

// refresh re-signs the URL of an entry whose blob still exists. It reports
// refreshed=false with a zero result when the blob is gone and the caller
// should synthesize again.
func (s *AudioCacheService) refresh(ctx context.Context, entry aggregate.CacheEntry, now time.Time) (aggregate.AudioResult, bool) {
	key := entry.Key

	exists, err := s.blobs.Exists(ctx, entry.StoragePath)
	if err != nil {
		return s.fail(key, entry.SpeakerID, entry.StoragePath, errors.Wrap(errors.KindStorage, "tts.refresh", "blob existence check failed", err)), false
	}
	if !exists {
		stale := errors.New(errors.KindStaleBlob, "tts.refresh", "blob missing for cache entry "+key+" at "+entry.StoragePath)
		s.logger.WarnTag("TTS", "%v", stale)
		s.purgeEntry(ctx, entry, stale.Error())
		return aggregate.AudioResult{}, false
	}

	url, err := s.blobs.SignURL(ctx, entry.StoragePath, s.urlValidity)
	if err != nil {
		return s.fail(key, entry.SpeakerID, entry.StoragePath, errors.Wrap(errors.KindStorage, "tts.refresh", "failed to re-sign url", err)), false
	}
	patch := aggregate.URLPatch{URL: url, URLExpiresAt: now.Add(s.urlValidity)}
	if err := s.store.Update(ctx, key, patch); err != nil {
		return s.fail(key, entry.SpeakerID, entry.StoragePath, errors.Wrap(errors.KindStorage, "tts.refresh", "failed to update cache entry", err)), false
	}

	s.refreshes.Add(1)
	s.logger.DebugTag("TTS", "刷新签名URL key=%s 有效期至=%s", key, patch.URLExpiresAt.Format(time.RFC3339))
	s.publish(eventbus.EventTTSRefreshed, eventbus.TTSEventData{
		CacheKey:    key,
		SpeakerID:   entry.SpeakerID,
		StoragePath: entry.StoragePath,
		Cached:      true,
	})
	return aggregate.Success(key, url, entry.CreatedAt, patch.URLExpiresAt, true), true
}

// synthesizeOnce coalesces concurrent misses for the same key. The flight is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (s *AudioCacheService) synthesizeOnce(ctx context.Context, key, text string, speakerID int) aggregate.AudioResult {
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		now := s.now()
		if entry, found, err := s.store.Get(flightCtx, key); err == nil && found && entry.URLValid(now) &&
			!(s.enforceHorizon && entry.Stale(now)) {
			s.hits.Add(1)
			return aggregate.Success(key, entry.URL, entry.CreatedAt, entry.URLExpiresAt, true), nil
		}
		return s.synthesize(flightCtx, key, text, speakerID), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.coalesced.Add(1)
		}
		return res.Val.(aggregate.AudioResult)
	case <-ctx.Done():
		return s.fail(key, speakerID, "", errors.Wrap(errors.KindSynthesis, "tts.synthesize", "request cancelled while waiting for synthesis", ctx.Err()))
	}
}

func (s *AudioCacheService) synthesize(ctx context.Context, key, text string, speakerID int) aggregate.AudioResult {
	start := s.now()

	audio, err := s.synth.Synthesize(ctx, Normalize(text), speakerID)
	if err != nil {
		return s.fail(key, speakerID, "", errors.Wrap(errors.KindSynthesis, "tts.synthesize", "synthesis failed", err))
	}
	if len(audio) == 0 {
		return s.fail(key, speakerID, "", errors.New(errors.KindSynthesis, "tts.synthesize", "synthesis returned no audio"))
	}

	contentType, ext := detectAudio(audio)
	storagePath := StoragePath(s.folder, key, ext)
	metadata := map[string]string{
		"speakerId": strconv.Itoa(speakerID),
		"textHash":  TextHash(text),
		"createdAt": start.UTC().Format(time.RFC3339),
	}
	if err := s.blobs.Upload(ctx, storagePath, audio, contentType, metadata); err != nil {
		return s.fail(key, speakerID, storagePath, errors.Wrap(errors.KindStorage, "tts.upload", "failed to store audio", err))
	}

	url, err := s.blobs.SignURL(ctx, storagePath, s.urlValidity)
	if err != nil {
		s.discardBlob(ctx, storagePath)
		return s.fail(key, speakerID, storagePath, errors.Wrap(errors.KindStorage, "tts.sign", "failed to sign audio url", err))
	}

	entry := aggregate.CacheEntry{
		Key:            key,
		StoragePath:    storagePath,
		URL:            url,
		ContentType:    contentType,
		SpeakerID:      speakerID,
		TextLength:     len([]rune(text)),
		CreatedAt:      start,
		URLExpiresAt:   start.Add(s.urlValidity),
		CacheExpiresAt: start.Add(s.cacheHorizon),
	}
	if err := s.store.Set(ctx, key, entry); err != nil {
		s.discardBlob(ctx, storagePath)
		return s.fail(key, speakerID, storagePath, errors.Wrap(errors.KindStorage, "tts.persist", "failed to save cache entry", err))
	}

	elapsed := s.now().Sub(start)
	s.misses.Add(1)
	s.logger.InfoTag("TTS", "新合成音频 key=%s speaker=%d path=%s 耗时=%s", key, speakerID, storagePath, elapsed)
	s.publish(eventbus.EventTTSSynthesized, eventbus.TTSEventData{
		CacheKey:    key,
		SpeakerID:   speakerID,
		StoragePath: storagePath,
		DurationMS:  elapsed.Milliseconds(),
	})
	return aggregate.Success(key, url, entry.CreatedAt, entry.URLExpiresAt, false)
}

// purge removes an entry and its blob. Used when the cache horizon is enforced.
func (s *AudioCacheService) purge(ctx context.Context, entry aggregate.CacheEntry, reason string) {
	s.discardBlob(ctx, entry.StoragePath)
	s.purgeEntry(ctx, entry, reason)
}

func (s *AudioCacheService) purgeEntry(ctx context.Context, entry aggregate.CacheEntry, reason string) {
	if err := s.store.Delete(ctx, entry.Key); err != nil {
		s.logger.WarnTag("TTS", "删除缓存条目失败 key=%s: %v", entry.Key, err)
	}
	s.purges.Add(1)
	s.logger.InfoTag("TTS", "清除缓存条目 key=%s 原因=%s", entry.Key, reason)
	s.publish(eventbus.EventTTSPurged, eventbus.TTSEventData{
		CacheKey:    entry.Key,
		SpeakerID:   entry.SpeakerID,
		StoragePath: entry.StoragePath,
		Error:       reason,
	})
}

func (s *AudioCacheService) discardBlob(ctx context.Context, storagePath string) {
	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		s.logger.WarnTag("TTS", "删除音频对象失败 path=%s: %v", storagePath, err)
	}
}

func (s *AudioCacheService) fail(key string, speakerID int, storagePath string, err error) aggregate.AudioResult {
	s.failures.Add(1)
	s.logger.ErrorTag("TTS", "获取音频失败 key=%s speaker=%d: %v", key, speakerID, err)
	s.publish(eventbus.EventTTSError, eventbus.TTSEventData{
		CacheKey:    key,
		SpeakerID:   speakerID,
		StoragePath: storagePath,
		Error:       err.Error(),
	})
	return aggregate.Failure(key, err, s.now(), s.errorExpiry)
}

func (s *AudioCacheService) publish(topic string, data eventbus.TTSEventData) {
	if s.events == nil {
		return
	}
	data.OccurredAt = s.now()
	s.events.Publish(topic, data)
}

// Stats returns service counters and the metadata store's own statistics.
func (s *AudioCacheService) Stats(ctx context.Context) (map[string]any, error) {
	storeStats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "tts.stats", "failed to read store stats", err)
	}
	return map[string]any{
		"hits":      s.hits.Load(),
		"misses":    s.misses.Load(),
		"refreshes": s.refreshes.Load(),
		"purges":    s.purges.Load(),
		"failures":  s.failures.Load(),
		"coalesced": s.coalesced.Load(),
		"store":     storeStats,
		"folder":    s.folder,
		"horizon_h": s.cacheHorizon.Hours(),
		"enforced":  s.enforceHorizon,
	}, nil
}

// CleanupExpired drops entries past their horizon together with their blobs.
// Without an enforced horizon entries are never swept and it reports 0.
func (s *AudioCacheService) CleanupExpired(ctx context.Context) (int, error) {
	if !s.enforceHorizon {
		return 0, nil
	}
	removed, err := s.store.CleanupExpired(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "tts.cleanup", "failed to clean expired entries", err)
	}
	for _, entry := range removed {
		s.discardBlob(ctx, entry.StoragePath)
		s.purges.Add(1)
		s.publish(eventbus.EventTTSPurged, eventbus.TTSEventData{
			CacheKey:    entry.Key,
			SpeakerID:   entry.SpeakerID,
			StoragePath: entry.StoragePath,
			Error:       "cache horizon exceeded",
		})
	}
	return len(removed), nil
}

// detectAudio sniffs the content type, defaulting to WAV which is what the
// engine emits.
func detectAudio(data []byte) (string, string) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "audio/") || mt.Extension() == "" {
		return fallbackContentType, fallbackExtension
	}
	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return contentType, mt.Extension()
}

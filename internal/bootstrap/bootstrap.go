package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainauth "mochimon-server-go/internal/domain/auth"
	"mochimon-server-go/internal/domain/eventbus"
	eventrepo "mochimon-server-go/internal/domain/eventbus/infrastructure"
	"mochimon-server-go/internal/domain/eventbus/repository"
	"mochimon-server-go/internal/domain/tts"
	"mochimon-server-go/internal/domain/tts/blob"
	ttsinfra "mochimon-server-go/internal/domain/tts/infrastructure"
	"mochimon-server-go/internal/domain/tts/infrastructure/voicevox"
	"mochimon-server-go/internal/domain/tts/inter"
	"mochimon-server-go/internal/domain/tts/store"
	platformconfig "mochimon-server-go/internal/platform/config"
	platformerrors "mochimon-server-go/internal/platform/errors"
	platformlogging "mochimon-server-go/internal/platform/logging"
	platformobservability "mochimon-server-go/internal/platform/observability"
	platformstorage "mochimon-server-go/internal/platform/storage"
	httptransport "mochimon-server-go/internal/transport/http"
	"mochimon-server-go/internal/transport/http/ttsapi"
)

const (
	eventRetention  = 30 * 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

// Options controls how Run locates its configuration.
type Options struct {
	ConfigPath string
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	loader                *platformconfig.Loader
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	db                    *gorm.DB
	observabilityShutdown platformobservability.ShutdownFunc
	bus                   *eventbus.Bus
	events                repository.EventRepository
	metadata              inter.MetadataStore
	blobs                 inter.BlobStore
	synth                 inter.SynthesisClient
	service               *tts.AudioCacheService
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context, opts Options) error {
	state := &appState{configPath: opts.ConfigPath}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	logger.InfoTag("Bootstrap", "服务已成功启动")
	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Bootstrap", "初始化依赖关系概览")
	for _, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.InfoTag("Bootstrap", "%s (%s) <- %s", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "tts:init-service",
			Title:     "Initialise audio cache service",
			DependsOn: []string{"events:init-bus", "observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initTTSServiceStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader().WithPath(state.configPath)
	}
	res, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = res.Config
	state.configPath = res.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
		Console:  state.config.Log.Console,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()

	source := state.configPath
	if source == "" {
		source = "defaults+env"
	}
	logger.InfoTag("Bootstrap", "日志模块就绪 [%s] %s", state.config.Log.Level, source)
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Database.Path)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	state.db = db
	state.logger.InfoTag("Storage", "数据库就绪 %s", state.config.Database.Path)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	obs := state.config.Observability
	cfg := platformobservability.Config{
		Enabled:       obs.Enabled,
		ServiceName:   obs.ServiceName,
		Environment:   obs.Environment,
		TraceExporter: obs.TraceExporter,
		OTLPEndpoint:  obs.OTLPEndpoint,
		OTLPInsecure:  obs.OTLPInsecure,
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New(0, 0)
	state.events = eventrepo.NewEventRepository(state.db)

	recorder := eventbus.NewRecorder(state.events, state.logger)
	if err := recorder.Attach(state.bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to attach event recorder", err)
	}
	state.logger.InfoTag("Events", "事件总线就绪，订阅主题 %d 个", len(eventbus.TTSTopics))
	return nil
}

func initTTSServiceStep(ctx context.Context, state *appState) error {
	cfg := state.config

	metadata, err := store.New(store.Config{
		Driver:          strings.ToLower(cfg.Store.Driver),
		CacheTTL:        cfg.Store.CacheTTL,
		ExpireAtHorizon: cfg.TTS.EnforceCacheHorizon,
		Redis: &store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		},
	}, store.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "tts:init-store", "failed to create metadata store", err)
	}
	state.metadata = metadata

	blobs, err := blob.New(ctx, blob.Config{
		Driver: strings.ToLower(cfg.Blob.Driver),
		Bucket: cfg.Blob.Bucket,
		Local: blob.LocalConfig{
			Root:          cfg.Blob.Local.Root,
			PublicBaseURL: cfg.Server.PublicBaseURL,
			SigningKey:    signingKey(cfg, state.logger),
		},
		S3: blob.S3Config{
			Region:          cfg.Blob.S3.Region,
			Endpoint:        cfg.Blob.S3.Endpoint,
			ForcePathStyle:  cfg.Blob.S3.ForcePathStyle,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
		},
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "tts:init-blob", "failed to create blob store", err)
	}
	state.blobs = blobs

	synth, err := ttsinfra.NewSynthesisClient(ttsinfra.ProviderConfig{
		Type: cfg.TTS.Provider,
		VOICEVOX: voicevox.Config{
			BaseURL: cfg.TTS.EngineURL,
			Timeout: cfg.TTS.SynthesisTimeout,
			Breaker: voicevox.BreakerConfig{
				ConsecutiveFailures: cfg.TTS.Breaker.ConsecutiveFailures,
				OpenTimeout:         cfg.TTS.Breaker.OpenTimeout,
				HalfOpenRequests:    cfg.TTS.Breaker.HalfOpenRequests,
			},
		},
	}, state.logger)
	if err != nil {
		return err
	}
	state.synth = synth

	service, err := tts.NewAudioCacheService(tts.Options{
		Store:               metadata,
		Blobs:               blobs,
		Synthesizer:         synth,
		Events:              state.bus,
		Logger:              state.logger,
		Folder:              cfg.TTS.Folder,
		CacheHorizon:        cfg.TTS.CacheHorizon(),
		URLValidity:         cfg.TTS.URLValidity,
		ErrorExpiry:         cfg.TTS.ErrorExpiry,
		EnforceCacheHorizon: cfg.TTS.EnforceCacheHorizon,
	})
	if err != nil {
		return err
	}
	state.service = service

	state.logger.InfoTag("TTS", "语音缓存服务就绪 store=%s blob=%s engine=%s horizon=%dd",
		cfg.Store.Driver, cfg.Blob.Driver, cfg.TTS.EngineURL, cfg.TTS.CacheExpiryDays)
	return nil
}

// signingKey picks the local blob signing key. Without one configured, a
// random key is used and previously issued URLs stop working on restart.
func signingKey(cfg *platformconfig.Config, logger *platformlogging.Logger) string {
	if key := cfg.Blob.Local.SigningKey; key != "" {
		return key
	}
	if cfg.Server.Auth.Secret != "" {
		return cfg.Server.Auth.Secret
	}
	if strings.EqualFold(cfg.Blob.Driver, blob.DriverLocal) {
		logger.WarnTag("Blob", "未配置 blob.local.signing_key，使用临时密钥，重启后已签发的URL将失效")
	}
	return uuid.NewString()
}

// close releases everything the init steps acquired, in reverse order.
func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.bus != nil {
		s.bus.Close()
	}
	if s.metadata != nil {
		if err := s.metadata.Close(ctx); err != nil {
			s.logger.WarnTag("Storage", "元数据存储未正常关闭: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("Bootstrap", "可观测性未正常关闭: %v", err)
		}
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag("Storage", "数据库未正常关闭: %v", err)
		}
	}
	if s.logger != nil {
		s.logger.Close()
	}
}

func buildRouter(ctx context.Context, state *appState) (*gin.Engine, error) {
	cfg := state.config

	opts := httptransport.Options{
		Logger:         state.logger,
		Debug:          strings.EqualFold(cfg.Log.Level, "debug"),
		MetricsHandler: platformobservability.MetricsHandler(),
		Health: func() map[string]any {
			return map[string]any{
				"store":          cfg.Store.Driver,
				"blob":           cfg.Blob.Driver,
				"events_dropped": state.bus.Dropped(),
				"engine_breaker": ttsinfra.EngineState(state.synth),
			}
		},
	}
	if cfg.Server.Auth.Enabled {
		tokens, err := domainauth.NewAuthToken(cfg.Server.Auth.Secret)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "http:init-auth", "failed to create token verifier", err)
		}
		opts.AuthMiddleware = httptransport.BearerAuth(tokens, state.logger)
	}

	httpRouter, err := httptransport.Build(opts)
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "api Not found", gin.H{})
	})

	var blobServer ttsapi.BlobServer
	if local, ok := state.blobs.(*blob.LocalStore); ok {
		blobServer = local
	}
	ttsService, err := ttsapi.NewService(state.service, blobServer, state.logger)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "ttsapi:new-service", "failed to create tts http service", err)
	}
	if err := ttsService.Register(ctx, httpRouter.Secured, httpRouter.API); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "ttsapi:register", "failed to register tts routes", err)
	}
	return router, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	router, err := buildRouter(groupCtx, state)
	if err != nil {
		return nil, err
	}
	cfg := state.config
	logger := state.logger

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，监听 %s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			timeout := cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// startJanitor periodically sweeps old events, and expired cache entries when
// the cache horizon is enforced.
func startJanitor(state *appState, g *errgroup.Group, groupCtx context.Context) {
	interval := state.config.Store.CleanupInterval
	if interval <= 0 {
		return
	}
	logger := state.logger

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				sweep(groupCtx, state)
			}
		}
	})
	logger.InfoTag("Storage", "过期清理任务已启动，间隔 %s", interval)
}

func sweep(ctx context.Context, state *appState) {
	if removed, err := state.service.CleanupExpired(ctx); err != nil {
		state.logger.WarnTag("Storage", "清理过期缓存失败: %v", err)
	} else if removed > 0 {
		state.logger.InfoTag("Storage", "已清理过期缓存 %d 条", removed)
	}
	if state.events != nil {
		if err := state.events.DeleteOldEvents(ctx, time.Now().Add(-eventRetention)); err != nil {
			state.logger.WarnTag("Events", "清理历史事件失败: %v", err)
		}
	}
}

func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("Bootstrap", "收到系统信号 %v，正在进行资源清理", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("Bootstrap", "服务异常退出，正在进行资源清理")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "所有服务已成功关闭")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("Bootstrap", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}
	startJanitor(state, g, groupCtx)
	return nil
}

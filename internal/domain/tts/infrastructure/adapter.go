package infrastructure

import (
	"context"
	"strconv"
	"strings"
	"time"

	"mochimon-server-go/internal/domain/tts/infrastructure/voicevox"
	"mochimon-server-go/internal/domain/tts/inter"
	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/logging"
	"mochimon-server-go/internal/platform/observability"
)

// ProviderVOICEVOX is the only synthesis engine currently supported.
const ProviderVOICEVOX = "voicevox"

// ProviderConfig selects and configures the synthesis engine.
type ProviderConfig struct {
	Type     string
	VOICEVOX voicevox.Config
}

// NewSynthesisClient 根据配置创建合成引擎客户端，并附加埋点
func NewSynthesisClient(cfg ProviderConfig, logger *logging.Logger) (inter.SynthesisClient, error) {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Type))
	if providerType == "" {
		providerType = ProviderVOICEVOX
	}

	switch providerType {
	case ProviderVOICEVOX:
		client, err := voicevox.New(cfg.VOICEVOX, logger)
		if err != nil {
			return nil, err
		}
		return Instrument(providerType, client, logger), nil
	default:
		return nil, errors.New(errors.KindConfig, "tts.provider", "unsupported synthesis provider: "+cfg.Type)
	}
}

// instrumentedClient 为合成调用记录 span、耗时和结果计数
type instrumentedClient struct {
	name   string
	inner  inter.SynthesisClient
	logger *logging.Logger
}

// Instrument wraps client so every call is traced and measured.
func Instrument(name string, client inter.SynthesisClient, logger *logging.Logger) inter.SynthesisClient {
	return &instrumentedClient{name: name, inner: client, logger: logger}
}

// EngineState reports the circuit breaker state of client, or "unknown" when
// the client does not expose one.
func EngineState(client inter.SynthesisClient) string {
	for {
		switch c := client.(type) {
		case *instrumentedClient:
			client = c.inner
		case interface{ State() string }:
			return c.State()
		default:
			return "unknown"
		}
	}
}

func (c *instrumentedClient) Synthesize(ctx context.Context, text string, speakerID int) ([]byte, error) {
	ctx, end := observability.StartSpan(ctx, "tts.synthesis", c.name)
	start := time.Now()

	data, err := c.inner.Synthesize(ctx, text, speakerID)
	elapsed := time.Since(start)
	end(err)

	labels := map[string]string{
		"provider": c.name,
		"speaker":  strconv.Itoa(speakerID),
		"status":   "ok",
	}
	if err != nil {
		labels["status"] = "error"
		c.logger.WarnTag("TTS", "合成失败 provider=%s speaker=%d 耗时=%s: %v", c.name, speakerID, elapsed, err)
	} else {
		c.logger.InfoTag("TTS", "合成完成 provider=%s speaker=%d 文本长度=%d 音频=%dB 耗时=%s",
			c.name, speakerID, len([]rune(text)), len(data), elapsed)
	}
	observability.RecordMetric(ctx, "tts_synthesis_requests", 1, labels)
	observability.RecordMetric(ctx, "tts_synthesis_duration_ms", float64(elapsed.Milliseconds()), labels)

	return data, err
}

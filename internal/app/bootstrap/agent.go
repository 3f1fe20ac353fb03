package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tsclabs/salon-voice-ai/internal/agent"
	"github.com/tsclabs/salon-voice-ai/internal/calcom"
	appconfig "github.com/tsclabs/salon-voice-ai/internal/config"
	"github.com/tsclabs/salon-voice-ai/internal/notify"
	"github.com/tsclabs/salon-voice-ai/internal/observability/metrics"
	"github.com/tsclabs/salon-voice-ai/internal/otp"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/internal/timeparse"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// BuildGateway returns the Cal.com scheduling gateway.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) *calcom.Client {
	return calcom.NewClient(calcom.Config{
		APIKey:       cfg.CalAPIKey,
		APIVersion:   cfg.CalAPIVersion,
		V1BaseURL:    cfg.CalV1BaseURL,
		V2BaseURL:    cfg.CalV2BaseURL,
		Username:     cfg.CalUsername,
		AttendeeZone: cfg.Timezone,
		DialCode:     cfg.DialCode,
	}, logger,
		calcom.WithTimeout(cfg.CalTimeout),
		calcom.WithDryRun(cfg.CalDryRun),
	)
}

// BuildSessionFactory assembles everything a session needs and returns a
// factory the HTTP layer calls once per conversation. The service catalog
// is warmed up front; a failure only means the first call fetches it.
func BuildSessionFactory(ctx context.Context, cfg *appconfig.Config, gateway scheduling.Gateway, sender notify.EmailSender, redisClient *redis.Client, m *metrics.AgentMetrics, logger *logging.Logger) (func() *agent.Session, *agent.Transcript) {
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	guard := otp.NewGuard()
	if cfg.OTPExpiry > 0 {
		guard.Expiry = cfg.OTPExpiry
	}
	if cfg.OTPResendCooldown > 0 {
		guard.ResendCooldown = cfg.OTPResendCooldown
	}
	if cfg.OTPMaxResends > 0 {
		guard.MaxResends = cfg.OTPMaxResends
	}

	resolver := timeparse.NewResolver(cfg.Timezone)
	cache := scheduling.NewServiceCache(gateway, cfg.ServiceCacheTTL)
	if services, err := cache.Get(ctx, true); err != nil {
		logger.Warn("service catalog warmup failed", "error", err)
	} else {
		logger.Info("service catalog warmed", "count", len(services))
	}
	notifier := notify.NewService(sender, cfg.SalonName, guard.Expiry, logger)
	transcript := agent.NewTranscript(redisClient)

	zone := resolver.Zone
	if zone == nil {
		zone = time.UTC
	}

	factory := func() *agent.Session {
		return agent.NewSession(agent.Deps{
			Gateway:       gateway,
			Services:      cache,
			Notifier:      notifier,
			Resolver:      resolver,
			Guard:         guard,
			Transcript:    transcript,
			Metrics:       m,
			Logger:        logger,
			Zone:          zone,
			DialCode:      cfg.DialCode,
			HorizonDays:   cfg.HorizonDays,
			MaxSlotsShown: cfg.MaxSlotsShown,
		})
	}
	return factory, transcript
}

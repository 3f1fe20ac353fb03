package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/tsclabs/salon-voice-ai/cmd/mainconfig"
	appconfig "github.com/tsclabs/salon-voice-ai/internal/config"
	"github.com/tsclabs/salon-voice-ai/internal/notify"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// BuildEmailSender selects the email provider from configuration.
// EMAIL_PROVIDER accepts "sendgrid", "ses", "stub", or "auto"; auto
// prefers SendGrid, falls back to SES, then to the logging stub so
// local runs still surface verification codes.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := cfg.EmailProvider
	if provider == "" {
		provider = "auto"
	}

	if provider == "sendgrid" || (provider == "auto" && strings.TrimSpace(cfg.SendGridAPIKey) != "") {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			logger.Info("email provider selected", "provider", "sendgrid")
			return sender
		}
		logger.Warn("sendgrid requested but not configured")
	}

	if provider == "ses" || (provider == "auto" && strings.TrimSpace(cfg.SESFromEmail) != "") {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("SES unavailable, falling back to stub", "error", err)
		} else if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			logger.Info("email provider selected", "provider", "ses")
			return sender
		}
	}

	logger.Warn("no email provider configured, codes will only be logged")
	return notify.NewStubEmailSender(logger)
}

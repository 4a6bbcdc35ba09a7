package commands

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/output"
	"github.com/ccollicutt/logsniff/pkg/webhook"
)

// WebhookOptions holds the command-line webhook flags.
type WebhookOptions struct {
	URL     string
	Token   string
	Trigger string
}

// sendWebhooks sends the report to all configured webhooks.
// Errors are reported on stderr but don't fail the run.
func sendWebhooks(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts WebhookOptions, report *output.Report, stderr io.Writer) {
	webhooks := collectWebhooks(cfg, opts)
	if len(webhooks) == 0 {
		return
	}

	client := webhook.NewClient(webhook.WithLogger(logger))

	for _, wh := range webhooks {
		if !shouldFireWebhook(wh.Trigger, report.HasFailures()) {
			continue
		}

		resp := client.Send(ctx, report, webhook.SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout,
		})

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		if resp.Success() {
			fmt.Fprintf(stderr, "Webhook %s: sent (%d, %s)\n", name, resp.StatusCode, resp.Duration)
		} else {
			fmt.Fprintf(stderr, "Webhook %s: failed (%v)\n", name, resp.Error)
		}
	}
}

// collectWebhooks merges config file webhooks with the command-line webhook.
func collectWebhooks(cfg *config.Config, opts WebhookOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)
	webhooks = append(webhooks, cfg.Webhooks...)

	if opts.URL != "" {
		trigger := config.WebhookTrigger(opts.Trigger)
		if trigger == "" {
			trigger = config.WebhookTriggerOnFailure
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.URL,
			Token:   opts.Token,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}

// shouldFireWebhook determines if a webhook should fire based on its trigger
// and whether any source failed.
func shouldFireWebhook(trigger config.WebhookTrigger, failed bool) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return failed
	}
}

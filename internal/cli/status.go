package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/gateway"
	"github.com/soyeahso/botkit/internal/version"
)

func newStatusCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and probe a running bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "botkit %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printSummary(out, cfg)

			health, err := probe(cfg.Gateway, timeout)
			if err != nil {
				fmt.Fprintf(out, "Running: no (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Running: %s app=%s uptime=%s clients=%d\n",
					health.Status, health.App, time.Duration(health.UptimeMs)*time.Millisecond, health.Clients)
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "health probe timeout")
	return cmd
}

func printSummary(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s devtools=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.Devtools.Enabled)

	appID := cfg.Bot.AppID
	if appID == "" {
		appID = "(none)"
	}
	fmt.Fprintf(out, "Bot:     name=%s appId=%s oauth=%s\n", cfg.Bot.Name, appID, cfg.Bot.OAuthConnection)
	fmt.Fprintf(out, "Stream:  debounce=%s batch=%d retries=%d\n",
		cfg.Stream.Debounce(), cfg.Stream.BatchSize, cfg.Stream.Retries())
	fmt.Fprintf(out, "Storage: %s\n", cfg.Storage.Driver)

	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(out, "IRC:     server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:     (not configured)")
	}
}

// probe asks a running gateway for its health.
func probe(cfg config.GatewayConfig, timeout time.Duration) (*gateway.HealthResponse, error) {
	host := "127.0.0.1"
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" {
		host = cfg.CustomBindHost
	}
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(fmt.Sprintf("%s://%s:%d/health", scheme, host, cfg.Port))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &h, nil
}

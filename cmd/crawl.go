// File: cmd/crawl.go
package cmd

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tokgrab/internal/apiclient"
	"tokgrab/internal/browser"
	"tokgrab/internal/config"
	"tokgrab/internal/crawler"
	"tokgrab/internal/domscrape"
	"tokgrab/internal/export"
	"tokgrab/internal/intercept"
	"tokgrab/internal/observability"
	"tokgrab/internal/orchestrate"
	"tokgrab/internal/session"
)

// newCrawlCmd creates and configures the `crawl` command.
func newCrawlCmd() *cobra.Command {
	crawlCmd := &cobra.Command{
		Use:   "crawl [keywords...]",
		Short: "Crawls search results for one or more keywords",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override config-file and env values.
			if err := viper.BindPFlag("browser.enabled", cmd.Flags().Lookup("browser")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("export.output_dir", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-read the config so the bound flags take effect.
			loaded, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg = loaded

			apiName, err := cmd.Flags().GetString("api")
			if err != nil {
				return err
			}

			c, err := buildPipeline(cfg, apiName, logger)
			if err != nil {
				return err
			}

			paths, err := c.CrawlAll(ctx, args)
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return err
		},
	}

	crawlCmd.Flags().String("api", "search_general_preview", "named API from the config to call")
	crawlCmd.Flags().Bool("browser", true, "allow browser fallback stages")
	crawlCmd.Flags().Bool("headless", true, "run the browser headless")
	crawlCmd.Flags().String("output", "output", "directory for exported workbooks")
	return crawlCmd
}

// buildPipeline wires the acquisition chain from configuration.
func buildPipeline(cfg *config.Config, apiName string, logger *zap.Logger) (*crawler.Crawler, error) {
	apiCfg, ok := cfg.APIs[apiName]
	if !ok {
		return nil, fmt.Errorf("unknown api %q, check the apis section of the config", apiName)
	}
	spec, err := apiclient.NewRequestSpec(apiName, apiCfg)
	if err != nil {
		return nil, err
	}

	client := resty.New().SetTimeout(cfg.HTTP.Timeout)
	store := session.NewStore(cfg.Session, client, logger)
	executor := apiclient.NewExecutor(cfg, client, store, logger)

	var factory orchestrate.BrowserFactory
	if cfg.Browser.Enabled {
		userAgent := cfg.HTTP.Headers["user-agent"]
		factory = func(ctx context.Context) (browser.Automation, error) {
			return browser.NewSession(ctx, cfg.Browser, userAgent, logger)
		}
	}

	orchestrator := orchestrate.New(cfg, spec, executor, store,
		intercept.New(logger), domscrape.New(cfg.Extract, logger), factory, logger)

	exporter := export.New(cfg.Export, logger)
	return crawler.New(apiName, orchestrator, exporter, logger), nil
}

func init() {
	rootCmd.AddCommand(newCrawlCmd())
}

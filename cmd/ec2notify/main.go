package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/haneul-ops/ec2notify/internal/config"
	"github.com/haneul-ops/ec2notify/internal/handler"
	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/internal/server"
	"github.com/haneul-ops/ec2notify/internal/version"
	"github.com/haneul-ops/ec2notify/pkg/aws"
	"github.com/haneul-ops/ec2notify/pkg/formatter"
	"github.com/haneul-ops/ec2notify/pkg/slack"
	"github.com/haneul-ops/ec2notify/pkg/utils"
)

var cfgFile string

func main() {
	// Inside the Lambda runtime there is no argv to parse; hand control to
	// the runtime straight away.
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		runLambda()
		return
	}

	rootCmd := &cobra.Command{
		Use:   "ec2notify",
		Short: "Slack notifications for EC2 instance state changes",
		Long: `ec2notify turns EC2 instance state-change events into Slack messages,
attributing each change to the IAM identity that caused it via CloudTrail.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(newNotifyCmd(), newServeCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zapCfg.Level = lvl
	}
	return zapCfg.Build()
}

// awsClientFactory builds region-bound AWS clients per event. Events carry
// their own region, so the clients are constructed lazily.
func awsClientFactory(logger *zap.Logger) handler.ClientFactory {
	return func(region string) (handler.Clients, error) {
		ec2Client, err := aws.NewEC2Client(region)
		if err != nil {
			return handler.Clients{}, err
		}
		trailClient, err := aws.NewCloudTrailClient(region, logger)
		if err != nil {
			return handler.Clients{}, err
		}
		return handler.Clients{Metadata: ec2Client, Resolver: trailClient}, nil
	}
}

// newHandler wires the full pipeline from configuration. Fails before any
// AWS call when the webhook is missing or malformed.
func newHandler(cfg *config.Config, logger *zap.Logger) (*handler.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	webhook, err := slack.NewWebhook(cfg.Slack.WebhookURL, logger)
	if err != nil {
		return nil, err
	}

	builder := slack.NewMessageBuilder(slack.Mode(cfg.Slack.Mode), nil)
	return handler.New(awsClientFactory(logger), webhook, builder, cfg.Resolver.LookbackDays, logger)
}

func runLambda() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	h, err := newHandler(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build handler", zap.Error(err))
	}

	lambda.Start(h.HandleLambda)
}

func newNotifyCmd() *cobra.Command {
	var (
		instanceID   string
		state        string
		region       string
		lookbackDays int
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification for one instance state change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if lookbackDays > 0 {
				cfg.Resolver.LookbackDays = lookbackDays
			}

			if region == "" {
				region = utils.GetDefaultRegion()
			}
			if !utils.IsValidRegion(region) {
				return fmt.Errorf("invalid region %q", region)
			}

			parsedState, err := models.ParseState(state)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			clients, err := awsClientFactory(logger)(region)
			if err != nil {
				return err
			}

			ctx := context.Background()
			scanStart := time.Now()

			s := spinner.New(spinner.CharSets[9], 200*time.Millisecond)
			s.Suffix = fmt.Sprintf(" Resolving %s in %s ...", instanceID, region)
			s.Start()

			instance, err := clients.Metadata.GetInstanceInfo(ctx, instanceID)
			if err != nil {
				s.Stop()
				return err
			}

			actor, err := clients.Resolver.ResolveActor(ctx, instanceID, parsedState, cfg.Resolver.LookbackDays)
			if err != nil {
				s.Stop()
				return err
			}

			s.FinalMSG = fmt.Sprintf("✓ Instance resolved - Completed in %.2f seconds\n",
				time.Since(scanStart).Seconds())
			s.Stop()

			builder := slack.NewMessageBuilder(slack.Mode(cfg.Slack.Mode), nil)
			msg := builder.Build(instance, actor, string(parsedState), region, instanceID)

			if dryRun {
				payload, err := json.MarshalIndent(msg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(payload))
			} else {
				if err := cfg.Validate(); err != nil {
					return err
				}
				webhook, err := slack.NewWebhook(cfg.Slack.WebhookURL, logger)
				if err != nil {
					return err
				}
				if err := webhook.Send(ctx, msg); err != nil {
					return err
				}
				fmt.Println("Message sent to Slack.")
			}

			fmt.Println()
			formatter.PrintNotificationSummary(os.Stdout, instance, actor, string(parsedState))
			return nil
		},
	}

	cmd.Flags().StringVarP(&instanceID, "instance-id", "i", "", "EC2 instance ID (required)")
	cmd.Flags().StringVarP(&state, "state", "s", "", "Lifecycle state: running, stopping or terminated (required)")
	cmd.Flags().StringVarP(&region, "region", "r", "", fmt.Sprintf("AWS region (default: %s)", utils.GetDefaultRegion()))
	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "How many days of CloudTrail history to scan")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the message payload instead of sending it")
	cmd.MarkFlagRequired("instance-id")
	cmd.MarkFlagRequired("state")

	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake for EventBridge-style events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			h, err := newHandler(cfg, logger)
			if err != nil {
				return err
			}

			return server.New(h, logger).Run(cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :8080)")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("ec2notify %s (commit %s, built %s, %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion)
		},
	}
}

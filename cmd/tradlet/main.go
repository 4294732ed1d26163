package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rxtech-lab/argo-tradlet/internal/config"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet/builtin"
	"github.com/rxtech-lab/argo-tradlet/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const schemaName = "tradlet-config.json"

// runAction loads the configuration, starts every group and blocks until SIGINT or SIGTERM.
func runAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := cmd.String("config")
	changes := make(chan *config.Config, 1)
	invalid := make(chan error, 1)

	cfg, err := config.Watch(path,
		func(next *config.Config) {
			// Only the latest pending version matters.
			select {
			case <-changes:
			default:
			}
			changes <- next
		},
		func(err error) {
			select {
			case invalid <- err:
			default:
			}
		},
	)
	if err != nil {
		return err
	}

	appLog, err := logger.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLog.Sync() }()

	appLog.Info("Starting tradlet host",
		zap.String("version", version.GetVersion()),
		zap.String("config", path),
		zap.Int("groups", len(cfg.Groups)),
	)

	h, err := newHost(cfg, appLog)
	if err != nil {
		return err
	}

	if err := h.run(ctx, configUpdates{changes: changes, invalid: invalid}); err != nil {
		return err
	}

	appLog.Info("Tradlet host stopped")

	return nil
}

// schemaAction writes the configuration JSON schema and, when missing, a sample configuration.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("output")

	schemaJSON, err := config.Schema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, schemaName), []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema to file: %w", err)
	}

	samplePath := filepath.Join(dir, "tradlet-config.yaml")
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(sampleConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal sample config to yaml: %w", err)
	}

	yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), yamlBytes...)

	if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config to file: %w", err)
	}

	return nil
}

// tradletsAction lists the tradlets available to the configuration.
func tradletsAction(_ context.Context, cmd *cli.Command) error {
	aliases := map[string]string{}

	if path := cmd.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		aliases = cfg.TradletAliases
	}

	registry, err := tradlet.NewRegistry(builtin.Entries(), aliases, tradlet.Discovered())
	if err != nil {
		return err
	}

	for _, name := range registry.Names() {
		entry, _ := registry.Entry(name)
		fmt.Fprintf(cmd.Root().Writer, "%s\t%s\t%s\n", name, entry.Source, entry.EngineVersion)
	}

	return nil
}

func newCommand() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the configuration `FILE`",
		Value:   "config.yaml",
	}

	return &cli.Command{
		Name:    "tradlet",
		Usage:   "Host trading groups of tradlets",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run every configured trading group",
				Flags:  []cli.Flag{configFlag},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Write the configuration JSON schema and a sample configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output `DIR`",
						Value:   "config",
					},
				},
				Action: schemaAction,
			},
			{
				Name:  "tradlets",
				Usage: "List registered tradlets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Optional configuration `FILE` providing aliases",
					},
				},
				Action: tradletsAction,
			},
			{
				Name:  "version",
				Usage: "Print the host version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Fprintln(cmd.Root().Writer, version.GetVersion())

					return nil
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

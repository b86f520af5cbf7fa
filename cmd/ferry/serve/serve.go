// Package servecmder provides the serve command for running the proxy server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/allowlist"
	"github.com/harborworks/ferry/pkg/audit"
	filerec "github.com/harborworks/ferry/pkg/audit/file"
	kafkarec "github.com/harborworks/ferry/pkg/audit/kafka"
	"github.com/harborworks/ferry/pkg/audit/nop"
	sqliterec "github.com/harborworks/ferry/pkg/audit/sqlite"
	"github.com/harborworks/ferry/pkg/config"
	"github.com/harborworks/ferry/pkg/logger"
	"github.com/harborworks/ferry/proxy"
)

type serveCommander struct {
	listen       string
	upstream     string
	allow        []string
	allowFile    string
	auditBackend string
	auditPath    string
	kafkaBrokers []string
	kafkaTopic   string
	debug        bool

	logger *zap.Logger
}

const serveLongDesc string = `Run the proxy server.

The proxy intercepts all requests and transparently forwards them to the
configured upstream URL. Responses to requests carrying "stream": true are
relayed event by event as they arrive; everything else is relayed buffered.
Every exchange is written to the configured audit backend.

Supported audit backends: none, file, sqlite, kafka

Caller filtering is off by default. Provide --allow addresses or an
--allow-file to restrict which callers may use the proxy; the file is
watched and reloaded on change.`

const serveShortDesc string = "Run the ferry proxy server"

// serveFlagKeys lists which registry flags the serve command carries.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagAllow,
	config.FlagAllowFile,
	config.FlagAuditBackend,
	config.FlagAuditPath,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.resolve(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringSliceFlag(cmd, config.ServeFlags, config.FlagAllow, &cmder.allow)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAllowFile, &cmder.allowFile)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAuditBackend, &cmder.auditBackend)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAuditPath, &cmder.auditPath)
	config.AddStringSliceFlag(cmd, config.ServeFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

// resolve pulls the effective values out of viper after flag binding.
// Precedence is flag > env > config file > default.
func (c *serveCommander) resolve(v *viper.Viper) {
	c.listen = v.GetString("proxy.listen")
	c.upstream = v.GetString("proxy.upstream")
	c.allow = v.GetStringSlice("allowlist.addresses")
	c.allowFile = v.GetString("allowlist.file")
	c.auditBackend = v.GetString("audit.backend")
	c.auditPath = v.GetString("audit.path")
	c.kafkaBrokers = v.GetStringSlice("audit.kafka_brokers")
	c.kafkaTopic = v.GetString("audit.kafka_topic")
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	gate, watcher, err := c.newGate()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	recorder, err := c.newRecorder()
	if err != nil {
		return err
	}
	defer recorder.Close()

	proxyConfig := proxy.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
	}

	p, err := proxy.New(proxyConfig, recorder, gate, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// newGate builds the caller gate from --allow rules and/or --allow-file.
// With neither configured the gate is nil and every caller is admitted.
func (c *serveCommander) newGate() (*allowlist.Gate, *allowlist.Watcher, error) {
	if len(c.allow) == 0 && c.allowFile == "" {
		c.logger.Info("caller filtering disabled")
		return nil, nil, nil
	}

	gate, err := allowlist.New(c.allow)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing allow rules: %w", err)
	}

	if c.allowFile == "" {
		c.logger.Info("caller filtering enabled", zap.Int("rules", len(c.allow)))
		return gate, nil, nil
	}

	// Watch loads the file into the gate before returning; its rules merge
	// with the --allow rules and stay current as the file changes.
	watcher, err := allowlist.Watch(gate, c.allowFile, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("watching allowlist file: %w", err)
	}

	c.logger.Info("caller filtering enabled",
		zap.String("file", c.allowFile),
		zap.Int("static_rules", len(c.allow)),
	)
	return gate, watcher, nil
}

// newRecorder builds the audit backend named by --audit-backend.
func (c *serveCommander) newRecorder() (audit.Recorder, error) {
	switch c.auditBackend {
	case "none":
		c.logger.Info("audit recording disabled")
		return nop.NewRecorder(), nil

	case "file":
		rec, err := filerec.NewRecorder(c.auditPath)
		if err != nil {
			return nil, fmt.Errorf("creating file audit backend: %w", err)
		}
		c.logger.Info("using file audit backend", zap.String("path", c.auditPath))
		return rec, nil

	case "sqlite":
		rec, err := sqliterec.NewRecorder(c.auditPath, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite audit backend: %w", err)
		}
		c.logger.Info("using sqlite audit backend", zap.String("path", c.auditPath))
		return rec, nil

	case "kafka":
		rec, err := kafkarec.NewRecorder(kafkarec.Config{
			Brokers: c.kafkaBrokers,
			Topic:   c.kafkaTopic,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka audit backend: %w", err)
		}
		c.logger.Info("using kafka audit backend",
			zap.Strings("brokers", c.kafkaBrokers),
			zap.String("topic", c.kafkaTopic),
		)
		return rec, nil

	default:
		return nil, fmt.Errorf("unknown audit backend: %q (valid: none, file, sqlite, kafka)", c.auditBackend)
	}
}

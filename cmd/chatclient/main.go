package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/longapp/chat-client/internal/archive"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/client"
	"github.com/longapp/chat-client/internal/config"
	"github.com/longapp/chat-client/internal/messaging"
	"github.com/longapp/chat-client/internal/ratelimit"
	"github.com/longapp/chat-client/internal/store"
	"github.com/longapp/chat-client/internal/ws"
)

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Headless client for the onchat chat service",
	Long: `chatclient connects to the onchat chat service and reads commands from
stdin. Type /help for the list of commands; any other line is sent to the
open conversation.`,
	SilenceUsage: true,
	RunE:         runClient,
}

var conf = config.FromEnv()

var (
	flagStateKind string
	flagPretty    bool
	flagExitOnEOF bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&conf.WS.URL, "url", conf.WS.URL, "chat server WebSocket URL (env CHAT_URL)")
	flags.DurationVar(&conf.WS.InitialDelay, "reconnect-delay", conf.WS.InitialDelay, "first reconnect delay (env RECONNECT_DELAY)")
	flags.DurationVar(&conf.WS.MaxDelay, "reconnect-max-delay", conf.WS.MaxDelay, "reconnect delay cap (env RECONNECT_MAX_DELAY)")
	flags.IntVar(&conf.WS.MaxRetries, "max-retries", conf.WS.MaxRetries, "consecutive failed connects before giving up, 0 = never (env MAX_RETRIES)")
	flags.DurationVar(&conf.WS.PingInterval, "ping-interval", conf.WS.PingInterval, "keepalive ping interval, 0 = off (env PING_INTERVAL)")
	flags.StringVar(&flagStateKind, "state-backend", string(conf.Store.Kind), "persisted state backend: pebble, redis or memory (env STATE_BACKEND)")
	flags.StringVar(&conf.Store.Dir, "state-dir", conf.Store.Dir, "pebble data directory (env STATE_DIR)")
	flags.StringVar(&conf.Store.RedisAddr, "redis-addr", conf.Store.RedisAddr, "redis address for the redis backend (env REDIS_ADDR)")
	flags.StringVar(&conf.NATSURL, "nats-url", conf.NATSURL, "NATS URL of the event bridge, empty to disable (env NATS_URL)")
	flags.StringVar(&conf.DatabaseURL, "database-url", conf.DatabaseURL, "PostgreSQL URL of the message archive, empty to disable (env DATABASE_URL)")
	flags.StringVar(&conf.HTTPAddr, "http-addr", conf.HTTPAddr, "address of the local status endpoint, empty to disable (env HTTP_ADDR)")
	flags.StringVar(&conf.LogLevel, "log-level", conf.LogLevel, "log level (env LOG_LEVEL)")
	flags.BoolVar(&conf.AutoAcceptCalls, "auto-accept-calls", conf.AutoAcceptCalls, "accept incoming calls without asking (env AUTO_ACCEPT_CALLS)")
	flags.BoolVar(&flagPretty, "pretty", false, "human-readable console logs")
	flags.BoolVar(&flagExitOnEOF, "exit-on-eof", false, "stop when stdin is closed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chatclient command")
	}
}

func setupLogging() {
	zerolog.SetGlobalLevel(conf.Level())
	if flagPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf.Store.Kind = store.Kind(flagStateKind)
	setupLogging()

	log.Info().Msg("chatclient starting")
	log.Info().Msgf("  chat_url:      %s", conf.WS.URL)
	log.Info().Msgf("  state_backend: %s", conf.Store.Kind)
	log.Info().Msgf("  nats_url:      %s", conf.NATSURL)
	log.Info().Msgf("  http_addr:     %s", conf.HTTPAddr)

	backend, err := store.Open(ctx, conf.Store)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer backend.Close()

	out := newPrinter(os.Stdout, conf.AutoAcceptCalls)
	notifiers := client.Notifiers{out}

	// Declared early so the bridge can submit into the loop.
	var runner *client.Runner

	if conf.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = conf.NATSURL
		nc, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			return fmt.Errorf("connect NATS: %w", err)
		}
		defer nc.Close()

		var limiter messaging.Limiter
		if r, ok := backend.(*store.Redis); ok {
			limiter = ratelimit.NewLimiter(r.Client(), ratelimit.RuleBridgeSend)
		}
		bridge := messaging.NewBridge(nc, func(ctx context.Context, target chat.Entry, text string) error {
			return runner.Do(ctx, func(s *client.Session) error { return s.SendChatTo(target, text) })
		}, limiter)
		notifiers = append(notifiers, bridge)
	}

	if conf.DatabaseURL != "" {
		st, err := archive.Open(ctx, conf.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer st.Close()
		rec := archive.NewRecorder(st, 0)
		defer rec.Close()
		notifiers = append(notifiers, rec)
		out.archive = st
	}

	transport := ws.NewClient(conf.WS)
	defer transport.Close()
	runner = client.NewRunner(transport, client.Options{
		Backend:  backend,
		Notifier: notifiers,
	})

	if conf.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              conf.HTTPAddr,
			Handler:           newRouter(runner),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		log.Info().Msgf("[http] serving status at http://%s", conf.HTTPAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[http] server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go func() {
		readCommands(ctx, os.Stdin, runner, out)
		if flagExitOnEOF {
			stop()
		}
	}()

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("chatclient stopped")
		return nil
	}
	return err
}

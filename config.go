package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	buzzWindow    time.Duration
	finalMinWager int
	gameFile      string
	moderatorKey  string
	playerTimeout time.Duration
	port          int
	prefix        string
	profile       bool
	pushBackoff   time.Duration
	pushRetries   int
	pushTimeout   time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.buzzWindow <= 0 {
		return fmt.Errorf("invalid buzz window: %s", c.buzzWindow)
	}
	if c.pushRetries < 0 {
		return fmt.Errorf("invalid push retry count: %d", c.pushRetries)
	}
	if c.playerTimeout <= 0 {
		return fmt.Errorf("invalid player timeout: %s", c.playerTimeout)
	}
	if c.finalMinWager < 0 {
		return fmt.Errorf("invalid final-round minimum wager: %d", c.finalMinWager)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BUZZBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "buzzboard",
		Short:         "An authoritative server for buzz-in trivia games, answers phrased as questions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BUZZBOARD_BIND)")
	fs.DurationVar(&cfg.buzzWindow, "buzz-window", 5*time.Second, "how long the buzz window stays open per clue (env: BUZZBOARD_BUZZ_WINDOW)")
	fs.IntVar(&cfg.finalMinWager, "final-min-wager", 0, "minimum final-round wager (env: BUZZBOARD_FINAL_MIN_WAGER)")
	fs.StringVar(&cfg.gameFile, "game-file", "", "path to a clue set, blank for the built-in one (env: BUZZBOARD_GAME_FILE)")
	fs.StringVar(&cfg.moderatorKey, "moderator-key", "", "shared key required on judge commands, blank to allow anyone (env: BUZZBOARD_MODERATOR_KEY)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 5*time.Minute, "time before silent players are marked disconnected (env: BUZZBOARD_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BUZZBOARD_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BUZZBOARD_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BUZZBOARD_PROFILE)")
	fs.DurationVar(&cfg.pushBackoff, "push-backoff", 500*time.Millisecond, "delay between event delivery retries (env: BUZZBOARD_PUSH_BACKOFF)")
	fs.IntVar(&cfg.pushRetries, "push-retries", 3, "event delivery retries before a player is dropped (env: BUZZBOARD_PUSH_RETRIES)")
	fs.DurationVar(&cfg.pushTimeout, "push-timeout", 2*time.Second, "timeout for a single event delivery attempt (env: BUZZBOARD_PUSH_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BUZZBOARD_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BUZZBOARD_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BUZZBOARD_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BUZZBOARD_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("buzzboard v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

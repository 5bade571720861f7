// Package internal holds process-wide configuration shared by the CLI commands.
//
// Each Flag binds a cobra flag to a package-level variable, with the default
// value taken from the environment when present. Commands register only the
// flags they care about.
package internal

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Package-level configuration values populated by flags and the environment.
var (
	Env       string
	LogLevel  string
	Port      int
	Endpoints string
	ChannelID int
	UserID    int
	AuthKey   string
)

// Flag binds a command-line flag to one of the package-level variables.
type Flag struct {
	Name  string
	Usage string
	Bind  func(cmd *cobra.Command)
}

// CLI flag definitions.
var (
	EnvFlag = Flag{
		Name:  "env",
		Usage: "deployment environment",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().StringVar(&Env, "env", envString("CHAT_ENV", "development"), "deployment environment")
		},
	}
	LogLevelFlag = Flag{
		Name:  "log-level",
		Usage: "log level (trace, debug, info, warn, error)",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().StringVar(&LogLevel, "log-level", envString("CHAT_LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
		},
	}
	PortFlag = Flag{
		Name:  "port",
		Usage: "chat server port",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().IntVar(&Port, "port", envInt("CHAT_PORT", 8080), "chat server port")
		},
	}
	EndpointsFlag = Flag{
		Name:  "endpoints",
		Usage: "comma-separated websocket endpoints",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().StringVar(&Endpoints, "endpoints", envString("CHAT_ENDPOINTS", ""), "comma-separated websocket endpoints")
		},
	}
	ChannelIDFlag = Flag{
		Name:  "channel",
		Usage: "channel id to join",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().IntVar(&ChannelID, "channel", envInt("CHAT_CHANNEL_ID", 0), "channel id to join")
		},
	}
	UserIDFlag = Flag{
		Name:  "user",
		Usage: "user id to authenticate as (0 for anonymous)",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().IntVar(&UserID, "user", envInt("CHAT_USER_ID", 0), "user id to authenticate as (0 for anonymous)")
		},
	}
	AuthKeyFlag = Flag{
		Name:  "auth-key",
		Usage: "chat auth key",
		Bind: func(cmd *cobra.Command) {
			cmd.PersistentFlags().StringVar(&AuthKey, "auth-key", envString("CHAT_AUTH_KEY", ""), "chat auth key")
		},
	}
)

// RegisterCommandFlags registers the given flags on the command.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	for _, flag := range flags {
		if flag.Bind == nil {
			return errors.Errorf("flag %s has no binding", flag.Name)
		}
		flag.Bind(cmd)
	}
	return nil
}

// ValidateEnv checks that the resolved configuration values are usable.
func ValidateEnv() error {
	switch strings.ToLower(LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level %q", LogLevel)
	}
	if Port <= 0 || Port > 65535 {
		return errors.Errorf("invalid port %d", Port)
	}
	if ChannelID < 0 || UserID < 0 {
		return errors.New("channel and user ids must not be negative")
	}
	return nil
}

// EndpointList splits the configured endpoints value, falling back to the
// local mock server address.
func EndpointList() []string {
	if strings.TrimSpace(Endpoints) == "" {
		return []string{"ws://localhost:" + strconv.Itoa(Port) + "/chat"}
	}
	parts := strings.Split(Endpoints, ",")
	urls := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

package cli

import (
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// ErrUsage marks errors caused by how the command was invoked.
var ErrUsage = errors.New("usage error")

// Config is the resolved set of options for one run.
type Config struct {
	KeyFile       string
	P12File       string
	ClientEmail   string
	TokenURI      string
	Audience      string
	TokenInfoURL  string
	Timeout       time.Duration
	SkipTokenInfo bool
	LogLevel      string
}

// LoadConfig resolves options from flags, environment, and the optional
// config file, in that order of precedence.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if path := v.GetString(ConfigFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Mark(
				errors.Wrapf(err, "read config file %s", path),
				ErrUsage,
			)
		}
	}

	cfg := &Config{
		KeyFile:       v.GetString(KeyFileFlag),
		P12File:       v.GetString(P12Flag),
		ClientEmail:   v.GetString(ClientEmailFlag),
		TokenURI:      v.GetString(TokenURIFlag),
		Audience:      v.GetString(AudienceFlag),
		TokenInfoURL:  v.GetString(TokenInfoURLFlag),
		Timeout:       v.GetDuration(TimeoutFlag),
		SkipTokenInfo: v.GetBool(SkipTokenInfoFlag),
		LogLevel:      v.GetString(LogLevelFlag),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the options at once.
func (c *Config) Validate() error {
	var problems []string

	switch {
	case c.KeyFile == "" && c.P12File == "":
		problems = append(problems, "--keyfile is required")
	case c.KeyFile != "" && c.P12File != "":
		problems = append(problems, "--keyfile and --p12 cannot be combined")
	case c.P12File != "" && c.ClientEmail == "":
		problems = append(problems, "--client-email is required with --p12")
	}
	if c.Audience == "" {
		problems = append(problems, "--audience is required")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "--timeout must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, "--log-level must be one of debug, info, warn, error")
	}
	if !c.SkipTokenInfo {
		if u, err := url.Parse(c.TokenInfoURL); err != nil || !u.IsAbs() {
			problems = append(problems, "--tokeninfo-url must be an absolute URL")
		}
	}

	if len(problems) > 0 {
		return errors.Mark(
			errors.Newf("invalid arguments: %s", strings.Join(problems, "; ")),
			ErrUsage,
		)
	}
	return nil
}

// NewLogger builds the process logger. Logs go to w, which keeps them out of
// the labelled output on stdout.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse log level %q", level), ErrUsage)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "idtoken",
		ReportTimestamp: true,
	}), nil
}

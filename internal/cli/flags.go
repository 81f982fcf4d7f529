package cli

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"git.sr.ht/~jakintosh/idtoken/pkg/client"
)

const (
	KeyFileFlag       = "keyfile"
	AudienceFlag      = "audience"
	TokenInfoURLFlag  = "tokeninfo-url"
	TimeoutFlag       = "timeout"
	SkipTokenInfoFlag = "skip-tokeninfo"
	LogLevelFlag      = "log-level"
	ConfigFlag        = "config"
	P12Flag           = "p12"
	ClientEmailFlag   = "client-email"
	TokenURIFlag      = "token-uri"

	// EnvPrefix prefixes every environment variable, e.g. IDTOKEN_KEYFILE
	// or IDTOKEN_TOKENINFO_URL.
	EnvPrefix = "IDTOKEN"
)

func registerFlags(fs *pflag.FlagSet) {
	fs.String(KeyFileFlag, "", "Path to the service account JSON key file")
	fs.String(AudienceFlag, "", "Target audience of the identity token (e.g. https://service.example.com)")
	fs.String(TokenInfoURLFlag, client.DefaultTokenInfoURL, "Tokeninfo endpoint used to inspect the identity token")
	fs.Duration(TimeoutFlag, client.DefaultTimeout, "Timeout for each HTTP request")
	fs.Bool(SkipTokenInfoFlag, false, "Do not call the tokeninfo endpoint")
	fs.String(LogLevelFlag, "info", "Log level (debug, info, warn, error)")
	fs.String(ConfigFlag, "", "Optional YAML or JSON file holding any of these options")

	fs.String(P12Flag, "", "Path to a legacy PKCS#12 key, used instead of --keyfile")
	fs.String(ClientEmailFlag, "", "Service account email, required with --p12")
	fs.String(TokenURIFlag, "", "Token endpoint used with --p12 (defaults to Google's)")
}

// bindFlags makes every flag resolvable through v, with environment
// variables and the config file as fallbacks.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	return bindErr
}

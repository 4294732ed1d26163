package config

import (
	"os"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-tradlet/internal/account"
	"github.com/rxtech-lab/argo-tradlet/internal/group"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. ARGO_BINANCE_APIKEY.
const EnvPrefix = "ARGO"

// keyDelimiter keeps dotted attribute names such as close.timeout intact inside template maps.
const keyDelimiter = "::"

// APIConfig configures the introspection HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled" jsonschema:"title=Enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address" jsonschema:"title=Address,default=:8080" validate:"required_if=Enabled true"`
}

// JournalConfig configures the DuckDB journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled" jsonschema:"title=Enabled"`
	// Dir receives the parquet exports. Empty keeps the journal in memory.
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir" jsonschema:"title=Directory,description=Directory for parquet exports"`
	// FlushSeconds is the export interval.
	FlushSeconds int `yaml:"flushSeconds" json:"flushSeconds" mapstructure:"flushSeconds" jsonschema:"title=Flush Seconds,default=60,minimum=1" validate:"gte=0"`
}

// FeedConfig selects where market data comes from.
type FeedConfig struct {
	// Source is binance for the public Binance streams, or none to run on account events and timers only.
	Source   string `yaml:"source" json:"source" mapstructure:"source" jsonschema:"title=Source,enum=binance,enum=none,default=binance" validate:"omitempty,oneof=binance none"`
	Interval string `yaml:"interval" json:"interval" mapstructure:"interval" jsonschema:"title=Bar Interval,default=1m"`
}

// Config is the host configuration.
type Config struct {
	LogLevel string         `yaml:"logLevel" json:"logLevel" mapstructure:"logLevel" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info" validate:"omitempty,oneof=debug info warn error"`
	Groups   []group.Config `yaml:"groups" json:"groups" mapstructure:"groups" jsonschema:"title=Groups" validate:"required,min=1,dive"`
	// Templates are named playbook attribute bundles. Names and attribute keys keep their case.
	Templates map[string]map[string]string `yaml:"templates" json:"templates,omitempty" mapstructure:"templates" jsonschema:"title=Playbook Templates"`
	// TradletAliases map a name to a registered tradlet, overriding built-ins of the same name.
	TradletAliases map[string]string     `yaml:"tradletAliases" json:"tradletAliases,omitempty" mapstructure:"tradletAliases" jsonschema:"title=Tradlet Aliases"`
	Paper          account.PaperConfig   `yaml:"paper" json:"paper" mapstructure:"paper" jsonschema:"title=Paper Account"`
	Binance        account.BinanceConfig `yaml:"binance" json:"binance" mapstructure:"binance" jsonschema:"title=Binance Account" validate:"-"`
	Feed           FeedConfig            `yaml:"feed" json:"feed" mapstructure:"feed" jsonschema:"title=Market Data Feed"`
	API            APIConfig             `yaml:"api" json:"api" mapstructure:"api" jsonschema:"title=API"`
	Journal        JournalConfig         `yaml:"journal" json:"journal" mapstructure:"journal" jsonschema:"title=Journal"`
}

// Validate validates the Config struct and every group in it.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	ids := make(map[string]struct{}, len(c.Groups))
	usesBinance := false

	for i := range c.Groups {
		g := &c.Groups[i]
		if err := g.Validate(); err != nil {
			return err
		}

		if _, exists := ids[g.ID]; exists {
			return errors.Newf(errors.ErrCodeDuplicateGroup, "group %s configured twice", g.ID)
		}

		ids[g.ID] = struct{}{}
		usesBinance = usesBinance || g.Account == "binance"
	}

	if usesBinance {
		if err := c.Binance.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Group returns the configuration of a group.
func (c *Config) Group(id string) (group.Config, bool) {
	idx := slices.IndexFunc(c.Groups, func(g group.Config) bool { return g.ID == id })
	if idx < 0 {
		return group.Config{}, false
	}

	return c.Groups[idx], true
}

// TemplateStore returns the configured playbook templates.
func (c *Config) TemplateStore() playbook.StaticTemplateStore {
	return playbook.StaticTemplateStore(c.Templates)
}

func newViper(path string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	v.SetDefault("logLevel", "info")
	v.SetDefault("feed"+keyDelimiter+"source", "binance")
	v.SetDefault("feed"+keyDelimiter+"interval", "1m")
	v.SetDefault("api"+keyDelimiter+"address", ":8080")
	v.SetDefault("journal"+keyDelimiter+"flushSeconds", 60)
	v.SetDefault("binance"+keyDelimiter+"lotSize", 1.0)
	v.SetDefault("binance"+keyDelimiter+"decimalPrecision", 8)

	for _, key := range []string{"apiKey", "secretKey", "baseUrl", "useTestnet"} {
		_ = v.BindEnv("binance" + keyDelimiter + key)
	}

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to decode configuration", err)
	}

	templates, err := readTemplates(v.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	if templates != nil {
		cfg.Templates = templates
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readTemplates decodes the templates section straight from the file, since viper lowercases map keys.
func readTemplates(path string) (map[string]map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	var raw struct {
		Templates map[string]map[string]string `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to decode templates in %s", path)
	}

	return raw.Templates, nil
}

// Load reads a YAML configuration file, applies ARGO_* environment overrides and validates it.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return decode(v)
}

// Watch loads path and calls onChange with every later valid version of the file.
// Invalid versions are passed to onError and otherwise ignored.
func Watch(path string, onChange func(*Config), onError func(error)) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			onError(err)

			return
		}

		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

package group

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// TradletConfig selects one tradlet for a group.
type TradletConfig struct {
	// ID is unique within the group. Defaults to Name.
	ID string `yaml:"id" json:"id,omitempty" mapstructure:"id" jsonschema:"title=ID,description=Unique id of the tradlet within the group. Defaults to the name"`
	// Name is resolved through the tradlet registry.
	Name string `yaml:"name" json:"name" mapstructure:"name" validate:"required" jsonschema:"title=Name,description=Registered tradlet name or alias"`
	// Config is handed to the tradlet verbatim as YAML.
	Config string `yaml:"config" json:"config,omitempty" mapstructure:"config" jsonschema:"title=Config,description=Tradlet configuration in YAML"`
}

// Config describes a trading group.
type Config struct {
	ID         string          `yaml:"id" json:"id" mapstructure:"id" validate:"required" jsonschema:"title=ID,description=Unique group id"`
	Instrument string          `yaml:"instrument" json:"instrument" mapstructure:"instrument" validate:"required" jsonschema:"title=Instrument,description=Instrument traded by the group"`
	Account    string          `yaml:"account" json:"account" mapstructure:"account" validate:"required,oneof=paper binance" jsonschema:"title=Account,enum=paper,enum=binance"`
	Tradlets   []TradletConfig `yaml:"tradlets" json:"tradlets" mapstructure:"tradlets" validate:"dive" jsonschema:"title=Tradlets"`
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid group %s", c.ID)
	}

	seen := make(map[string]struct{}, len(c.Tradlets))
	for _, t := range c.Tradlets {
		id := t.TradletID()
		if _, exists := seen[id]; exists {
			return errors.Newf(errors.ErrCodeDuplicateTradlet, "tradlet %s configured twice in group %s", id, c.ID)
		}

		seen[id] = struct{}{}
	}

	return nil
}

// TradletID returns the configured id, or the name when none is set.
func (t TradletConfig) TradletID() string {
	if t.ID != "" {
		return t.ID
	}

	return t.Name
}

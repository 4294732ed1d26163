package account

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// BinanceConfig contains configuration for the Binance spot account.
type BinanceConfig struct {
	ApiKey     string `yaml:"apiKey" json:"apiKey" mapstructure:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey  string `yaml:"secretKey" json:"secretKey" mapstructure:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	BaseURL    string `yaml:"baseUrl" json:"baseUrl" mapstructure:"baseUrl" jsonschema:"title=Base URL,description=Overrides the API endpoint" validate:"omitempty,url"`
	UseTestnet bool   `yaml:"useTestnet" json:"useTestnet" mapstructure:"useTestnet" jsonschema:"title=Use Testnet,description=Connect to https://testnet.binance.vision"`
	// LotSize is the base-asset quantity of one order volume unit.
	LotSize float64 `yaml:"lotSize" json:"lotSize" mapstructure:"lotSize" jsonschema:"title=Lot Size,description=Base asset quantity per volume unit,default=1" validate:"gt=0"`
	// DecimalPrecision is the number of decimals quantities are rounded to.
	DecimalPrecision int32 `yaml:"decimalPrecision" json:"decimalPrecision" mapstructure:"decimalPrecision" jsonschema:"title=Decimal Precision,default=8" validate:"gte=0,lte=16"`
}

// Validate validates the BinanceConfig struct.
func (c *BinanceConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance account config", err)
	}

	return nil
}

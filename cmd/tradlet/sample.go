package main

import (
	"github.com/rxtech-lab/argo-tradlet/internal/account"
	"github.com/rxtech-lab/argo-tradlet/internal/config"
	"github.com/rxtech-lab/argo-tradlet/internal/group"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet/builtin"
)

// sampleConfig is a runnable paper-trading configuration.
func sampleConfig() config.Config {
	return config.Config{
		LogLevel: "info",
		Groups: []group.Config{
			{
				ID:         "btc",
				Instrument: "BTCUSDT",
				Account:    "paper",
				Tradlets: []group.TradletConfig{
					{ID: "", Name: builtin.NamePlaybookTimeout, Config: "maxHoldSeconds: 300\n"},
					{ID: "", Name: builtin.NameStateLogger, Config: ""},
				},
			},
		},
		Templates: map[string]map[string]string{
			"scalp": {playbook.AttrCloseTimeout: "60"},
		},
		TradletAliases: map[string]string{"timeout": builtin.NamePlaybookTimeout},
		Paper:          account.PaperConfig{AutoFill: true},
		Binance: account.BinanceConfig{
			ApiKey:           "",
			SecretKey:        "",
			BaseURL:          "",
			UseTestnet:       true,
			LotSize:          0.001,
			DecimalPrecision: 8,
		},
		Feed:    config.FeedConfig{Source: "binance", Interval: "1m"},
		API:     config.APIConfig{Enabled: true, Address: ":8080"},
		Journal: config.JournalConfig{Enabled: true, Dir: "journal", FlushSeconds: 60},
	}
}

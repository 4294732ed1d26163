package tradlet

import (
	"strings"

	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Tradlet is a pluggable unit of trading logic hosted by a trading group.
// Every hook runs on the group's goroutine. A returned error or a panic is a fault of this
// tradlet only.
type Tradlet interface {
	// Init is called once before any other hook.
	Init(ctx *Context) error
	// Reload is called when the tradlet's configuration changes.
	Reload(ctx *Context) error
	// Destroy releases resources when the group stops.
	Destroy()
	OnTick(tick types.Tick) error
	OnNewBar(bar types.Bar) error
	// OnNoopSecond is called once per second of wall time.
	OnNoopSecond() error
	// OnPlaybookStateChanged is called for every playbook state change in the group.
	OnPlaybookStateChanged(pb *playbook.Playbook, prev playbook.StateTuple) error
}

// Context is what a tradlet sees of its group.
type Context struct {
	GroupID    string
	Instrument string
	Keeper     *playbook.Keeper
	// Config is the tradlet's raw YAML configuration.
	Config string
	Logger *logger.Logger
}

// DecodeConfig unmarshals the YAML configuration into out. An empty configuration leaves out untouched.
func (c *Context) DecodeConfig(out any) error {
	if strings.TrimSpace(c.Config) == "" {
		return nil
	}

	if err := yaml.Unmarshal([]byte(c.Config), out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse tradlet config", err)
	}

	return nil
}

// WithConfig returns a copy of the context carrying another configuration.
func (c *Context) WithConfig(config string) *Context {
	copied := *c
	copied.Config = config

	return &copied
}

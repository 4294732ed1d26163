package playbook

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// Playbook attribute names.
const (
	// AttrCloseTimeout holds the forced-close timeout in seconds.
	AttrCloseTimeout = "close.timeout"
	// AttrActionOpen holds the action id of the open request.
	AttrActionOpen = "action.open"
	// AttrActionClose holds the action id of the latest close request.
	AttrActionClose = "action.close"
)

// Builder describes a playbook to open.
type Builder struct {
	Direction types.PosDirection `yaml:"direction" json:"direction" validate:"required,oneof=LONG SHORT"`
	Volume    int                `yaml:"volume" json:"volume" validate:"required,gt=0"`
	// OpenPrice fixes the opening limit price. When None the keeper resolves one from the market snapshot.
	OpenPrice    optional.Option[float64] `yaml:"-" json:"-"`
	TemplateID   string                   `yaml:"template_id" json:"templateId"`
	OpenActionID string                   `yaml:"open_action_id" json:"openActionId"`
	Attrs        map[string]string        `yaml:"attrs" json:"attrs"`
}

// NewBuilder returns a builder for volume units in direction, priced from the market snapshot.
func NewBuilder(direction types.PosDirection, volume int) Builder {
	return Builder{
		Direction:    direction,
		Volume:       volume,
		OpenPrice:    optional.None[float64](),
		TemplateID:   "",
		OpenActionID: "",
		Attrs:        nil,
	}
}

// WithOpenPrice fixes the opening limit price.
func (b Builder) WithOpenPrice(price float64) Builder {
	b.OpenPrice = optional.Some(price)

	return b
}

// WithTemplate selects a playbook template.
func (b Builder) WithTemplate(templateID string) Builder {
	b.TemplateID = templateID

	return b
}

// WithOpenActionID tags the open request for tracing.
func (b Builder) WithOpenActionID(actionID string) Builder {
	b.OpenActionID = actionID

	return b
}

// WithAttr sets a playbook attribute.
func (b Builder) WithAttr(key, value string) Builder {
	attrs := make(map[string]string, len(b.Attrs)+1)
	for k, v := range b.Attrs {
		attrs[k] = v
	}

	attrs[key] = value
	b.Attrs = attrs

	return b
}

// Validate validates the Builder struct.
func (b *Builder) Validate() error {
	validate := validator.New()
	if err := validate.Struct(b); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPlaybook, "invalid playbook builder", err)
	}

	if b.OpenPrice.IsSome() && b.OpenPrice.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPlaybook, "open price must be positive, got %v", b.OpenPrice.Unwrap())
	}

	return nil
}

// CloseRequest asks the keeper to close a playbook.
type CloseRequest struct {
	// ActionID tags the close request for tracing.
	ActionID string `yaml:"action_id" json:"actionId"`
	// Timeout, in seconds, forces the close at BEST price once elapsed. Zero disables it.
	Timeout int `yaml:"timeout" json:"timeout"`
}

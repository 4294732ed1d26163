package tradlet

import (
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-tradlet/internal/version"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// Factory creates a fresh tradlet instance.
type Factory func() Tradlet

// Source tells where a registry entry came from.
type Source string

const (
	SourceBuiltin    Source = "builtin"
	SourceAlias      Source = "alias"
	SourceDiscovered Source = "discovered"
)

// Entry describes a tradlet implementation available to groups.
type Entry struct {
	Name string
	// EngineVersion is the host version the tradlet was built against. Empty skips the check.
	EngineVersion string
	Factory       Factory
	Source        Source
}

// Registry resolves tradlet names to instances.
type Registry interface {
	Resolve(name string) (Tradlet, error)
	Entry(name string) (Entry, bool)
	Names() []string
}

var (
	discoveredMu sync.Mutex
	discovered   []Entry
)

// Register makes a tradlet discoverable. Extension packages call it from init.
// Discovered tradlets never replace built-in or aliased names.
func Register(name, engineVersion string, factory Factory) {
	discoveredMu.Lock()
	defer discoveredMu.Unlock()

	discovered = append(discovered, Entry{
		Name:          name,
		EngineVersion: engineVersion,
		Factory:       factory,
		Source:        SourceDiscovered,
	})
}

// Discovered returns the tradlets registered with Register.
func Discovered() []Entry {
	discoveredMu.Lock()
	defer discoveredMu.Unlock()

	return slices.Clone(discovered)
}

// TableRegistry is a Registry assembled once at startup.
type TableRegistry struct {
	entries     map[string]Entry
	hostVersion string
}

// NewRegistry builds the lookup table with a fixed precedence: built-ins first, then aliases
// from configuration (alias name -> target name, overriding built-ins of the same name), then
// discovered tradlets for names still free.
func NewRegistry(builtins []Entry, aliases map[string]string, discovered []Entry) (*TableRegistry, error) {
	r := &TableRegistry{
		entries:     make(map[string]Entry),
		hostVersion: version.GetVersion(),
	}

	for _, entry := range builtins {
		if _, exists := r.entries[entry.Name]; exists {
			return nil, errors.Newf(errors.ErrCodeDuplicateTradlet, "built-in tradlet %s registered twice", entry.Name)
		}

		entry.Source = SourceBuiltin
		r.entries[entry.Name] = entry
	}

	targets := make(map[string]Entry, len(r.entries)+len(discovered))
	for name, entry := range r.entries {
		targets[name] = entry
	}

	for _, entry := range discovered {
		if _, exists := targets[entry.Name]; !exists {
			targets[entry.Name] = entry
		}
	}

	aliasNames := make([]string, 0, len(aliases))
	for alias := range aliases {
		aliasNames = append(aliasNames, alias)
	}

	slices.Sort(aliasNames)

	for _, alias := range aliasNames {
		target, ok := targets[aliases[alias]]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeTradletNotFound, "alias %s points to unknown tradlet %s", alias, aliases[alias])
		}

		r.entries[alias] = Entry{
			Name:          alias,
			EngineVersion: target.EngineVersion,
			Factory:       target.Factory,
			Source:        SourceAlias,
		}
	}

	for _, entry := range discovered {
		if _, exists := r.entries[entry.Name]; exists {
			continue
		}

		entry.Source = SourceDiscovered
		r.entries[entry.Name] = entry
	}

	return r, nil
}

// SetHostVersion overrides the version tradlets are checked against.
func (r *TableRegistry) SetHostVersion(hostVersion string) {
	r.hostVersion = hostVersion
}

// Resolve creates a tradlet by name after checking it is compatible with the host.
func (r *TableRegistry) Resolve(name string) (Tradlet, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeTradletNotFound, "tradlet %s not found", name)
	}

	if err := version.CheckCompatibility(r.hostVersion, entry.EngineVersion); err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "tradlet %s is not compatible", name)
	}

	if entry.Factory == nil {
		return nil, errors.Newf(errors.ErrCodeTradletNotFound, "tradlet %s has no factory", name)
	}

	return entry.Factory(), nil
}

// Entry returns the registry entry for name.
func (r *TableRegistry) Entry(name string) (Entry, bool) {
	entry, ok := r.entries[name]

	return entry, ok
}

// Names returns all resolvable names, sorted.
func (r *TableRegistry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

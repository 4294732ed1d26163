// Package builtin holds the tradlets shipped with the host.
package builtin

import "github.com/rxtech-lab/argo-tradlet/internal/tradlet"

const (
	NameNoop            = "noop"
	NamePlaybookTimeout = "playbook_timeout"
	NameStateLogger     = "state_logger"
)

// Entries returns the built-in registry entries.
func Entries() []tradlet.Entry {
	return []tradlet.Entry{
		{Name: NameNoop, EngineVersion: "", Factory: NewNoop, Source: tradlet.SourceBuiltin},
		{Name: NamePlaybookTimeout, EngineVersion: "", Factory: NewPlaybookTimeout, Source: tradlet.SourceBuiltin},
		{Name: NameStateLogger, EngineVersion: "", Factory: NewStateLogger, Source: tradlet.SourceBuiltin},
	}
}

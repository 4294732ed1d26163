package group

import (
	"time"

	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/internal/tradlet"
)

// Snapshot is an immutable view of a group, safe to read from any goroutine.
type Snapshot struct {
	ID         string               `json:"id"`
	Instrument string               `json:"instrument"`
	Time       time.Time            `json:"time"`
	Keeper     playbook.Snapshot    `json:"keeper"`
	Tradlets   []tradlet.HolderView `json:"tradlets"`
	// Finished holds terminal playbooks in the order they finished. The backing array is
	// shared between snapshots and only appended to.
	Finished []playbook.View `json:"-"`
}

// Playbook returns the view of any playbook of the group, terminal ones included.
func (s *Snapshot) Playbook(id string) (playbook.View, bool) {
	for _, view := range s.Keeper.ActivePlaybooks {
		if view.ID == id {
			return view, true
		}
	}

	for _, view := range s.Finished {
		if view.ID == id {
			return view, true
		}
	}

	return playbook.View{}, false
}

// Playbooks returns the views of every playbook of the group, active ones first.
func (s *Snapshot) Playbooks() []playbook.View {
	views := make([]playbook.View, 0, len(s.Keeper.ActivePlaybooks)+len(s.Finished))
	views = append(views, s.Keeper.ActivePlaybooks...)

	return append(views, s.Finished...)
}

// Snapshot returns the last published view of the group.
func (g *Group) Snapshot() *Snapshot {
	return g.snapshot.Load()
}

// finish caches the final view of a playbook that just turned terminal.
func (g *Group) finish(pb *playbook.Playbook) {
	g.finished = append(g.finished, pb.View())
}

func (g *Group) publish() {
	views := make([]tradlet.HolderView, 0, len(g.holders))
	for _, h := range g.holders {
		views = append(views, h.View())
	}

	g.snapshot.Store(&Snapshot{
		ID:         g.config.ID,
		Instrument: g.config.Instrument,
		Time:       g.now(),
		Keeper:     g.keeper.Snapshot(),
		Tradlets:   views,
		Finished:   g.finished[:len(g.finished):len(g.finished)],
	})
}

package main

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Nicknames clients may not claim. Comparison is case-insensitive, same as
// the uniqueness check.
var reservedNicks = []string{"server", "moderator", "spectator"}

// Registry tracks every player the session has seen. It is only ever touched
// from the coordinator loop, so it carries no locking of its own; the
// concurrent-read surface is the Ledger and the dispatcher.
//
// A nickname is a stable identity: disconnecting marks the record inactive
// and clears its endpoint, and registering again with the same nickname
// reactivates the same record (score intact) rather than creating a second
// one.
type Registry struct {
	players map[string]*Player // keyed by player ID
	nextSeq int
}

func newRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

func validNick(nick string) bool {
	if strings.TrimSpace(nick) == "" {
		return false
	}
	for _, reserved := range reservedNicks {
		if strings.EqualFold(nick, reserved) {
			return false
		}
	}
	return true
}

// register admits a new nickname or reactivates an inactive one. An active
// colliding nickname fails with NameTaken and mutates nothing.
func (r *Registry) register(nick, endpoint string) (*Player, error) {
	if !validNick(nick) {
		return nil, commandErr(codeNameTaken, "nickname %q is reserved or empty", nick)
	}

	if existing := r.byNick(nick); existing != nil {
		if existing.Active {
			return nil, commandErr(codeNameTaken, "nickname %q is already in use", nick)
		}
		existing.Active = true
		existing.Endpoint = endpoint
		return existing, nil
	}

	r.nextSeq++
	player := &Player{
		ID:       uuid.NewString(),
		Nick:     nick,
		Endpoint: endpoint,
		Active:   true,
		RegSeq:   r.nextSeq,
	}
	r.players[player.ID] = player

	return player, nil
}

// reconnect updates the endpoint for a known nickname without touching the
// rest of the record. Used when a client restarts under the same name.
func (r *Registry) reconnect(nick, endpoint string) (*Player, error) {
	player := r.byNick(nick)
	if player == nil {
		return nil, commandErr(codeUnknownName, "no player named %q", nick)
	}
	player.Active = true
	player.Endpoint = endpoint
	return player, nil
}

// rename applies a nick change, holding registration order and score.
func (r *Registry) rename(player *Player, newNick string) error {
	if !validNick(newNick) {
		return commandErr(codeNameTaken, "nickname %q is reserved or empty", newNick)
	}
	if other := r.byNick(newNick); other != nil && other.ID != player.ID {
		return commandErr(codeNameTaken, "nickname %q is already in use", newNick)
	}
	player.Nick = newNick
	return nil
}

// deactivate marks a player gone without forgetting them, so a later
// register with the same nickname picks the score back up.
func (r *Registry) deactivate(id string) *Player {
	player, ok := r.players[id]
	if !ok || !player.Active {
		return nil
	}
	player.Active = false
	player.Endpoint = ""
	return player
}

// drop removes a record entirely. Only used in the lobby, before scores
// mean anything.
func (r *Registry) drop(id string) {
	delete(r.players, id)
}

func (r *Registry) lookup(id string) *Player {
	return r.players[id]
}

func (r *Registry) byNick(nick string) *Player {
	for _, p := range r.players {
		if strings.EqualFold(p.Nick, nick) {
			return p
		}
	}
	return nil
}

// active returns live players in registration order.
func (r *Registry) active() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Active {
			out = append(out, p)
		}
	}
	sortByRegSeq(out)
	return out
}

// roster returns the public view of every record, active or not, in
// registration order.
func (r *Registry) roster() []PublicPlayer {
	all := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		all = append(all, p)
	}
	sortByRegSeq(all)

	out := make([]PublicPlayer, 0, len(all))
	for _, p := range all {
		out = append(out, p.public())
	}
	return out
}

func sortByRegSeq(players []*Player) {
	slices.SortFunc(players, func(a, b *Player) int {
		return a.RegSeq - b.RegSeq
	})
}

package bot

import (
	"context"

	"github.com/rs/zerolog/log"
)

// State is where a user is in the conversation
type State int32

const (
	// StateIdle has no live listing
	StateIdle State = iota
	// StateListed has a live search listing
	StateListed
	// StateDetailed showed a title's details because no API key is configured
	StateDetailed
	// StateResolved has a live resource listing
	StateResolved
	// StateTransferred has enqueued a resource from the live listing
	StateTransferred
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateListed:      "listed",
	StateDetailed:    "detailed",
	StateResolved:    "resolved",
	StateTransferred: "transferred",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (d *Dispatcher) transition(user string, s State) {
	d.user(user).state.Store(int32(s))
}

// State derives the user's state from the live session entries. The last
// transition is kept only while the listing it depends on is live, so any
// TTL expiry collapses back to Idle.
func (d *Dispatcher) State(ctx context.Context, user string) State {
	_, searchLive, err := d.sessions.GetSearch(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("userid", user).Msg("读取搜索缓存失败")
	}
	_, resourceLive, err := d.sessions.GetResource(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("userid", user).Msg("读取资源缓存失败")
	}

	last := StateIdle
	if v, ok := d.users.Load(user); ok {
		last = State(v.(*userState).state.Load())
	}

	switch {
	case (last == StateResolved || last == StateTransferred) && resourceLive:
		return last
	case (last == StateListed || last == StateDetailed) && searchLive:
		return last
	case resourceLive:
		return StateResolved
	case searchLive:
		return StateListed
	}
	return StateIdle
}

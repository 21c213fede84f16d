// Package bot turns chat messages into searches, resource lookups and
// transfers, keeping each user's place in the conversation in a SessionStore.
package bot

import (
	"context"
	"sync"
	"sync/atomic"

	"nullbr-search-service/internal/host"
	"nullbr-search-service/internal/model"
	"nullbr-search-service/internal/repository"
	"nullbr-search-service/internal/service"

	"github.com/rs/zerolog/log"
)

// Searcher is the external search API
type Searcher interface {
	Search(ctx context.Context, query string, page int) (*model.SearchPage, error)
	FetchResources(ctx context.Context, tmdbID string, rt model.ResourceType, media model.MediaType) (*model.ResourceBundle, error)
	HasAPIKey() bool
}

// Transferer enqueues a share link into the transfer system
type Transferer interface {
	Enqueue(ctx context.Context, url string) (*model.TransferResult, error)
}

// StatsRecorder receives usage counters
type StatsRecorder interface {
	RecordSearch(ctx context.Context, keyword string, success bool)
	RecordResources(ctx context.Context, n int)
	RecordTransfer(ctx context.Context, success bool)
}

type nopStats struct{}

func (nopStats) RecordSearch(context.Context, string, bool) {}
func (nopStats) RecordResources(context.Context, int)       {}
func (nopStats) RecordTransfer(context.Context, bool)       {}

// Outcome reports how a message was handled. Err is the failure already
// reported to the user, if any.
type Outcome struct {
	Intent Intent `json:"intent"`
	State  State  `json:"state"`
	Err    error  `json:"-"`
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTransferer enables transfers of 115 resources
func WithTransferer(t Transferer) Option {
	return func(d *Dispatcher) { d.transfer = t }
}

// WithStats records usage statistics
func WithStats(s StatsRecorder) Option {
	return func(d *Dispatcher) { d.stats = s }
}

// WithDisabled makes the dispatcher ignore every message
func WithDisabled() Option {
	return func(d *Dispatcher) { d.enabled = false }
}

// Dispatcher routes inbound messages to their handlers
type Dispatcher struct {
	searcher Searcher
	resolver *service.Resolver
	priority []model.ResourceType
	sessions repository.SessionStore
	host     host.Host
	transfer Transferer
	stats    StatsRecorder
	enabled  bool

	users sync.Map // user id -> *userState
}

type userState struct {
	mu    sync.Mutex
	state atomic.Int32
}

// NewDispatcher creates a new Dispatcher. priority is the order the
// resource types are tried in when a title is selected.
func NewDispatcher(searcher Searcher, resolver *service.Resolver, priority []model.ResourceType, sessions repository.SessionStore, h host.Host, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		searcher: searcher,
		resolver: resolver,
		priority: append([]model.ResourceType(nil), priority...),
		sessions: sessions,
		host:     h,
		stats:    nopStats{},
		enabled:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TransferEnabled reports whether a transfer system is configured
func (d *Dispatcher) TransferEnabled() bool {
	return d.transfer != nil
}

// Priority returns the configured resource priority order
func (d *Dispatcher) Priority() []model.ResourceType {
	return append([]model.ResourceType(nil), d.priority...)
}

func (d *Dispatcher) user(id string) *userState {
	v, _ := d.users.LoadOrStore(id, &userState{})
	return v.(*userState)
}

// Handle processes one message. Messages of one user are handled one at a
// time; different users never wait on each other.
func (d *Dispatcher) Handle(ctx context.Context, msg model.InboundMessage) Outcome {
	if !d.enabled {
		return Outcome{Intent: IntentIgnored}
	}
	if msg.Synthetic() {
		log.Debug().Str("userid", msg.UserID).Msg("检测到回退搜索消息，跳过处理避免循环")
		return Outcome{Intent: IntentIgnored, State: d.State(ctx, msg.UserID)}
	}

	cmd := Classify(msg.Text)
	if cmd.Intent == IntentIgnored {
		return Outcome{Intent: IntentIgnored, State: d.State(ctx, msg.UserID)}
	}

	u := d.user(msg.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()

	logger := log.With().Str("userid", msg.UserID).Str("channel", msg.Channel).Logger()

	var err error
	switch cmd.Intent {
	case IntentResourceType:
		logger.Info().Int("index", cmd.Index).Str("type", string(cmd.Type)).Msg("检测到资源获取请求")
		err = d.handleResourceType(ctx, msg, cmd.Index, cmd.Type)
	case IntentNumber:
		if entry, ok := d.transferCandidate(ctx, msg.UserID, cmd.Index); ok {
			cmd.Intent = IntentTransfer
			logger.Info().Int("index", cmd.Index).Msg("检测到资源转存请求")
			err = d.handleTransfer(ctx, msg, entry, cmd.Index)
		} else {
			cmd.Intent = IntentSelectTitle
			logger.Info().Int("index", cmd.Index).Msg("检测到编号选择")
			err = d.handleSelection(ctx, msg, cmd.Index)
		}
	case IntentSearch:
		logger.Info().Str("keyword", cmd.Keyword).Msg("检测到搜索请求")
		err = d.handleSearch(ctx, msg, cmd.Keyword)
	}

	if err != nil {
		logger.Warn().Err(err).Str("intent", cmd.Intent.String()).Msg("消息处理失败")
	}
	return Outcome{Intent: cmd.Intent, State: d.State(ctx, msg.UserID), Err: err}
}

// transferCandidate returns the resource listing when index points into it
func (d *Dispatcher) transferCandidate(ctx context.Context, user string, index int) (*model.ResourceCacheEntry, bool) {
	entry, ok, err := d.sessions.GetResource(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("userid", user).Msg("读取资源缓存失败")
		return nil, false
	}
	if !ok || index < 1 || index > len(entry.Items) {
		return nil, false
	}
	return entry, true
}

func (d *Dispatcher) reply(ctx context.Context, msg model.InboundMessage, title, text string) {
	if err := d.host.PostMessage(ctx, msg.Channel, title, text, msg.UserID); err != nil {
		log.Error().Err(err).Str("userid", msg.UserID).Str("title", title).Msg("发送消息失败")
	}
}

// fallback hands the keyword to the host search. Its outcome is not
// reported back to the conversation.
func (d *Dispatcher) fallback(ctx context.Context, keyword string, msg model.InboundMessage) {
	if err := d.host.FallbackSearch(ctx, keyword, msg); err != nil {
		log.Warn().Err(err).Str("keyword", keyword).Msg("备用搜索失败")
	}
}

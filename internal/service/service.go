// Package service owns the live per-chat consensus state. It applies the
// message event feed to the index, answers read queries, derives results and
// runs report composition sessions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sim31/fractalgram/internal/cache"
	"github.com/sim31/fractalgram/internal/consensus"
	"github.com/sim31/fractalgram/internal/events"
	"github.com/sim31/fractalgram/internal/models"
	"github.com/sim31/fractalgram/internal/repository"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrValidation marks rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition marks an operation attempted in the wrong state.
	ErrPrecondition = errors.New("precondition failed")
)

// HistorySource loads a chat's message backlog and membership.
type HistorySource interface {
	ChatMessages(ctx context.Context, chatID string) ([]*models.Message, error)
	ChatMembers(ctx context.Context, chatID string) ([]*models.ExtUser, error)
}

// MessageSink persists the message mirror as events arrive.
type MessageSink interface {
	UpsertMessage(ctx context.Context, m *models.Message) error
	DeleteMessages(ctx context.Context, chatID string, ids []models.MessageID) error
}

// Sender publishes outgoing send requests. Satisfied by kafka.Producer.
type Sender interface {
	PublishSendRequest(ctx context.Context, req events.SendRequest) error
}

type chatState struct {
	index         consensus.Index
	byID          map[models.MessageID]*models.Message
	historyLoaded bool
}

type Service struct {
	mu      sync.RWMutex
	chats   map[string]*chatState
	reports map[string]*Report

	history   HistorySource
	sink      MessageSink
	sender    Sender
	cache     *cache.Cache
	platforms map[string]models.ExtPlatformInfo
	notify    func(events.Update)
	log       *zap.Logger
}

func New(history HistorySource, sink MessageSink, sender Sender, c *cache.Cache, platforms map[string]models.ExtPlatformInfo, log *zap.Logger) *Service {
	if platforms == nil {
		platforms = map[string]models.ExtPlatformInfo{}
	}
	return &Service{
		chats:     map[string]*chatState{},
		reports:   map[string]*Report{},
		history:   history,
		sink:      sink,
		sender:    sender,
		cache:     c,
		platforms: platforms,
		log:       log,
	}
}

// SetNotify registers a callback for local update fan-out. Called from the
// consumer goroutine; the callback must not block.
func (s *Service) SetNotify(fn func(events.Update)) { s.notify = fn }

func (s *Service) state(chatID string) *chatState {
	st := s.chats[chatID]
	if st == nil {
		st = &chatState{index: consensus.NewIndex(), byID: map[models.MessageID]*models.Message{}}
		s.chats[chatID] = st
	}
	return st
}

// HandleEventPayload decodes and applies one raw event from the feed.
func (s *Service) HandleEventPayload(ctx context.Context, payload []byte) {
	var ev events.MessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.log.Warn("bad event payload", zap.Error(err))
		return
	}
	if err := s.HandleEvent(ctx, ev); err != nil {
		s.log.Warn("event rejected", zap.String("type", ev.Type), zap.Error(err))
	}
}

// HandleEvent applies one message lifecycle event. Events for a chat must
// arrive in produced order; the consumer's partition keying guarantees that.
func (s *Service) HandleEvent(ctx context.Context, ev events.MessageEvent) error {
	if ev.ChatID == "" {
		return fmt.Errorf("%w: chat id missing", ErrValidation)
	}
	switch ev.Type {
	case events.TypeMessageCreated:
		if ev.Message == nil {
			return fmt.Errorf("%w: created event without message", ErrValidation)
		}
		return s.applyCreated(ctx, ev.ChatID, ev.Message)
	case events.TypeMessageUpdated:
		if ev.Message == nil {
			return fmt.Errorf("%w: updated event without message", ErrValidation)
		}
		return s.applyUpdated(ctx, ev.ChatID, ev.Prior, ev.Message)
	case events.TypeMessageDeleted:
		if len(ev.MessageIDs) == 0 {
			return fmt.Errorf("%w: deleted event without ids", ErrValidation)
		}
		return s.applyDeleted(ctx, ev.ChatID, ev.MessageIDs)
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrValidation, ev.Type)
	}
}

func (s *Service) applyCreated(ctx context.Context, chatID string, msg *models.Message) error {
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	if s.sink != nil {
		if err := s.sink.UpsertMessage(ctx, msg); err != nil {
			s.log.Warn("mirror upsert failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	st := s.state(chatID)
	st.byID[msg.ID] = msg
	st.index = st.index.MessagesAdded(st.byID, []*models.Message{msg})
	s.mu.Unlock()

	s.indexChanged(ctx, chatID)
	return nil
}

func (s *Service) applyUpdated(ctx context.Context, chatID string, prior, updated *models.Message) error {
	if updated.ChatID == "" {
		updated.ChatID = chatID
	}
	if s.sink != nil {
		if err := s.sink.UpsertMessage(ctx, updated); err != nil {
			s.log.Warn("mirror upsert failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	st := s.state(chatID)
	if known := st.byID[updated.ID]; known != nil {
		prior = known
	}
	st.byID[updated.ID] = updated
	if prior == nil {
		st.index = st.index.MessagesAdded(st.byID, []*models.Message{updated})
	} else {
		st.index = st.index.MessageUpdated(st.byID, prior, updated)
	}
	s.mu.Unlock()

	s.indexChanged(ctx, chatID)
	return nil
}

func (s *Service) applyDeleted(ctx context.Context, chatID string, ids []models.MessageID) error {
	if s.sink != nil {
		if err := s.sink.DeleteMessages(ctx, chatID, ids); err != nil {
			s.log.Warn("mirror delete failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	st := s.state(chatID)
	for _, id := range ids {
		delete(st.byID, id)
	}
	st.index = st.index.MessagesDeleted(st.byID, ids)
	s.mu.Unlock()

	s.indexChanged(ctx, chatID)
	return nil
}

func (s *Service) indexChanged(ctx context.Context, chatID string) {
	if s.cache != nil {
		if err := s.cache.InvalidateResults(ctx, chatID); err != nil {
			s.log.Warn("results invalidate failed", zap.Error(err))
		}
		if err := s.cache.PublishUpdate(ctx, events.Update{Kind: events.UpdateIndex, ChatID: chatID}); err != nil {
			s.log.Warn("update publish failed", zap.Error(err))
		}
	}
	if s.notify != nil {
		s.notify(events.Update{Kind: events.UpdateIndex, ChatID: chatID})
	}
}

// snapshot returns the chat's index and a shallow copy of the message mirror.
// Index buckets are never mutated after publication, so the pair is safe to
// read without further locking.
func (s *Service) snapshot(chatID string) (consensus.Index, map[models.MessageID]*models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.chats[chatID]
	if st == nil {
		return consensus.NewIndex(), map[models.MessageID]*models.Message{}, false
	}
	byID := make(map[models.MessageID]*models.Message, len(st.byID))
	for id, m := range st.byID {
		byID[id] = m
	}
	return st.index, byID, st.historyLoaded
}

// ensureHistory merges the persisted backlog into the live mirror once per
// chat. Events that arrived before the merge win over their stored copies.
func (s *Service) ensureHistory(ctx context.Context, chatID string) error {
	s.mu.RLock()
	loaded := s.chats[chatID] != nil && s.chats[chatID].historyLoaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	msgs, err := s.history.ChatMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	s.mu.Lock()
	st := s.state(chatID)
	if !st.historyLoaded {
		for _, m := range msgs {
			if _, ok := st.byID[m.ID]; !ok {
				st.byID[m.ID] = m
			}
		}
		st.index = consensus.Rebuild(st.byID)
		st.historyLoaded = true
	}
	s.mu.Unlock()
	return nil
}

// IndexSnapshot returns the chat's consensus index, loading history first.
func (s *Service) IndexSnapshot(ctx context.Context, chatID string) (consensus.Index, error) {
	if err := s.ensureHistory(ctx, chatID); err != nil {
		return consensus.Index{}, err
	}
	ix, _, _ := s.snapshot(chatID)
	return ix, nil
}

// Roster builds the chat's account map: synced membership enriched with
// account names collected from prompt replies. For each platform a member's
// latest reply wins, later date first and higher message id on a tie.
func (s *Service) Roster(ctx context.Context, chatID string) (models.AccountMap, error) {
	if err := s.ensureHistory(ctx, chatID); err != nil {
		return nil, err
	}
	members, err := s.history.ChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	ix, byID, _ := s.snapshot(chatID)

	roster := make(models.AccountMap, len(members))
	for _, m := range members {
		u := *m
		accounts := make(map[string]string, len(m.ExtAccounts)+len(ix.AccountReplies))
		for k, v := range m.ExtAccounts {
			accounts[k] = v
		}
		for platform, ids := range ix.AccountReplies {
			if reply := latestReplyBy(ids, byID, u.ID); reply != nil {
				if name := strings.TrimSpace(reply.Text); name != "" {
					accounts[platform] = name
				}
			}
		}
		u.ExtAccounts = accounts
		roster[u.ID] = &u
	}
	return roster, nil
}

func latestReplyBy(ids consensus.IDSet, byID map[models.MessageID]*models.Message, userID string) *models.Message {
	var best *models.Message
	for id := range ids {
		m := byID[id]
		if m == nil || m.SenderID != userID {
			continue
		}
		if best == nil || m.Date > best.Date || (m.Date == best.Date && m.ID > best.ID) {
			best = m
		}
	}
	return best
}

// LatestPlatform returns the platform of the chat's newest account prompt.
func (s *Service) LatestPlatform(chatID string) string {
	ix, byID, _ := s.snapshot(chatID)
	prompt := ix.LatestPrompt(byID)
	if prompt == nil {
		return ""
	}
	platform, _ := consensus.PromptPlatform(prompt.Text)
	return platform
}

// Results derives the chat's current consensus. A chat whose membership is
// not yet synced yields empty results instead of an error.
func (s *Service) Results(ctx context.Context, chatID string) (*models.ConsensusResults, error) {
	if s.cache != nil {
		if res, ok, err := s.cache.GetResults(ctx, chatID); err != nil {
			s.log.Warn("results cache read failed", zap.Error(err))
		} else if ok {
			return res, nil
		}
	}

	res, err := s.deriveResults(ctx, chatID, "")
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetResults(ctx, chatID, res); err != nil {
			s.log.Warn("results cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

func (s *Service) deriveResults(ctx context.Context, chatID, platform string) (*models.ConsensusResults, error) {
	roster, err := s.Roster(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			return &models.ConsensusResults{Rankings: map[models.Rank]*models.ResultOption{}}, nil
		}
		return nil, err
	}
	if platform == "" {
		platform = s.LatestPlatform(chatID)
	}
	ix, byID, _ := s.snapshot(chatID)
	res := consensus.GuessResults(ix, byID, roster, platform)
	return &res, nil
}

// Platforms lists the configured external platform presets, sorted by name.
func (s *Service) Platforms() []models.ExtPlatformInfo {
	out := make([]models.ExtPlatformInfo, 0, len(s.platforms))
	for _, p := range s.platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) PlatformByName(name string) (models.ExtPlatformInfo, bool) {
	p, ok := s.platforms[name]
	return p, ok
}

func (s *Service) publish(ctx context.Context, u events.Update) {
	if s.cache != nil {
		if err := s.cache.PublishUpdate(ctx, u); err != nil {
			s.log.Warn("update publish failed", zap.Error(err))
		}
	}
	if s.notify != nil {
		s.notify(u)
	}
}

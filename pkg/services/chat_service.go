package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/llm"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/prompts"
	"github.com/ekaya-inc/schema-graph/pkg/repositories"
)

const defaultHistoryLimit = 100

// ChatService answers schema questions grounded in the relationship graph.
type ChatService interface {
	// HandleChat resolves the query against the graph, asks the model for an
	// answer and appends the user and assistant turns to the session log.
	// A session that is not the caller's is rejected before any lookup.
	HandleChat(ctx context.Context, req *models.ChatRequest) (*models.ChatAnswer, error)

	// Ask runs the same resolution without a session or persistence.
	Ask(ctx context.Context, query string) *models.ChatAnswer

	// History returns the caller's turns for a session, oldest first.
	History(ctx context.Context, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error)
}

type chatService struct {
	extractor EntityExtractor
	store     graph.Store
	provider  llm.Provider
	turns     repositories.ChatTurnRepository
	sessions  SessionService
	pool      *llm.WorkerPool
	config    config.ChatConfig
	locks     *keyedMutex
	logger    *zap.Logger
}

// NewChatService creates a ChatService.
func NewChatService(
	extractor EntityExtractor,
	store graph.Store,
	provider llm.Provider,
	turns repositories.ChatTurnRepository,
	sessions SessionService,
	cfg config.ChatConfig,
	logger *zap.Logger,
) ChatService {
	concurrency := cfg.LookupConcurrency
	if concurrency <= 0 {
		concurrency = llm.DefaultWorkerPoolConfig().MaxConcurrent
	}
	named := logger.Named("chat")
	return &chatService{
		extractor: extractor,
		store:     store,
		provider:  provider,
		turns:     turns,
		sessions:  sessions,
		pool:      llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: concurrency}, named),
		config:    cfg,
		locks:     newKeyedMutex(),
		logger:    named,
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) HandleChat(ctx context.Context, req *models.ChatRequest) (*models.ChatAnswer, error) {
	username, err := s.sessions.Guard(ctx, req.SessionUUID)
	if err != nil {
		return nil, err
	}
	if req.Username != "" && req.Username != username {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUserMismatch, req.Username)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", apperrors.ErrInvalidRequest)
	}

	// Turns of one session are appended in the order requests take the lock.
	unlock := s.locks.Lock(username + "/" + req.SessionUUID.String())
	defer unlock()

	arrived := time.Now().UTC()
	work := context.WithoutCancel(ctx)

	if err := s.sessions.Refresh(work, req.SessionUUID); err != nil {
		s.logger.Warn("Failed to refresh session", zap.String("session", req.SessionUUID.String()), zap.Error(err))
	}

	answer := s.resolve(work, req.Query)

	s.appendTurn(work, &models.ChatTurn{
		SessionUUID: req.SessionUUID,
		Username:    username,
		Sender:      models.ChatSenderUser,
		Message:     req.Query,
		CreatedAt:   arrived,
	})
	s.appendTurn(work, &models.ChatTurn{
		SessionUUID: req.SessionUUID,
		Username:    username,
		Sender:      models.ChatSenderAssistant,
		Message:     answer.Answer,
		CreatedAt:   time.Now().UTC(),
	})

	return answer, nil
}

func (s *chatService) Ask(ctx context.Context, query string) *models.ChatAnswer {
	return s.resolve(ctx, query)
}

func (s *chatService) History(ctx context.Context, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	username, err := s.sessions.Guard(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	turns, err := s.turns.ListBySession(ctx, username, sessionUUID, limit)
	if err != nil {
		s.logger.Error("Failed to list chat turns",
			zap.String("session", sessionUUID.String()),
			zap.Error(err))
		return nil, err
	}
	return turns, nil
}

// appendTurn persists a turn. Failures are logged; the answer is still returned.
func (s *chatService) appendTurn(ctx context.Context, turn *models.ChatTurn) {
	if err := s.turns.Append(ctx, turn); err != nil {
		s.logger.Error("Failed to persist chat turn",
			zap.String("session", turn.SessionUUID.String()),
			zap.String("sender", string(turn.Sender)),
			zap.Error(err))
	}
}

// resolve extracts candidates, looks them up, gathers one-hop context and
// composes the answer. Graph failures degrade to an ungrounded answer.
func (s *chatService) resolve(ctx context.Context, query string) *models.ChatAnswer {
	candidates := s.extractor.IdentifyColumn(ctx, query)
	names := OrderedCandidates(candidates)

	matches := s.lookup(ctx, names)
	entities := s.describe(ctx, matches)

	prompt := prompts.BuildAnswerPrompt(query, entities, s.config.MaxContextBytes)
	answer := s.provider.Generate(withDefaultPurpose(ctx, llm.PurposeAnswerComposition), prompt)

	matched := make([]string, 0, len(matches))
	for _, m := range matches {
		matched = append(matched, entityLabel(m))
	}

	s.logger.Debug("Chat resolved",
		zap.Int("candidates", len(names)),
		zap.Int("matches", len(matches)),
		zap.Bool("grounded", len(entities) > 0))

	return &models.ChatAnswer{
		Answer:     answer,
		Candidates: candidates,
		Matched:    matched,
	}
}

// lookup resolves every candidate name concurrently and returns the distinct
// matches in candidate order, capped at MaxContextEntities.
func (s *chatService) lookup(ctx context.Context, names []string) []models.GraphEntity {
	items := make([]llm.WorkItem[[]models.GraphEntity], len(names))
	for i, name := range names {
		items[i] = llm.WorkItem[[]models.GraphEntity]{
			ID: name,
			Execute: func(ctx context.Context) ([]models.GraphEntity, error) {
				return s.findByName(ctx, name)
			},
		}
	}

	seen := make(map[uuid.UUID]bool)
	var matches []models.GraphEntity
	for _, res := range llm.Process(ctx, s.pool, items) {
		if res.Err != nil {
			s.logger.Warn("Candidate lookup failed", zap.String("name", res.ID), zap.Error(res.Err))
			continue
		}
		for _, e := range res.Result {
			if seen[e.ID()] {
				continue
			}
			seen[e.ID()] = true
			matches = append(matches, e)
		}
	}

	if limit := s.config.MaxContextEntities; limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// findByName matches the exact name, then optionally its singular and
// plural forms.
func (s *chatService) findByName(ctx context.Context, name string) ([]models.GraphEntity, error) {
	found, err := s.store.FindByName(ctx, name)
	if err != nil || len(found) > 0 || !s.config.InflectionFallback {
		return found, err
	}

	for _, variant := range []string{inflection.Singular(name), inflection.Plural(name)} {
		if variant == name || variant == "" {
			continue
		}
		found, err = s.store.FindByName(ctx, variant)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			s.logger.Debug("Matched name variant", zap.String("name", name), zap.String("variant", variant))
			return found, nil
		}
	}
	return nil, nil
}

// describe collects the one-hop neighbourhood of every match.
func (s *chatService) describe(ctx context.Context, matches []models.GraphEntity) []prompts.EntityContext {
	items := make([]llm.WorkItem[[]models.GraphEntity], len(matches))
	for i, m := range matches {
		id := m.ID()
		items[i] = llm.WorkItem[[]models.GraphEntity]{
			ID: entityLabel(m),
			Execute: func(ctx context.Context) ([]models.GraphEntity, error) {
				return s.store.TraverseOneHop(ctx, id, models.DirectionBoth)
			},
		}
	}

	results := llm.Process(ctx, s.pool, items)
	out := make([]prompts.EntityContext, 0, len(matches))
	for i, m := range matches {
		related := results[i].Result
		if err := results[i].Err; err != nil {
			s.logger.Warn("One-hop traversal failed", zap.String("entity", results[i].ID), zap.Error(err))
			related = nil
		}
		out = append(out, entityContext(m, related))
	}
	return out
}

func entityContext(e models.GraphEntity, related []models.GraphEntity) prompts.EntityContext {
	var ec prompts.EntityContext
	if e.Field != nil {
		ec = prompts.EntityContext{
			Kind:         "field",
			PhysicalName: e.Field.PhysicalName,
			LogicalName:  e.Field.LogicalName,
			Owner:        string(e.Field.OwnerKind) + ":" + e.Field.OwningPhysicalName,
		}
	} else {
		ec = prompts.EntityContext{
			Kind:         string(e.Object.Kind),
			PhysicalName: e.Object.PhysicalName,
			LogicalName:  e.Object.LogicalName,
		}
	}

	for _, r := range related {
		rc := prompts.RelationContext{Relation: r.Relation}
		if r.Field != nil {
			rc.Kind = "field"
			rc.PhysicalName = r.Field.PhysicalName
			rc.LogicalName = r.Field.LogicalName
		} else if r.Object != nil {
			rc.Kind = string(r.Object.Kind)
			rc.PhysicalName = r.Object.PhysicalName
			rc.LogicalName = r.Object.LogicalName
		}
		ec.Relations = append(ec.Relations, rc)
	}
	return ec
}

func entityLabel(e models.GraphEntity) string {
	if e.Field != nil {
		return "field:" + e.Field.OwningPhysicalName + "." + e.Field.PhysicalName
	}
	if e.Object != nil {
		return e.Object.Ref().String()
	}
	return ""
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Package tracker is the command core. Every mutation goes to the durable
// store first and only reaches the in-process cache once it was accepted.
package tracker

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"simp-tracker/backend/internal/drawing"
	"simp-tracker/backend/internal/simps"
	apperrors "simp-tracker/backend/pkg/errors"
)

// EdgeFilter narrows FetchEdges to one guild and optionally one side of the edge
type EdgeFilter struct {
	GuildID  int64
	UserID   *int64
	TargetID *int64
}

// EdgeRepository is the durable store of simp edges
type EdgeRepository interface {
	// InsertEdge returns *errors.ErrDuplicateEdge when the edge already exists
	InsertEdge(ctx context.Context, guildID, userID, targetID int64) (simps.Edge, error)
	// DeleteEdge returns nil when no edge was stored
	DeleteEdge(ctx context.Context, guildID, userID, targetID int64) (*simps.Edge, error)
	FetchAllEdges(ctx context.Context) ([]simps.Edge, error)
	FetchEdges(ctx context.Context, filter EdgeFilter) ([]simps.Edge, error)
}

// Renderer lays out a Graphviz description
type Renderer interface {
	Render(ctx context.Context, dot string) ([]byte, error)
	Extension() string
	ContentType() string
}

// Limits caps how many users one user may simp for. A limit of zero or
// less means unlimited.
type Limits struct {
	Default   int
	Overrides map[int64]int
}

// For returns the limit that applies to userID
func (l Limits) For(userID int64) int {
	if limit, ok := l.Overrides[userID]; ok {
		return limit
	}
	return l.Default
}

// Service ties the cache, the durable store and the renderer together
type Service struct {
	store    *simps.Store
	repo     EdgeRepository
	renderer Renderer
	limits   Limits
	logger   *zap.Logger
}

// NewService creates a new tracker service
func NewService(store *simps.Store, repo EdgeRepository, renderer Renderer, limits Limits, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		repo:     repo,
		renderer: renderer,
		limits:   limits,
		logger:   logger,
	}
}

// WithStore returns a copy of the service that reads from store instead of
// the long-lived cache.
func (s *Service) WithStore(store *simps.Store) *Service {
	view := *s
	view.store = store
	return &view
}

// Bootstrap loads every durable edge into the cache
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	start := time.Now()
	edges, err := s.repo.FetchAllEdges(ctx)
	if err != nil {
		return 0, err
	}
	s.store.BulkLoad(edges)
	s.logger.Info("Loaded simp edges",
		zap.Int("edges", len(edges)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return len(edges), nil
}

// Snapshot builds a throwaway store holding one guild's edges, read fresh
// from the durable store.
func (s *Service) Snapshot(ctx context.Context, guildID int64) (*simps.Store, error) {
	edges, err := s.repo.FetchEdges(ctx, EdgeFilter{GuildID: guildID})
	if err != nil {
		return nil, err
	}
	store := simps.NewStore()
	store.BulkLoad(edges)
	return store, nil
}

// AddRequest describes one "simp" command
type AddRequest struct {
	GuildID  int64
	ActorID  int64
	TargetID int64
	// Member restricts which existing targets count toward the limit
	Member      drawing.MembershipTest
	BypassLimit bool
}

// AddRelation records that ActorID simps for TargetID
func (s *Service) AddRelation(ctx context.Context, req AddRequest) (simps.Edge, error) {
	if req.ActorID == req.TargetID {
		return simps.Edge{}, apperrors.ErrSelfReference
	}

	if !req.BypassLimit {
		if limit := s.limits.For(req.ActorID); limit > 0 {
			current := len(s.Targets(req.GuildID, req.ActorID, req.Member))
			if current >= limit {
				return simps.Edge{}, apperrors.NewSimpLimitReached(req.ActorID, limit, current)
			}
		}
	}

	edge, err := s.repo.InsertEdge(ctx, req.GuildID, req.ActorID, req.TargetID)
	if err != nil {
		var duplicate *apperrors.ErrDuplicateEdge
		if !errors.As(err, &duplicate) {
			s.logger.Error("Failed to insert simp edge",
				zap.Int64("guild_id", req.GuildID),
				zap.Int64("user_id", req.ActorID),
				zap.Int64("target_id", req.TargetID),
				zap.Error(err),
			)
		}
		return simps.Edge{}, err
	}

	s.store.AddEdge(req.ActorID, req.TargetID, req.GuildID)
	s.logger.Debug("Added simp edge",
		zap.Int64("guild_id", req.GuildID),
		zap.Int64("user_id", req.ActorID),
		zap.Int64("target_id", req.TargetID),
	)
	return edge, nil
}

// RemoveRelation deletes the edge ActorID -> TargetID
func (s *Service) RemoveRelation(ctx context.Context, guildID, actorID, targetID int64) (simps.Edge, error) {
	if actorID == targetID {
		return simps.Edge{}, apperrors.ErrSelfReference
	}

	removed, err := s.repo.DeleteEdge(ctx, guildID, actorID, targetID)
	if err != nil {
		s.logger.Error("Failed to delete simp edge",
			zap.Int64("guild_id", guildID),
			zap.Int64("user_id", actorID),
			zap.Int64("target_id", targetID),
			zap.Error(err),
		)
		return simps.Edge{}, err
	}
	if removed == nil {
		return simps.Edge{}, apperrors.NewEdgeNotFound(guildID, actorID, targetID)
	}

	s.store.RemoveEdge(actorID, targetID, guildID)
	return *removed, nil
}

// Targets returns who userID currently simps for, filtered by member
func (s *Service) Targets(guildID, userID int64, member drawing.MembershipTest) []int64 {
	record, ok := s.store.Lookup(userID, guildID)
	if !ok {
		return nil
	}
	return filterIDs(record.SimpingForIDs(), member)
}

// Relation is one listed user and when the relation started
type Relation struct {
	UserID int64
	Since  time.Time
}

// Listing is a user's relations split into disjoint groups
type Listing struct {
	UserID     int64
	SimpingFor []Relation
	SimpedBy   []Relation
	Mutual     []Relation
}

// Empty reports whether the listing has no relations at all
func (l *Listing) Empty() bool {
	return len(l.SimpingFor) == 0 && len(l.SimpedBy) == 0 && len(l.Mutual) == 0
}

// ListRelations groups userID's relations. Mutual relations are left out of
// the one-way groups; their Since is when the second direction was added.
func (s *Service) ListRelations(ctx context.Context, guildID, userID int64, member drawing.MembershipTest) (*Listing, error) {
	listing := &Listing{UserID: userID}
	record, ok := s.store.Lookup(userID, guildID)
	if !ok || record.Empty() {
		return listing, nil
	}

	outgoing, err := s.repo.FetchEdges(ctx, EdgeFilter{GuildID: guildID, UserID: &userID})
	if err != nil {
		return nil, err
	}
	incoming, err := s.repo.FetchEdges(ctx, EdgeFilter{GuildID: guildID, TargetID: &userID})
	if err != nil {
		return nil, err
	}
	outgoingSince := make(map[int64]time.Time, len(outgoing))
	for _, edge := range outgoing {
		outgoingSince[edge.TargetID] = edge.CreatedAt
	}
	incomingSince := make(map[int64]time.Time, len(incoming))
	for _, edge := range incoming {
		incomingSince[edge.UserID] = edge.CreatedAt
	}

	mutual := make(map[int64]bool)
	for _, id := range filterIDs(record.MutualIDs(), member) {
		mutual[id] = true
		since := outgoingSince[id]
		if other := incomingSince[id]; other.After(since) {
			since = other
		}
		listing.Mutual = append(listing.Mutual, Relation{UserID: id, Since: since})
	}
	for _, id := range filterIDs(record.SimpingForIDs(), member) {
		if !mutual[id] {
			listing.SimpingFor = append(listing.SimpingFor, Relation{UserID: id, Since: outgoingSince[id]})
		}
	}
	for _, id := range filterIDs(record.SimpedByIDs(), member) {
		if !mutual[id] {
			listing.SimpedBy = append(listing.SimpedBy, Relation{UserID: id, Since: incomingSince[id]})
		}
	}

	sortBySince(listing.Mutual)
	sortBySince(listing.SimpingFor)
	sortBySince(listing.SimpedBy)
	return listing, nil
}

// Draw builds the drawing for focalID without rendering it
func (s *Service) Draw(guildID, focalID int64, opts drawing.Options) *drawing.Request {
	return drawing.Build(s.store, focalID, guildID, opts)
}

// RenderRequest describes one "map" command
type RenderRequest struct {
	GuildID     int64
	FocalID     int64
	RequesterID int64
	Member      drawing.MembershipTest
	Label       drawing.Labeler
	Mode        drawing.Mode
}

// Rendering is the outcome of RenderGraph. Image is nil when Empty.
type Rendering struct {
	Image       []byte
	Extension   string
	ContentType string
	Dot         string
	Empty       bool
}

// RenderGraph draws the focal user's map. A map without edges is not sent
// to the renderer.
func (s *Service) RenderGraph(ctx context.Context, req RenderRequest) (*Rendering, error) {
	drawn := s.Draw(req.GuildID, req.FocalID, drawing.Options{
		Member:    req.Member,
		Label:     req.Label,
		Highlight: req.RequesterID,
		Mode:      req.Mode,
	})
	out := &Rendering{Dot: drawing.Serialize(drawn), Empty: drawn.Empty()}
	if out.Empty {
		return out, nil
	}

	image, err := s.renderer.Render(ctx, out.Dot)
	if err != nil {
		s.logger.Warn("Failed to render simp map",
			zap.Int64("guild_id", req.GuildID),
			zap.Int64("focal_id", req.FocalID),
			zap.Int("nodes", len(drawn.Nodes)),
			zap.Int("edges", len(drawn.Edges)),
			zap.Error(err),
		)
		return nil, err
	}
	out.Image = image
	out.Extension = s.renderer.Extension()
	out.ContentType = s.renderer.ContentType()
	return out, nil
}

func filterIDs(ids []int64, member drawing.MembershipTest) []int64 {
	if member == nil {
		return ids
	}
	kept := ids[:0]
	for _, id := range ids {
		if member(id) {
			kept = append(kept, id)
		}
	}
	return kept
}

func sortBySince(relations []Relation) {
	sort.SliceStable(relations, func(i, j int) bool {
		return relations[i].Since.Before(relations[j].Since)
	})
}

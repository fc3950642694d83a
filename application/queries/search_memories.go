package queries

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bms-backend/application/ports"
	"bms-backend/application/services"
	"bms-backend/domain/config"
	"bms-backend/domain/core/entities"
	"bms-backend/pkg/vector"
)

// SearchMemoriesQuery ranks lineages by semantic similarity of their current
// state to the query text.
type SearchMemoriesQuery struct {
	Query    string  `json:"query" validate:"required,min=1"`
	Limit    int     `json:"limit,omitempty" validate:"min=0,max=100"`
	MinScore float64 `json:"min_score,omitempty" validate:"min=-1,max=1"`
	Author   string  `json:"author,omitempty" validate:"max=200"`
}

// Validate validates the query
func (q SearchMemoriesQuery) Validate() error {
	if q.Query == "" {
		return errors.New("query text is required")
	}
	if q.MinScore < -1 || q.MinScore > 1 {
		return errors.New("min_score must be within [-1, 1]")
	}
	return nil
}

// SearchHit is one ranked lineage
type SearchHit struct {
	Coordinate string  `json:"coordinate"`
	Alias      string  `json:"alias,omitempty"`
	Score      float64 `json:"score"`
	Position   int     `json:"position"`
	Author     string  `json:"author,omitempty"`
}

// SearchMemoriesResult carries the ranked hits
type SearchMemoriesResult struct {
	Hits      []SearchHit `json:"hits"`
	Evaluated int         `json:"evaluated"`
}

// SearchMemoriesHandler handles the SearchMemoriesQuery
type SearchMemoriesHandler struct {
	coordinates   ports.CoordinateRepository
	deltas        ports.DeltaRepository
	reconstructor *services.Reconstructor
	embedder      ports.Embedder
	cache         ports.VectorCache
	cfg           *config.DomainConfig
	logger        *zap.Logger
}

// NewSearchMemoriesHandler creates a new handler instance
func NewSearchMemoriesHandler(
	coordinates ports.CoordinateRepository,
	deltas ports.DeltaRepository,
	reconstructor *services.Reconstructor,
	embedder ports.Embedder,
	cache ports.VectorCache,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *SearchMemoriesHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &SearchMemoriesHandler{
		coordinates:   coordinates,
		deltas:        deltas,
		reconstructor: reconstructor,
		embedder:      embedder,
		cache:         cache,
		cfg:           cfg,
		logger:        logger,
	}
}

// Handle executes the search. Candidate lineages are reconstructed and
// embedded in parallel; embeddings are reused from the cache only when the
// cached entry still matches the lineage's current head.
func (h *SearchMemoriesHandler) Handle(ctx context.Context, query SearchMemoriesQuery) (*SearchMemoriesResult, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = h.cfg.DefaultSearchLimit
	}
	if limit > h.cfg.MaxSearchLimit {
		limit = h.cfg.MaxSearchLimit
	}

	queryVec, err := h.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, err
	}

	candidates, err := h.coordinates.List(ctx, h.cfg.MaxCoordinatesPerQuery)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		hits []SearchHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.SearchConcurrency)

	evaluated := 0
	for _, candidate := range candidates {
		if candidate.HeadPosition() == 0 {
			continue
		}
		evaluated++
		candidate := candidate

		g.Go(func() error {
			vec, author, err := h.embeddingFor(gctx, candidate)
			if err != nil {
				return err
			}

			score, err := vector.Cosine(queryVec, vec)
			if err != nil {
				return err
			}
			if score < query.MinScore {
				return nil
			}
			if query.Author != "" && author != query.Author {
				return nil
			}

			mu.Lock()
			hits = append(hits, SearchHit{
				Coordinate: candidate.ID().String(),
				Alias:      candidate.Alias(),
				Score:      score,
				Position:   candidate.HeadPosition(),
				Author:     author,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Coordinate < hits[j].Coordinate
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []SearchHit{}
	}

	return &SearchMemoriesResult{Hits: hits, Evaluated: evaluated}, nil
}

// embeddingFor returns the head-state embedding for a lineage. The head is
// reconstructed and its canonical-byte hash recomputed on every call; the
// cached vector is reused only when it was computed from those exact bytes.
// Racing writers for the same coordinate are benign: both compute the same
// vector for the same head.
func (h *SearchMemoriesHandler) embeddingFor(ctx context.Context, candidate *entities.Coordinate) ([]float32, string, error) {
	state, err := h.reconstructor.ReconstructAt(ctx, candidate.ID(), candidate.HeadPosition())
	if err != nil {
		return nil, "", err
	}
	headHash, err := state.CanonicalHash()
	if err != nil {
		return nil, "", err
	}

	if entry, ok := h.cache.Get(candidate.ID()); ok {
		if entry.HeadStateHash.Equals(headHash) {
			return entry.Vector, entry.Author, nil
		}
		// Stale entry for a superseded head.
		h.cache.Invalidate(candidate.ID())
	}

	text, err := state.CanonicalString()
	if err != nil {
		return nil, "", err
	}
	vec, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return nil, "", err
	}

	author := ""
	if head, err := h.deltas.GetByPosition(ctx, candidate.ID(), candidate.HeadPosition()); err == nil {
		author = head.Author()
	} else {
		h.logger.Debug("could not resolve head delta author",
			zap.String("coordinate", candidate.ID().String()),
			zap.Error(err))
	}

	h.cache.Put(candidate.ID(), ports.VectorCacheEntry{
		HeadStateHash: headHash,
		Vector:        vec,
		Author:        author,
		CachedAt:      time.Now().UTC(),
	})

	return vec, author, nil
}

package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/database"
	"github.com/mamage/photo-similarity/internal/extractor"
	"github.com/mamage/photo-similarity/internal/grouping"
	"github.com/mamage/photo-similarity/internal/imagesource"
	"github.com/mamage/photo-similarity/internal/logger"
	"github.com/mamage/photo-similarity/internal/metrics"
	"github.com/mamage/photo-similarity/internal/similarity"
	"go.uber.org/zap"
)

// ExtractorFunc returns the extractor for a model.
type ExtractorFunc func(model string) (extractor.Extractor, error)

// Service runs queries against one store.
type Service struct {
	loader       *database.VectorLoader
	resolver     imagesource.Resolver
	extractorFor ExtractorFunc
	defaultModel string // for similar queries
	logger       *zap.Logger
}

// Config wires a Service. Resolver and Extractors may be nil, in which case similar
// queries only work for photos that already have a stored embedding.
type Config struct {
	Loader       *database.VectorLoader
	Resolver     imagesource.Resolver
	Extractors   ExtractorFunc
	DefaultModel string
	Logger       *zap.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	model := cfg.DefaultModel
	if model == "" {
		model = constants.DefaultModel
	}
	return &Service{
		loader:       cfg.Loader,
		resolver:     cfg.Resolver,
		extractorFor: cfg.Extractors,
		defaultModel: model,
		logger:       logger.OrNop(cfg.Logger),
	}
}

func (s *Service) scope(ctx context.Context, projectID int64, model string) ([]similarity.Item, error) {
	rows, err := s.loader.LoadProject(ctx, projectID, model)
	if err != nil {
		return nil, err
	}
	items := make([]similarity.Item, len(rows))
	for i, row := range rows {
		items[i] = similarity.Item{PhotoID: row.PhotoID, Vector: row.Vector}
	}
	return items, nil
}

// Groups groups the photos of one project.
func (s *Service) Groups(ctx context.Context, req GroupsRequest) (*GroupsResponse, error) {
	opts, err := req.options()
	if err != nil {
		return nil, err
	}
	if req.ModelName == "" {
		req.ModelName = constants.DefaultModel
	}

	start := time.Now()
	items, err := s.scope(ctx, req.ProjectID, req.ModelName)
	if err != nil {
		return nil, err
	}

	m := similarity.Build(items)
	groups, err := grouping.Group(m, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	mode := string(opts.Mode)
	metrics.GroupingScopeSize.Observe(float64(len(items)))
	metrics.GroupingDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.GroupsEmittedTotal.WithLabelValues(mode).Add(float64(len(groups)))

	logger.FromContextOr(ctx, s.logger).Debug("grouped project",
		zap.Int64("project_id", req.ProjectID),
		zap.String("model", req.ModelName),
		zap.String("mode", mode),
		zap.Int("scope", len(items)),
		zap.Int("groups", len(groups)),
		zap.Duration("duration", time.Since(start)),
	)

	return &GroupsResponse{ModelName: req.ModelName, Groups: groups}, nil
}

// SimpleGroups groups with the recommended settings and echoes them.
func (s *Service) SimpleGroups(ctx context.Context, projectID int64) (*SimpleGroupsResponse, error) {
	req := SimpleGroupsRequest(projectID)
	resp, err := s.Groups(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SimpleGroupsResponse{
		GroupsResponse: *resp,
		Threshold:      req.Threshold,
		MinSize:        req.MinSize,
		Mode:           req.Mode,
	}, nil
}

// Pairs lists every pair scoring at least MinScore.
func (s *Service) Pairs(ctx context.Context, req PairsRequest) (*PairsResponse, error) {
	if req.ProjectID <= 0 {
		return nil, invalid("projectId is required")
	}
	if req.MinScore != req.MinScore {
		return nil, invalid("minScore must be a number")
	}
	if req.ModelName == "" {
		req.ModelName = constants.DefaultModel
	}

	items, err := s.scope(ctx, req.ProjectID, req.ModelName)
	if err != nil {
		return nil, err
	}
	return &PairsResponse{ModelName: req.ModelName, Pairs: similarity.Build(items).Pairs(req.MinScore)}, nil
}

// Similar returns the photos in scope closest to req.PhotoID. The photo's stored embedding
// is used when present; otherwise its image is fetched and embedded on the fly.
func (s *Service) Similar(ctx context.Context, req SimilarRequest) (*SimilarResponse, error) {
	if req.PhotoID <= 0 {
		return nil, invalid("photoId is required")
	}
	topK := NormalizeTopK(req.TopK)
	model := req.ModelName
	if model == "" {
		model = s.defaultModel
	}

	photo, err := s.loader.Store().GetPhoto(ctx, req.PhotoID)
	if err != nil {
		return nil, err
	}
	projectID := req.ProjectID
	if projectID == 0 {
		projectID = photo.ProjectID
	}

	items, err := s.scope(ctx, projectID, model)
	if err != nil {
		return nil, err
	}

	query, err := s.queryVector(ctx, photo, model, items)
	if err != nil {
		return nil, err
	}

	return &SimilarResponse{
		QueryID:   req.PhotoID,
		ModelName: model,
		Results:   similarity.Nearest(query, items, req.PhotoID, topK),
	}, nil
}

func (s *Service) queryVector(ctx context.Context, photo *database.Photo, model string, scope []similarity.Item) ([]float32, error) {
	for _, it := range scope {
		if it.PhotoID == photo.ID && len(it.Vector) > 0 {
			return it.Vector, nil
		}
	}

	stored, err := s.loader.LoadPhotos(ctx, []int64{photo.ID}, model)
	if err != nil {
		return nil, err
	}
	for _, e := range stored {
		if len(e.Vector) > 0 {
			return e.Vector, nil
		}
	}

	if photo.Location == "" || s.resolver == nil || s.extractorFor == nil {
		return nil, ErrNoImage
	}

	data, err := s.resolver.Fetch(ctx, photo.Location)
	if errors.Is(err, imagesource.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, photo.Location)
	}
	if err != nil {
		return nil, err
	}

	ext, err := s.extractorFor(model)
	if err != nil {
		return nil, err
	}
	return ext.Extract(ctx, data)
}

// Package query answers the read-side questions asked of the similarity engine: grouping
// a project's photos, listing scored pairs and finding the photos closest to one photo.
package query

import (
	"errors"
	"fmt"
	"math"

	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/grouping"
	"github.com/mamage/photo-similarity/internal/similarity"
)

var (
	// ErrInvalidRequest wraps every validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoImage is returned when a photo has neither a stored embedding nor a readable image.
	ErrNoImage = errors.New("photo has no image")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// GroupsRequest asks for the groups of one project.
type GroupsRequest struct {
	ProjectID   int64   `json:"projectId"`
	ModelName   string  `json:"modelName"`
	Threshold   float64 `json:"threshold"`
	MinSize     int     `json:"minSize"`
	Mode        string  `json:"mode"`
	MinInternal float64 `json:"minInternal"`
	Order       string  `json:"order"`
}

// DefaultGroupsRequest returns a request carrying the documented defaults.
func DefaultGroupsRequest(projectID int64) GroupsRequest {
	return GroupsRequest{
		ProjectID: projectID,
		ModelName: constants.DefaultModel,
		Threshold: constants.DefaultThreshold,
		MinSize:   constants.DefaultMinSize,
		Mode:      constants.DefaultMode,
		Order:     grouping.OrderIndex,
	}
}

// SimpleGroupsRequest returns the recommended settings for a project.
func SimpleGroupsRequest(projectID int64) GroupsRequest {
	req := DefaultGroupsRequest(projectID)
	req.Mode = constants.SimpleMode
	return req
}

func (r GroupsRequest) options() (grouping.Options, error) {
	if r.ProjectID <= 0 {
		return grouping.Options{}, invalid("projectId is required")
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return grouping.Options{}, invalid("threshold must be a number")
	}
	if math.IsNaN(r.MinInternal) || math.IsInf(r.MinInternal, 0) {
		return grouping.Options{}, invalid("minInternal must be a number")
	}
	mode, err := grouping.ParseMode(r.Mode)
	if err != nil {
		return grouping.Options{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	order, err := grouping.StrategyByName(r.Order)
	if err != nil {
		return grouping.Options{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return grouping.Options{
		Threshold:   r.Threshold,
		MinSize:     r.MinSize,
		Mode:        mode,
		MinInternal: r.MinInternal,
		Order:       order,
	}, nil
}

// GroupsResponse lists groups as photo ids.
type GroupsResponse struct {
	ModelName string    `json:"modelName"`
	Groups    [][]int64 `json:"groups"`
}

// SimpleGroupsResponse additionally echoes the settings used.
type SimpleGroupsResponse struct {
	GroupsResponse
	Threshold float64 `json:"threshold"`
	MinSize   int     `json:"minSize"`
	Mode      string  `json:"mode"`
}

// PairsRequest asks for every scored pair in a project.
type PairsRequest struct {
	ProjectID int64   `json:"projectId"`
	ModelName string  `json:"modelName"`
	MinScore  float64 `json:"minScore"`
}

// PairsResponse lists pairs highest score first.
type PairsResponse struct {
	ModelName string            `json:"modelName"`
	Pairs     []similarity.Pair `json:"pairs"`
}

// SimilarRequest asks for the photos closest to one photo.
type SimilarRequest struct {
	PhotoID   int64  `json:"photoId"`
	TopK      int    `json:"topK"`
	ModelName string `json:"modelName"`
	ProjectID int64  `json:"projectId,omitempty"` // defaults to the photo's own project
}

// SimilarResponse lists neighbours best first.
type SimilarResponse struct {
	QueryID   int64                 `json:"queryId"`
	ModelName string                `json:"modelName"`
	Results   []similarity.Neighbor `json:"results"`
}

// NormalizeTopK applies the default and the upper bound.
func NormalizeTopK(k int) int {
	if k <= 0 {
		return constants.DefaultTopK
	}
	return min(k, constants.MaxTopK)
}

// ValidateGroups reports whether req would be accepted by Service.Groups.
func ValidateGroups(req GroupsRequest) error {
	_, err := req.options()
	return err
}

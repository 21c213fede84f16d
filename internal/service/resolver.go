package service

import (
	"context"
	"strings"

	"nullbr-search-service/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ResourceFetcher looks up the links of one resource type for a title
type ResourceFetcher interface {
	FetchResources(ctx context.Context, tmdbID string, rt model.ResourceType, media model.MediaType) (*model.ResourceBundle, error)
}

// Resolution is the first resource type that produced usable links
type Resolution struct {
	Type   model.ResourceType
	Bundle *model.ResourceBundle
	Items  []model.ResourceItem
}

// Resolver walks a priority order of resource types for a title
type Resolver struct {
	fetcher ResourceFetcher
	enabled map[model.ResourceType]bool
}

// NewResolver creates a new Resolver. Types missing from enabled are disabled.
func NewResolver(fetcher ResourceFetcher, enabled map[model.ResourceType]bool) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		enabled: lo.Assign(enabled),
	}
}

// Enabled reports whether the resource type is switched on in configuration
func (r *Resolver) Enabled(rt model.ResourceType) bool {
	return r.enabled[rt]
}

// ResolveByPriority tries each type of order in turn and returns the first
// one with at least one actionable item. Types the hit does not offer, or
// that are disabled, are skipped. A failed lookup only advances to the next
// type. ErrNoResources is returned when the order is exhausted.
func (r *Resolver) ResolveByPriority(ctx context.Context, hit model.SearchHit, order []model.ResourceType) (*Resolution, error) {
	log.Info().
		Str("title", hit.Title).
		Str("tmdbid", hit.TMDBID).
		Str("priority", joinTypes(order)).
		Msg("按优先级获取资源")

	for _, rt := range order {
		if !hit.HasResource(rt) {
			log.Debug().Str("type", string(rt)).Msg("跳过: 资源不可用")
			continue
		}
		if !r.Enabled(rt) {
			log.Debug().Str("type", string(rt)).Msg("跳过: 已在配置中禁用")
			continue
		}

		bundle, err := r.fetcher.FetchResources(ctx, hit.TMDBID, rt, hit.MediaType)
		if err != nil {
			log.Warn().Err(err).Str("type", string(rt)).Str("title", hit.Title).Msg("获取资源失败，尝试下一优先级")
			continue
		}

		items := bundle.Items()
		if len(items) == 0 {
			log.Info().Str("type", string(rt)).Msg("资源为空，尝试下一优先级")
			continue
		}

		log.Info().Str("type", string(rt)).Int("count", len(items)).Msg("成功获取资源")
		return &Resolution{Type: rt, Bundle: bundle, Items: items}, nil
	}

	return nil, ErrNoResources
}

func joinTypes(types []model.ResourceType) string {
	return strings.Join(lo.Map(types, func(t model.ResourceType, _ int) string {
		return string(t)
	}), " > ")
}

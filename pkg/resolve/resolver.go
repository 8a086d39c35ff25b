// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/woo"
)

// 🎯 MatchStrategy identifies which lookup produced a resolution
type MatchStrategy string

const (
	MatchBySKU  MatchStrategy = "sku"
	MatchByID   MatchStrategy = "id"
	MatchByName MatchStrategy = "name"
)

// 📦 ProductRef is a resolved destination product identity
type ProductRef struct {
	DestinationID int64
	MatchedBy     MatchStrategy
	Confidence    float64
}

// ❌ NotFoundError means no destination product could be matched, or the
// match was ambiguous. It is fatal to that product's upload, not to the run.
type NotFoundError struct {
	SourceID int64
	Slug     string
	Reason   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s (source %d): no destination match: %s", e.Slug, e.SourceID, e.Reason)
}

// 🔌 Destination is the product-lookup surface of the destination API
type Destination interface {
	FindBySKU(ctx context.Context, sku string) ([]woo.Product, error)
	FindBySourceID(ctx context.Context, sourceID int64) ([]woo.Product, error)
	SearchByName(ctx context.Context, name string) ([]woo.Product, error)
}

// 🔎 Resolver maps a source product to its destination counterpart, trying
// SKU, then the source numeric id, then an exact case-insensitive name
// match. Resolutions are memoized per run so parallel uploads of the same
// product never hit the network twice. The cache is safe for concurrent use.
type Resolver struct {
	dest  Destination
	cache *gocache.Cache
	retry retry.Config
}

// 🏭 NewResolver creates a run-scoped resolver
func NewResolver(dest Destination, retryCfg retry.Config) *Resolver {
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	if retryCfg.ShouldRetry == nil {
		retryCfg.ShouldRetry = woo.IsRetryable
	}
	return &Resolver{
		dest:  dest,
		cache: gocache.New(gocache.NoExpiration, 0),
		retry: retryCfg,
	}
}

// 🔎 Resolve returns the destination identity for a source product. A cache
// hit bypasses all network calls; within one run the same source id always
// resolves to the same ref.
func (r *Resolver) Resolve(ctx context.Context, product catalog.Product) (ProductRef, error) {
	key := strconv.FormatInt(product.SourceID, 10)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(ProductRef), nil
	}

	ref, err := r.lookup(ctx, product)
	if err != nil {
		return ProductRef{}, err
	}

	r.cache.SetDefault(key, ref)

	zerolog.Ctx(ctx).Info().
		Str("product", product.Slug).
		Int64("source_id", product.SourceID).
		Int64("destination_id", ref.DestinationID).
		Str("matched_by", string(ref.MatchedBy)).
		Float64("confidence", ref.Confidence).
		Msg("product resolved")

	return ref, nil
}

// lookup runs the resolution strategies in order, short-circuiting on the
// first hit. Multiple SKU matches and multiple name matches are both
// ambiguous: attaching images to the wrong product is worse than failing.
func (r *Resolver) lookup(ctx context.Context, product catalog.Product) (ProductRef, error) {
	if product.SKU != "" {
		matches, _, err := retry.DoValue(ctx, r.retry, "resolve by sku", func(ctx context.Context) ([]woo.Product, error) {
			return r.dest.FindBySKU(ctx, product.SKU)
		})
		if err != nil {
			return ProductRef{}, err
		}
		switch len(matches) {
		case 0:
			// fall through to the next strategy
		case 1:
			return ProductRef{DestinationID: matches[0].ID, MatchedBy: MatchBySKU, Confidence: 1.0}, nil
		default:
			return ProductRef{}, &NotFoundError{
				SourceID: product.SourceID,
				Slug:     product.Slug,
				Reason:   fmt.Sprintf("sku %q matches %d destination products", product.SKU, len(matches)),
			}
		}
	}

	matches, _, err := retry.DoValue(ctx, r.retry, "resolve by source id", func(ctx context.Context) ([]woo.Product, error) {
		return r.dest.FindBySourceID(ctx, product.SourceID)
	})
	if err != nil {
		return ProductRef{}, err
	}
	if len(matches) == 1 {
		return ProductRef{DestinationID: matches[0].ID, MatchedBy: MatchByID, Confidence: 0.9}, nil
	}

	candidates, _, err := retry.DoValue(ctx, r.retry, "resolve by name", func(ctx context.Context) ([]woo.Product, error) {
		return r.dest.SearchByName(ctx, product.Name)
	})
	if err != nil {
		return ProductRef{}, err
	}

	var exact []woo.Product
	for _, candidate := range candidates {
		if strings.EqualFold(candidate.Name, product.Name) {
			exact = append(exact, candidate)
		}
	}
	switch len(exact) {
	case 1:
		return ProductRef{DestinationID: exact[0].ID, MatchedBy: MatchByName, Confidence: 0.7}, nil
	case 0:
		return ProductRef{}, &NotFoundError{
			SourceID: product.SourceID,
			Slug:     product.Slug,
			Reason:   "no strategy produced a match",
		}
	default:
		return ProductRef{}, &NotFoundError{
			SourceID: product.SourceID,
			Slug:     product.Slug,
			Reason:   fmt.Sprintf("name %q matches %d destination products", product.Name, len(exact)),
		}
	}
}

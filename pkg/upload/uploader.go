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

package upload

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/resolve"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/stage"
	"github.com/walteh/migrc/pkg/transfer"
	"github.com/walteh/migrc/pkg/woo"
	"gitlab.com/tozd/go/errors"
)

// 📊 Status is the final state of one image upload attempt
type Status string

const (
	StatusUploaded         Status = "uploaded"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusFailed           Status = "failed"
)

// 📋 Outcome records what happened to one staged image
type Outcome struct {
	Image     stage.StagedImage `json:"-"`
	Slug      string            `json:"slug"`
	Seq       int               `json:"seq"`
	Filename  string            `json:"filename"`
	MediaID   int64             `json:"media_id,omitempty"`
	Status    Status            `json:"status"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Attempts  int               `json:"attempts"`
	Elapsed   time.Duration     `json:"-"`

	err error // underlying failure, kept for abort classification
}

// ❌ UploadError marks an image whose upload or association failed after
// retries were exhausted. It is fatal to that image only.
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload: %s: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// 🔌 MediaAPI is the media surface of the destination API
type MediaAPI interface {
	ListMedia(ctx context.Context, productID int64) ([]woo.Media, error)
	UploadMedia(ctx context.Context, req woo.UploadRequest) (int64, error)
	AssociateMedia(ctx context.Context, productID int64, mediaIDs []int64) error
}

// ⚙️ Config controls batching and retry behavior
type Config struct {
	BatchSize int
	Retry     retry.Config
}

// 📤 Uploader pushes staged images to the destination in bounded batches,
// skipping images the destination already holds. A failed image never
// aborts its batch or its product.
type Uploader struct {
	api MediaAPI
	cfg Config
}

// 🏭 NewUploader creates a batch uploader
func NewUploader(api MediaAPI, cfg Config) *Uploader {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 5
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = woo.IsRetryable
	}
	return &Uploader{api: api, cfg: cfg}
}

// 📤 UploadProduct uploads every staged image of one product. It returns
// one outcome per input image: uploaded, skipped_duplicate or failed —
// nothing is left unaccounted for.
func (u *Uploader) UploadProduct(ctx context.Context, ref resolve.ProductRef, staged []stage.StagedImage) []Outcome {
	logger := zerolog.Ctx(ctx)

	images := make([]stage.StagedImage, len(staged))
	copy(images, staged)
	sort.Slice(images, func(i, j int) bool { return images[i].Seq < images[j].Seq })

	existing, _, err := retry.DoValue(ctx, u.cfg.Retry, "list destination media", func(ctx context.Context) ([]woo.Media, error) {
		return u.api.ListMedia(ctx, ref.DestinationID)
	})
	if err != nil {
		logger.Error().
			Int64("destination_id", ref.DestinationID).
			Err(err).
			Msg("cannot list destination media, failing product")
		return failAll(images, err)
	}

	duplicates := make(map[string]int64, len(existing))
	for _, m := range existing {
		duplicates[dedupeKey(m.Filename, m.Checksum)] = m.ID
	}

	outcomes := make([]Outcome, 0, len(images))
	for start := 0; start < len(images); start += u.cfg.BatchSize {
		end := start + u.cfg.BatchSize
		if end > len(images) {
			end = len(images)
		}

		batchOutcomes, aborted := u.uploadBatch(ctx, ref, images[start:end], duplicates)
		outcomes = append(outcomes, batchOutcomes...)

		if aborted {
			// Product-fatal error: remaining batches of this product are
			// skipped, sibling products are unaffected.
			outcomes = append(outcomes, failAll(images[end:], errors.New("product aborted"))...)
			break
		}
	}

	return outcomes
}

// uploadBatch uploads one batch and issues a single association call for the
// media that made it, so an association failure never forces a byte
// re-upload. It reports whether the whole product should be abandoned.
func (u *Uploader) uploadBatch(ctx context.Context, ref resolve.ProductRef, batch []stage.StagedImage, duplicates map[string]int64) ([]Outcome, bool) {
	logger := zerolog.Ctx(ctx)

	outcomes := make([]Outcome, 0, len(batch))
	var newIDs []int64
	uploadedIdx := make([]int, 0, len(batch))
	aborted := false

	for i, img := range batch {
		if aborted {
			// A product-fatal error surfaced earlier in this batch; the
			// rest of the batch is accounted for as failed.
			outcomes = append(outcomes, failAll(batch[i:], errors.New("product aborted"))...)
			break
		}

		if mediaID, ok := duplicates[dedupeKey(img.Filename(), img.Checksum)]; ok {
			logger.Debug().
				Str("file", img.Filename()).
				Int64("media_id", mediaID).
				Msg("image already present at destination, skipping")
			outcomes = append(outcomes, Outcome{
				Image:    img,
				Slug:     img.ProductSlug,
				Seq:      img.Seq,
				Filename: img.Filename(),
				MediaID:  mediaID,
				Status:   StatusSkippedDuplicate,
			})
			continue
		}

		outcome := u.uploadOne(ctx, img)
		if outcome.Status == StatusUploaded {
			newIDs = append(newIDs, outcome.MediaID)
			uploadedIdx = append(uploadedIdx, len(outcomes))
		} else if isProductFatal(ctx, outcome.err) {
			aborted = true
		}
		outcomes = append(outcomes, outcome)
	}

	if len(newIDs) > 0 {
		attempts, err := retry.Do(ctx, u.cfg.Retry, "associate media", func(ctx context.Context) error {
			return u.api.AssociateMedia(ctx, ref.DestinationID, newIDs)
		})
		if err != nil {
			// Bytes are at the destination but unlinked; the images cannot
			// be counted as migrated.
			logger.Error().
				Int64("destination_id", ref.DestinationID).
				Int("media", len(newIDs)).
				Err(err).
				Msg("media association failed")
			for _, idx := range uploadedIdx {
				outcomes[idx].Status = StatusFailed
				outcomes[idx].ErrorKind = "association"
				outcomes[idx].Attempts += attempts
			}
			if isProductFatal(ctx, err) {
				aborted = true
			}
		}
	}

	return outcomes, aborted
}

// uploadOne pushes a single staged image through the retry executor and
// records its latency for the performance summary
func (u *Uploader) uploadOne(ctx context.Context, img stage.StagedImage) Outcome {
	outcome := Outcome{
		Image:    img,
		Slug:     img.ProductSlug,
		Seq:      img.Seq,
		Filename: img.Filename(),
	}

	start := time.Now()
	mediaID, attempts, err := retry.DoValue(ctx, u.cfg.Retry, "upload "+img.Filename(), func(ctx context.Context) (int64, error) {
		f, ferr := os.Open(img.LocalPath)
		if ferr != nil {
			return 0, errors.Errorf("opening staged image: %w", ferr)
		}
		defer f.Close()

		return u.api.UploadMedia(ctx, woo.UploadRequest{
			Filename: img.Filename(),
			Title:    img.Filename(),
			AltText:  strings.TrimSuffix(img.Filename(), "."+extOf(img.Filename())),
			Checksum: img.Checksum,
			Content:  f,
		})
	})
	outcome.Elapsed = time.Since(start)
	outcome.Attempts = attempts

	if err != nil {
		outcome.Status = StatusFailed
		outcome.ErrorKind = errorKind(err)
		outcome.err = &UploadError{Filename: img.Filename(), Err: err}
		return outcome
	}

	outcome.Status = StatusUploaded
	outcome.MediaID = mediaID
	return outcome
}

// failAll marks every image as failed with the same underlying error
func failAll(images []stage.StagedImage, err error) []Outcome {
	outcomes := make([]Outcome, 0, len(images))
	for _, img := range images {
		outcomes = append(outcomes, Outcome{
			Image:     img,
			Slug:      img.ProductSlug,
			Seq:       img.Seq,
			Filename:  img.Filename(),
			Status:    StatusFailed,
			ErrorKind: errorKind(err),
		})
	}
	return outcomes
}

// dedupeKey identifies a destination media item for duplicate detection.
// Filename and checksum must both match; a same-named file with different
// content is not a duplicate.
func dedupeKey(filename, checksum string) string {
	return strings.ToLower(filename) + "|" + strings.ToLower(checksum)
}

// errorKind maps an error chain to the report's error_kind vocabulary
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var werr *woo.Error
	if errors.As(err, &werr) {
		return werr.Kind.String()
	}
	var terr *transfer.Error
	if errors.As(err, &terr) {
		return terr.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}

// isProductFatal reports whether an error should abandon the product's
// remaining batches: auth rejections will not heal between batches, and a
// canceled context means the run is shutting down
func isProductFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var werr *woo.Error
	if errors.As(err, &werr) {
		return werr.Kind == woo.KindAuth
	}
	return false
}

func extOf(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

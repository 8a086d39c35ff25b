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

package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/transfer"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// 🖼️ StagedImage is a verified local copy of one source image
type StagedImage struct {
	ProductSlug string // Owning product slug
	LocalPath   string // Absolute or staging-relative path on disk
	Seq         int    // 1-based position within the product, contiguous
	Size        int64  // Byte size of the staged file
	Checksum    string // Hex SHA-256 of the content
}

// Filename returns the canonical staged filename (slug-N.ext)
func (s StagedImage) Filename() string {
	return filepath.Base(s.LocalPath)
}

// ❌ Failure records one image that could not be staged
type Failure struct {
	Ref catalog.ImageRef
	Seq int
	Err error
}

// ❌ IntegrityError marks a checksum mismatch between the fetched bytes and
// the expected checksum. It is fatal to that single image only.
type IntegrityError struct {
	Path string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s: checksum mismatch (want %s, got %s)", e.Path, e.Want, e.Got)
}

// ⚙️ Config controls staging layout and parallelism
type Config struct {
	BaseDir     string       // Root staging directory
	Concurrency int          // Max in-flight fetches per product
	Retry       retry.Config // Retry policy for individual fetches
}

// 📦 Stager fetches raw image bytes from the remote file store, verifies
// integrity and writes them into a deterministic per-product layout.
type Stager struct {
	store transfer.FileStore
	cfg   Config
}

// 🏭 NewStager creates a stager over the given file store
func NewStager(store transfer.FileStore, cfg Config) *Stager {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = transfer.IsRetryable
	}
	return &Stager{store: store, cfg: cfg}
}

// 🚚 Stage downloads every image of one product. Sequence numbers are
// assigned in reference order before any fetch is dispatched, so concurrent
// completion order never affects naming. Failed images are reported
// individually; staging continues for the rest of the product. The returned
// error is non-nil only when the product directory itself cannot be
// prepared.
func (s *Stager) Stage(ctx context.Context, product catalog.Product) ([]StagedImage, []Failure, error) {
	logger := zerolog.Ctx(ctx)

	dir := filepath.Join(s.cfg.BaseDir, product.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errors.Errorf("creating staging directory %s: %w", dir, err)
	}

	staged := make([]*StagedImage, len(product.Images))
	failed := make([]*Failure, len(product.Images))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, ref := range product.Images {
		i, ref := i, ref
		seq := i + 1 // assigned before dispatch, never renumbered by retries
		dest := filepath.Join(dir, stagedFilename(product.Slug, seq, ref.RemotePath))

		g.Go(func() error {
			img, err := s.stageOne(ctx, product.Slug, ref, seq, dest)
			if err != nil {
				logger.Warn().
					Str("product", product.Slug).
					Int("seq", seq).
					Str("remote", ref.RemotePath).
					Err(err).
					Msg("image staging failed")
				failed[i] = &Failure{Ref: ref, Seq: seq, Err: err}
				return nil
			}
			staged[i] = img
			return nil
		})
	}
	_ = g.Wait()

	var images []StagedImage
	var failures []Failure
	for i := range product.Images {
		if staged[i] != nil {
			images = append(images, *staged[i])
		}
		if failed[i] != nil {
			failures = append(failures, *failed[i])
		}
	}

	logger.Info().
		Str("product", product.Slug).
		Int("staged", len(images)).
		Int("failed", len(failures)).
		Msg("product staged")

	return images, failures, nil
}

// stageOne fetches a single image through the retry executor and writes it
// atomically: bytes land in a temp file and are renamed only after the
// checksum verifies, so a crash never leaves a half-written image under its
// final name.
func (s *Stager) stageOne(ctx context.Context, slug string, ref catalog.ImageRef, seq int, dest string) (*StagedImage, error) {
	img, _, err := retry.DoValue(ctx, s.cfg.Retry, "stage "+filepath.Base(dest), func(ctx context.Context) (*StagedImage, error) {
		body, err := s.store.Fetch(ctx, ref.RemotePath)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		tmp := dest + ".tmp"
		f, err := os.Create(tmp)
		if err != nil {
			return nil, errors.Errorf("creating temp file: %w", err)
		}

		hash := sha256.New()
		size, err := io.Copy(io.MultiWriter(f, hash), body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(tmp)
			return nil, errors.Errorf("writing %s: %w", tmp, err)
		}

		checksum := hex.EncodeToString(hash.Sum(nil))
		if ref.Checksum != "" && !strings.EqualFold(checksum, ref.Checksum) {
			_ = os.Remove(tmp)
			return nil, &IntegrityError{Path: ref.RemotePath, Want: strings.ToLower(ref.Checksum), Got: checksum}
		}

		if err := os.Rename(tmp, dest); err != nil {
			_ = os.Remove(tmp)
			return nil, errors.Errorf("renaming temp file: %w", err)
		}

		return &StagedImage{
			ProductSlug: slug,
			LocalPath:   dest,
			Seq:         seq,
			Size:        size,
			Checksum:    checksum,
		}, nil
	})
	return img, err
}

// 🧹 Clean removes the whole staging directory
func (s *Stager) Clean() error {
	if s.cfg.BaseDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.cfg.BaseDir); err != nil {
		return errors.Errorf("removing staging directory: %w", err)
	}
	return nil
}

// stagedFilename builds the canonical slug-N.ext name, defaulting to .jpg
// when the remote path carries no extension
func stagedFilename(slug string, seq int, remotePath string) string {
	ext := path.Ext(remotePath)
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s-%d%s", slug, seq, ext)
}

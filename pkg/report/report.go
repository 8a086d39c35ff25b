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

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/walteh/migrc/pkg/upload"
	"gitlab.com/tozd/go/errors"
)

// 📋 Entry is the per-product slice of the reconciliation report
type Entry struct {
	SourceID int64
	SKU      string
	Images   int
	Stock    int
	Folder   string
	Outcomes []upload.Outcome
}

// 📊 Report accumulates migration results across concurrent product
// workers. It is append-only during a run; summaries are recomputed from
// the outcome lists at snapshot time, never maintained incrementally.
type Report struct {
	mu      sync.Mutex
	runID   string
	started time.Time
	entries map[string]*Entry
}

// 🏭 New creates an empty run-scoped report
func New() *Report {
	return &Report{
		runID:   uuid.NewString(),
		started: time.Now().UTC(),
		entries: make(map[string]*Entry),
	}
}

// 🆔 RunID returns the report's unique run identifier
func (r *Report) RunID() string {
	return r.runID
}

// ➕ AddProduct registers a product extracted in phase 1. Outcomes arrive
// later, during phase 3 (or never, if the operator declines the gate).
func (r *Report) AddProduct(slug string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Outcomes = nil
	r.entries[slug] = &entry
}

// ➕ RecordOutcome appends one upload outcome to a product. Safe under
// concurrent product workers. Outcomes for a slug never registered are
// kept too, so an accounting bug surfaces in the report instead of
// vanishing.
func (r *Report) RecordOutcome(slug string, outcome upload.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[slug]
	if !ok {
		entry = &Entry{}
		r.entries[slug] = entry
	}
	entry.Outcomes = append(entry.Outcomes, outcome)
}

// 📸 Snapshot builds the report document from everything recorded so far.
// Called after phase 1 (pre-confirmation) and again by Finalize.
func (r *Report) Snapshot() Document {
	return r.build(false)
}

// 🏁 Finalize builds the closing document after phase 3
func (r *Report) Finalize() Document {
	return r.build(true)
}

func (r *Report) build(final bool) Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := Document{
		RunID:     r.runID,
		Timestamp: r.started.Format(time.RFC3339),
		Final:     final,
		Products:  make(map[string]ProductDocument, len(r.entries)),
	}

	var uploadDurations []time.Duration
	for slug, entry := range r.entries {
		outcomes := make([]upload.Outcome, len(entry.Outcomes))
		copy(outcomes, entry.Outcomes)
		sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Seq < outcomes[j].Seq })

		pd := ProductDocument{
			ID:     entry.SourceID,
			SKU:    entry.SKU,
			Images: entry.Images,
			Stock:  entry.Stock,
			Folder: entry.Folder,
		}
		migrated := 0
		for _, o := range outcomes {
			pd.Outcomes = append(pd.Outcomes, OutcomeDocument{
				Seq:       o.Seq,
				Filename:  o.Filename,
				MediaID:   o.MediaID,
				Status:    string(o.Status),
				ErrorKind: o.ErrorKind,
				Attempts:  o.Attempts,
				ElapsedMS: o.Elapsed.Milliseconds(),
			})
			switch o.Status {
			case upload.StatusUploaded:
				migrated++
				uploadDurations = append(uploadDurations, o.Elapsed)
			case upload.StatusSkippedDuplicate:
				migrated++
			}
		}

		doc.Products[slug] = pd
		doc.Summary.TotalProducts++
		doc.Summary.TotalImages += entry.Images
		doc.Summary.TotalStock += entry.Stock

		// A product only counts toward migration totals once phase 3 has
		// produced outcomes for it; a declined gate leaves both at zero.
		if len(outcomes) == 0 {
			continue
		}
		if migrated > 0 {
			doc.Summary.SuccessfulMigrations++
		} else {
			doc.Summary.FailedMigrations++
		}
	}

	if len(uploadDurations) > 0 {
		var total, max time.Duration
		for _, d := range uploadDurations {
			total += d
			if d > max {
				max = d
			}
		}
		doc.Summary.UploadPerformance.AverageUploadTime = (total / time.Duration(len(uploadDurations))).Seconds()
		doc.Summary.UploadPerformance.MaxUploadTime = max.Seconds()
	}

	return doc
}

// 📄 Document is the JSON shape persisted for one run
type Document struct {
	RunID     string                     `json:"run_id"`
	Timestamp string                     `json:"timestamp"`
	Final     bool                       `json:"final"`
	Products  map[string]ProductDocument `json:"products"`
	Summary   Summary                    `json:"summary"`
}

type ProductDocument struct {
	ID       int64             `json:"id"`
	SKU      string            `json:"sku,omitempty"`
	Images   int               `json:"images"`
	Stock    int               `json:"stock"`
	Folder   string            `json:"folder"`
	Outcomes []OutcomeDocument `json:"outcomes,omitempty"`
}

type OutcomeDocument struct {
	Seq       int    `json:"seq"`
	Filename  string `json:"filename"`
	MediaID   int64  `json:"media_id,omitempty"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Attempts  int    `json:"attempts"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type Summary struct {
	TotalProducts        int         `json:"total_products"`
	TotalImages          int         `json:"total_images"`
	TotalStock           int         `json:"total_stock"`
	SuccessfulMigrations int         `json:"successful_migrations"`
	FailedMigrations     int         `json:"failed_migrations"`
	UploadPerformance    Performance `json:"upload_performance"`
}

// ⏱️ Performance aggregates upload latency in seconds
type Performance struct {
	AverageUploadTime float64 `json:"average_upload_time"`
	MaxUploadTime     float64 `json:"max_upload_time"`
}

// 📁 Filename returns the timestamped report filename for a run
func Filename(t time.Time) string {
	return "report_" + t.Format("20060102_150405") + ".json"
}

// 💾 WriteFile persists a document atomically: the JSON lands in a temp
// file in the target directory and is renamed into place, so a crashed
// run never leaves a torn report behind.
func WriteFile(doc Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Errorf("encoding report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("creating report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return errors.Errorf("creating temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("renaming report into place: %w", err)
	}

	return nil
}

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

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ❌ DatabaseError wraps source-store connectivity and query failures. It is
// fatal to the extraction phase: a broken read transaction cannot produce a
// consistent catalog.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("source database: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// ⚙️ ReaderConfig describes the source schema layout
type ReaderConfig struct {
	Prefix        string // Table name prefix, e.g. "ps_"
	LangID        int    // Language id for product names
	ImageBasePath string // Remote base path for product images, e.g. "/img/p"
}

// 📖 Reader extracts product records and image references from the source
// store. All reads happen inside one read-only transaction so stock figures
// and image lists are mutually consistent.
type Reader struct {
	db  *gorm.DB
	cfg ReaderConfig
}

// 🏭 NewReader creates a catalog reader over an open source connection
func NewReader(db *gorm.DB, cfg ReaderConfig) *Reader {
	if cfg.LangID == 0 {
		cfg.LangID = 1
	}
	return &Reader{db: db, cfg: cfg}
}

type productRow struct {
	ID        int64
	Reference string
	Name      string
	Quantity  sql.NullString
}

type imageRow struct {
	IDImage   int64
	IDProduct int64
	Position  int
}

// 📖 Extract reads the full catalog. Records that fail validation are
// skipped and logged; extraction continues. Connection and query failures
// roll the transaction back and fail the whole phase.
func (r *Reader) Extract(ctx context.Context) ([]Product, error) {
	logger := zerolog.Ctx(ctx)

	tx := r.db.WithContext(ctx).Begin(&sql.TxOptions{ReadOnly: true})
	if tx.Error != nil {
		return nil, &DatabaseError{Op: "begin read transaction", Err: tx.Error}
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var products []productRow
	productQuery := fmt.Sprintf(`
		SELECT p.id_product AS id, p.reference, pl.name, sa.quantity
		FROM %[1]sproduct p
		JOIN %[1]sproduct_lang pl
			ON pl.id_product = p.id_product AND pl.id_lang = ?
		LEFT JOIN %[1]sstock_available sa
			ON sa.id_product = p.id_product AND sa.id_product_attribute = 0
		ORDER BY p.id_product`, r.cfg.Prefix)
	if err := tx.Raw(productQuery, r.cfg.LangID).Scan(&products).Error; err != nil {
		return nil, &DatabaseError{Op: "querying products", Err: err}
	}

	var images []imageRow
	imageQuery := fmt.Sprintf(`
		SELECT i.id_image, i.id_product, i.position
		FROM %[1]simage i
		ORDER BY i.id_product, i.position, i.id_image`, r.cfg.Prefix)
	if err := tx.Raw(imageQuery).Scan(&images).Error; err != nil {
		return nil, &DatabaseError{Op: "querying images", Err: err}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &DatabaseError{Op: "committing read transaction", Err: err}
	}
	committed = true

	refsByProduct := make(map[int64][]ImageRef, len(products))
	for _, img := range images {
		refsByProduct[img.IDProduct] = append(refsByProduct[img.IDProduct], ImageRef{
			RemotePath: r.imagePath(img.IDImage),
		})
	}

	out := make([]Product, 0, len(products))
	skipped := 0
	for _, row := range products {
		stock, ok := parseStock(row.Quantity)
		if !ok {
			logger.Warn().
				Int64("source_id", row.ID).
				Str("quantity", row.Quantity.String).
				Msg("unparseable stock quantity, defaulting to zero")
		}

		product, err := NewProduct(row.ID, row.Reference, row.Name, stock, refsByProduct[row.ID])
		if err != nil {
			skipped++
			logger.Warn().
				Int64("source_id", row.ID).
				Str("name", row.Name).
				Err(err).
				Msg("skipping invalid product record")
			continue
		}
		out = append(out, product)
	}

	logger.Info().
		Int("products", len(out)).
		Int("skipped", skipped).
		Int("images", len(images)).
		Msg("catalog extracted")

	return out, nil
}

// parseStock parses a stock quantity, defaulting to zero when the value is
// missing, unparseable or negative. The second return reports whether the
// value was usable as-is.
func parseStock(v sql.NullString) (int, bool) {
	if !v.Valid {
		return 0, true // NULL stock row simply means no stock record
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.String))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// imagePath builds the remote path for an image id using the source store's
// digit-split directory layout: image 123 lives at <base>/1/2/3/123.jpg.
func (r *Reader) imagePath(imageID int64) string {
	id := strconv.FormatInt(imageID, 10)
	parts := make([]string, 0, len(id)+2)
	parts = append(parts, strings.TrimRight(r.cfg.ImageBasePath, "/"))
	for _, d := range id {
		parts = append(parts, string(d))
	}
	parts = append(parts, id+".jpg")
	return strings.Join(parts, "/")
}

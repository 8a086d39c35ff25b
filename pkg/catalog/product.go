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
	"fmt"
	"regexp"
	"strings"
)

// 📦 Product is a single catalog entry read from the source store. It is
// immutable once extraction returns it.
type Product struct {
	SourceID int64      // Product id in the source store
	SKU      string     // Source SKU/reference, may be empty
	Name     string     // Raw product name
	Slug     string     // Sanitized name, stable folder and filename stem
	Stock    int        // Stock quantity, never negative
	Images   []ImageRef // Image references in source display order
}

// 🔗 ImageRef points at a single image in the remote file store. The bytes
// have not been fetched yet.
type ImageRef struct {
	RemotePath string // Path on the remote file store
	Checksum   string // Optional expected hex SHA-256 of the content
}

// ❌ ValidationError marks a source record that cannot be migrated
type ValidationError struct {
	SourceID int64
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("product %d: invalid %s: %s", e.SourceID, e.Field, e.Reason)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

// 🔤 Slugify derives a filesystem- and URL-safe slug from a product name.
// The result may be empty when the name contains no usable characters.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// 🏭 NewProduct builds a Product, deriving the slug from the name. An empty
// slug after sanitization fails with a ValidationError.
func NewProduct(sourceID int64, sku, name string, stock int, images []ImageRef) (Product, error) {
	slug := Slugify(name)
	if slug == "" {
		return Product{}, &ValidationError{SourceID: sourceID, Field: "name", Reason: "empty after slugification"}
	}
	if stock < 0 {
		stock = 0
	}
	return Product{
		SourceID: sourceID,
		SKU:      sku,
		Name:     name,
		Slug:     slug,
		Stock:    stock,
		Images:   images,
	}, nil
}

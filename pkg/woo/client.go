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

// Package woo is a minimal client for the destination commerce platform's
// REST API: product lookup, media upload and media association.
package woo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ⚙️ Config holds destination API settings
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

// 🔌 Client talks to the destination REST API. The underlying connection
// pool is shared by all callers and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// 🏭 NewClient creates a destination API client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("destination api: base url is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("destination api: consumer key and secret are required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// 📦 Product is a destination product as returned by the API
type Product struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	SKU    string      `json:"sku"`
	Images []MediaLink `json:"images"`
}

// 🔗 MediaLink references a media item attached to a product
type MediaLink struct {
	ID int64 `json:"id"`
}

// 🖼️ Media is a destination media library item
type Media struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Checksum string `json:"checksum"`
}

// 📤 UploadRequest describes one media upload
type UploadRequest struct {
	Filename string
	Title    string
	AltText  string
	Checksum string
	Content  io.Reader
}

// 🔍 FindBySKU returns the products carrying an exact SKU
func (c *Client) FindBySKU(ctx context.Context, sku string) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "products", url.Values{"sku": {sku}}, nil, "", &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// 🔍 FindBySourceID returns the products whose external reference field
// carries the given source product id. Destinations without that field
// return an empty list.
func (c *Client) FindBySourceID(ctx context.Context, sourceID int64) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "products", url.Values{"external_id": {strconv.FormatInt(sourceID, 10)}}, nil, "", &products)
	if err != nil {
		// A destination without the external-reference field answers 404
		var werr *Error
		if errors.As(err, &werr) && werr.Kind == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return products, nil
}

// 🔍 SearchByName returns products matching a name search. The caller is
// responsible for exact-match filtering.
func (c *Client) SearchByName(ctx context.Context, name string) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "products", url.Values{"search": {name}, "per_page": {"20"}}, nil, "", &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// 📂 ListMedia returns the media already associated with a product
func (c *Client) ListMedia(ctx context.Context, productID int64) ([]Media, error) {
	var media []Media
	path := fmt.Sprintf("products/%d/media", productID)
	err := c.do(ctx, http.MethodGet, path, nil, nil, "", &media)
	if err != nil {
		return nil, err
	}
	return media, nil
}

// 📤 UploadMedia uploads one image as multipart form data and returns the
// new media id
func (c *Client) UploadMedia(ctx context.Context, req UploadRequest) (int64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return 0, errors.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return 0, errors.Errorf("copying upload content: %w", err)
	}
	for field, value := range map[string]string{
		"title":    req.Title,
		"alt_text": req.AltText,
		"checksum": req.Checksum,
	} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(field, value); err != nil {
			return 0, errors.Errorf("writing multipart field %s: %w", field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return 0, errors.Errorf("closing multipart body: %w", err)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "media", nil, &body, mw.FormDataContentType(), &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// 🔗 AssociateMedia links newly uploaded media to a product, preserving the
// product's existing images and the given order of the new ones
func (c *Client) AssociateMedia(ctx context.Context, productID int64, mediaIDs []int64) error {
	var product Product
	path := fmt.Sprintf("products/%d", productID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "", &product); err != nil {
		return errors.Errorf("fetching current images: %w", err)
	}

	existing := make(map[int64]bool, len(product.Images))
	images := make([]MediaLink, 0, len(product.Images)+len(mediaIDs))
	for _, link := range product.Images {
		existing[link.ID] = true
		images = append(images, link)
	}
	for _, id := range mediaIDs {
		if existing[id] {
			continue
		}
		images = append(images, MediaLink{ID: id})
	}

	payload, err := json.Marshal(map[string]any{"images": images})
	if err != nil {
		return errors.Errorf("encoding association payload: %w", err)
	}

	if err := c.do(ctx, http.MethodPut, path, nil, bytes.NewReader(payload), "application/json", nil); err != nil {
		return errors.Errorf("updating product images: %w", err)
	}
	return nil
}

// do performs one authenticated request and decodes the JSON response
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	endpoint := c.cfg.BaseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	zerolog.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Msg("destination api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &Error{
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Endpoint: path,
			Err:      errors.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

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

package transfer

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// 📂 Entry is a single file on the remote store
type Entry struct {
	Name string // Base name within the listed directory
	Size int64  // Size in bytes, 0 when the server does not report it
}

// 🔌 FileStore is the remote file transport consumed by the staging
// pipeline. Implementations must surface connection and authentication
// failures as distinguishable error kinds (see Error).
type FileStore interface {
	// List returns the files in a remote directory
	List(ctx context.Context, dir string) ([]Entry, error)
	// Fetch opens a remote file for reading
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
	// Close releases all transport connections
	Close() error
}

// 📊 ErrorKind classifies transport failures
type ErrorKind int

const (
	KindUnknown  ErrorKind = iota
	KindConnect            // Dial/connection-level failure, retryable
	KindAuth               // Authentication rejected, fatal
	KindNotFound           // Remote path does not exist, fatal
	KindIO                 // Transfer interrupted mid-flight, retryable
)

// String returns a string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "notfound"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// ❌ Error is a transport failure with a classified kind
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("file transfer (%s): %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("file transfer (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 🔍 IsRetryable reports whether a transport error is worth retrying.
// Connection drops and interrupted transfers are transient; authentication
// rejections and missing paths are not.
func IsRetryable(err error) bool {
	var terr *Error
	if !errors.As(err, &terr) {
		return false
	}
	return terr.Kind == KindConnect || terr.Kind == KindIO
}

// 🔍 Discover lists a remote directory and returns the entries whose names
// match any of the given glob patterns, in deterministic name order.
func Discover(ctx context.Context, fs FileStore, dir string, patterns []string) ([]Entry, error) {
	entries, err := fs.List(ctx, dir)
	if err != nil {
		return nil, errors.Errorf("listing %s: %w", dir, err)
	}

	var matched []Entry
	for _, entry := range entries {
		for _, pattern := range patterns {
			ok, merr := doublestar.Match(pattern, entry.Name)
			if merr != nil {
				return nil, errors.Errorf("matching pattern %q: %w", pattern, merr)
			}
			if ok {
				matched = append(matched, entry)
				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched, nil
}

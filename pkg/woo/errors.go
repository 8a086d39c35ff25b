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

package woo

import (
	"fmt"
	"net/http"

	"gitlab.com/tozd/go/errors"
)

// 📊 ErrorKind classifies destination API failures
type ErrorKind int

const (
	KindUnknown     ErrorKind = iota
	KindNetwork               // Request never produced a response, retryable
	KindAuth                  // 401/403, fatal
	KindNotFound              // 404, fatal
	KindRateLimited           // 429, retryable
	KindServer                // 5xx, retryable
	KindRequest               // Remaining 4xx, fatal
)

// String returns a string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "notfound"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// ❌ Error is a destination API failure with a classified kind
type Error struct {
	Kind     ErrorKind
	Status   int // HTTP status, 0 for network failures
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("destination api (%s): %s: status %d: %v", e.Kind, e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("destination api (%s): %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to an error kind
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindRequest
	default:
		return KindUnknown
	}
}

// 🔍 IsRetryable reports whether a destination API error is worth retrying:
// rate limits, server errors and network-level failures are transient, every
// other 4xx is not.
func IsRetryable(err error) bool {
	var werr *Error
	if !errors.As(err, &werr) {
		return false
	}
	switch werr.Kind {
	case KindNetwork, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

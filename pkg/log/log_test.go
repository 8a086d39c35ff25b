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

package log

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		op       func(t *testing.T, logger *Logger)
		wantLogs []string
	}{
		{
			name: "log_product_operation",
			op: func(t *testing.T, logger *Logger) {
				logger.StartProductOperation(context.Background(), ProductOperation{
					Slug:     "blue-shirt",
					SourceID: 10,
					Images:   3,
				})
			},
			wantLogs: []string{
				"[migrating blue-shirt]",
				"◆ source 10 • 3 images",
			},
		},
		{
			name: "log_messages",
			op: func(t *testing.T, logger *Logger) {
				logger.Info("info message")
				logger.Warning("warning message")
				logger.Error("error message")
				logger.Success("success message")
			},
			wantLogs: []string{
				"ℹ️  info message",
				"⚠️  warning message",
				"❌ error message",
				"✅ success message",
			},
		},
		{
			name: "log_formatted_messages",
			op: func(t *testing.T, logger *Logger) {
				logger.Infof("info %s", "test")
				logger.Warningf("warning %s", "test")
				logger.Errorf("error %s", "test")
				logger.Successf("success %s", "test")
			},
			wantLogs: []string{
				"ℹ️  info test",
				"⚠️  warning test",
				"❌ error test",
				"✅ success test",
			},
		},
		{
			name: "log_header",
			op: func(t *testing.T, logger *Logger) {
				logger.Header("migrating catalog images")
			},
			wantLogs: []string{
				"migrc • migrating catalog images",
			},
		},
		{
			name: "log_newline",
			op: func(t *testing.T, logger *Logger) {
				logger.Info("first")
				logger.LogNewline()
				logger.Info("second")
			},
			wantLogs: []string{
				"ℹ️  first",
				"",
				"ℹ️  second",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create buffer for console output
			buf := &bytes.Buffer{}
			logger := New(buf, zerolog.InfoLevel)

			// Perform operation
			tt.op(t, logger)

			// Check output
			output := strings.TrimSpace(buf.String())
			lines := strings.Split(output, "\n")

			require.Equal(t, len(tt.wantLogs), len(lines), "number of log lines should match")
			for i, want := range tt.wantLogs {
				assert.Equal(t, want, strings.TrimSpace(lines[i]), "log line %d should match", i)
			}
		})
	}
}

func TestLoggerContext(t *testing.T) {
	// Create logger
	logger := New(io.Discard, zerolog.InfoLevel)

	// Add to context
	ctx := context.Background()
	ctx = NewContext(ctx, logger)

	// Get from context
	got := FromContext(ctx)
	assert.Same(t, logger, got, "logger from context should be the same instance")

	// Check panic on missing logger
	assert.Panics(t, func() {
		FromContext(context.Background())
	}, "FromContext should panic when logger is missing")
}

func TestImageOperationFormatting(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name       string
		op         ImageOperation
		wantSymbol string
	}{
		{
			name: "uploaded_image",
			op: ImageOperation{
				Filename: "blue-shirt-1.jpg",
				Status:   "uploaded",
				Attempts: 1,
				Detail:   "media 101",
			},
			wantSymbol: "✓",
		},
		{
			name: "skipped_duplicate",
			op: ImageOperation{
				Filename: "blue-shirt-2.jpg",
				Status:   "skipped_duplicate",
				Detail:   "media 55",
			},
			wantSymbol: "•",
		},
		{
			name: "failed_image",
			op: ImageOperation{
				Filename: "blue-shirt-3.jpg",
				Status:   "failed",
				Attempts: 3,
				Detail:   "server",
			},
			wantSymbol: "✗",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create buffer for console output
			buf := &bytes.Buffer{}
			logger := New(buf, zerolog.InfoLevel)

			// Log operation
			logger.LogImageOperation(context.Background(), tt.op)

			// Check output
			output := buf.String()
			assert.True(t, strings.HasPrefix(output, "    "+tt.wantSymbol+" "), "symbol prefix should match, got %q", output)
			assert.Contains(t, output, tt.op.Filename)
			assert.Contains(t, output, tt.op.Status)
			assert.Contains(t, output, tt.op.Detail)
		})
	}
}

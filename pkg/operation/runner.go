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

package operation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/report"
	"gitlab.com/tozd/go/errors"
)

// 🎬 Operation is one runnable unit of work
type Operation interface {
	Name() string
	Execute(ctx context.Context) (report.Document, error)
}

// 📸 ExtractOperation wraps Operator.Extract for the runner
type ExtractOperation struct {
	Operator Operator
}

func (e *ExtractOperation) Name() string { return "extract" }

func (e *ExtractOperation) Execute(ctx context.Context) (report.Document, error) {
	return e.Operator.Extract(ctx)
}

// 🚚 MigrateOperation wraps Operator.Migrate for the runner
type MigrateOperation struct {
	Operator Operator
}

func (m *MigrateOperation) Name() string { return "migrate" }

func (m *MigrateOperation) Execute(ctx context.Context) (report.Document, error) {
	return m.Operator.Migrate(ctx)
}

// 🏃 OperationRunner executes operations
type OperationRunner struct {
	logger *zerolog.Logger
	async  bool
}

// 🏗️ NewRunner creates a new runner
func NewRunner(logger *zerolog.Logger, async bool) *OperationRunner {
	return &OperationRunner{
		logger: logger,
		async:  async,
	}
}

// 🏃 Run executes an operation
func (r *OperationRunner) Run(ctx context.Context, op Operation) (report.Document, error) {
	if r.async {
		return r.runAsync(ctx, op)
	}
	return r.runSync(ctx, op)
}

// 🔄 runSync runs an operation synchronously
func (r *OperationRunner) runSync(ctx context.Context, op Operation) (report.Document, error) {
	return op.Execute(ctx)
}

// ⚡ runAsync runs an operation in its own goroutine so cancellation is
// observed even while the operation blocks
func (r *OperationRunner) runAsync(ctx context.Context, op Operation) (report.Document, error) {
	var wg sync.WaitGroup
	var doc report.Document
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		d, err := op.Execute(ctx)
		if err != nil {
			errCh <- errors.Errorf("executing %s: %w", op.Name(), err)
			return
		}
		doc = d
	}()

	// Wait for completion or context cancellation
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return report.Document{}, errors.Errorf("operation cancelled: %w", ctx.Err())
	case err := <-errCh:
		return report.Document{}, err
	case <-done:
		return doc, nil
	}
}

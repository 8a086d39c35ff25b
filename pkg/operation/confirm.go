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
	"fmt"

	"github.com/pterm/pterm"
	"github.com/walteh/migrc/pkg/report"
	"gitlab.com/tozd/go/errors"
)

// 🙋 CLIConfirmer shows the extraction summary and asks the operator
// whether phase 3 should run. With Auto set it approves without asking.
type CLIConfirmer struct {
	Auto bool
}

// ✅ Confirm implements Confirmer
func (c *CLIConfirmer) Confirm(ctx context.Context, doc report.Document) (bool, error) {
	if c.Auto {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	table := pterm.TableData{
		{"Products", fmt.Sprintf("%d", doc.Summary.TotalProducts)},
		{"Images staged", fmt.Sprintf("%d", doc.Summary.TotalImages)},
		{"Total stock", fmt.Sprintf("%d", doc.Summary.TotalStock)},
	}
	if err := pterm.DefaultTable.WithData(table).Render(); err != nil {
		return false, errors.Errorf("rendering summary: %w", err)
	}

	confirmed, err := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Upload staged images to the destination?").
		Show()
	if err != nil {
		return false, errors.Errorf("reading confirmation: %w", err)
	}
	return confirmed, nil
}

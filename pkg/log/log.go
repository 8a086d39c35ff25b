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
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent image entries
	nameWidth   = 35 // Base width for image filename
	statusWidth = 18 // Width for status text
)

// 🎯 ImageOperation represents one image result for logging
type ImageOperation struct {
	Filename string // Staged filename (slug-N.ext)
	Status   string // uploaded / skipped_duplicate / failed
	Attempts int    // Attempts consumed
	Detail   string // Error kind or media id
}

// 📦 ProductOperation represents one product being migrated
type ProductOperation struct {
	Slug          string // Product slug
	SourceID      int64  // Source catalog id
	DestinationID int64  // Resolved destination id (0 before resolution)
	Images        int    // Number of image references
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         sync.Mutex
	currentOp  *ProductOperation
	operations []ImageOperation
}

// 🏭 New creates a new logger
func New(console io.Writer, level zerolog.Level) *Logger {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	return &Logger{
		zlog:    zlog,
		console: console,
		mu:      sync.Mutex{},
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatImageOperation formats an image result for display
func (l *Logger) formatImageOperation(op ImageOperation) string {
	var symbol rune
	var symbolColor color.Attribute
	switch op.Status {
	case "uploaded":
		symbol = '✓'
		symbolColor = color.FgGreen
	case "skipped_duplicate":
		symbol = '•'
		symbolColor = color.FgCyan
	case "failed":
		symbol = '✗'
		symbolColor = color.FgRed
	default:
		symbol = '-'
		symbolColor = color.FgYellow
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, op.Filename),
		fmt.Sprintf("%-*s", statusWidth, op.Status),
		color.New(color.Faint).Sprint(op.Detail))
}

// 📝 LogImageOperation logs one image result
func (l *Logger) LogImageOperation(ctx context.Context, op ImageOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.operations = append(l.operations, op)

	fmt.Fprintln(l.console, l.formatImageOperation(op))

	l.zlog.Info().
		Str("file", op.Filename).
		Str("status", op.Status).
		Int("attempts", op.Attempts).
		Str("detail", op.Detail).
		Msg("image operation")
}

// 📝 StartProductOperation starts a new product migration
func (l *Logger) StartProductOperation(ctx context.Context, op ProductOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentOp = &op
	l.operations = nil

	fmt.Fprintf(l.console, "[migrating %s]\n",
		color.New(color.FgCyan).Sprint(op.Slug))

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(fmt.Sprintf("source %d", op.SourceID)),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(fmt.Sprintf("%d images", op.Images)))

	l.zlog.Info().
		Str("product", op.Slug).
		Int64("source_id", op.SourceID).
		Int64("destination_id", op.DestinationID).
		Int("images", op.Images).
		Msg("starting product migration")
}

// 📝 EndProductOperation ends the current product migration
func (l *Logger) EndProductOperation(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentOp == nil {
		return
	}

	l.zlog.Info().
		Str("product", l.currentOp.Slug).
		Int("images", len(l.operations)).
		Msg("product migration complete")

	l.currentOp = nil
	l.operations = nil
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	migrcText := color.New(color.Bold, color.FgCyan).Sprint("migrc")
	fmt.Fprintf(l.console, "\n%s %s\n\n", migrcText, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}

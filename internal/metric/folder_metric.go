// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package metric

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FolderMetric defines the folder routing instrumentation
type FolderMetric struct {
	// Specifies the number of folder handlers currently open
	openHandlers metric.Int64UpDownCounter
	// Specifies the total number of commands processed
	commandsCount metric.Int64Counter
	// Specifies the total number of commands that failed
	commandFailures metric.Int64Counter
	// Specifies the command processing duration
	// This is expressed in milliseconds
	commandDuration metric.Int64Histogram
}

// NewFolderMetric creates an instance of FolderMetric
func NewFolderMetric(meter metric.Meter) (*FolderMetric, error) {
	folderMetric := new(FolderMetric)
	var err error
	if folderMetric.openHandlers, err = meter.Int64UpDownCounter(
		"foldersync.handlers.open",
		metric.WithDescription("Number of folders currently open"),
	); err != nil {
		return nil, fmt.Errorf("failed to create openHandlers instrument, %w", err)
	}

	if folderMetric.commandsCount, err = meter.Int64Counter(
		"foldersync.commands.count",
		metric.WithDescription("Total number of folder commands processed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create commandsCount instrument, %w", err)
	}

	if folderMetric.commandFailures, err = meter.Int64Counter(
		"foldersync.commands.failures",
		metric.WithDescription("Total number of folder commands that failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create commandFailures instrument, %w", err)
	}

	if folderMetric.commandDuration, err = meter.Int64Histogram(
		"foldersync.command.duration",
		metric.WithDescription("The latency of folder commands in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create commandDuration instrument, %w", err)
	}

	return folderMetric, nil
}

// HandlerOpened records a newly registered folder handler
func (x *FolderMetric) HandlerOpened(ctx context.Context) {
	x.openHandlers.Add(ctx, 1)
}

// HandlerRetired records a retired folder handler
func (x *FolderMetric) HandlerRetired(ctx context.Context) {
	x.openHandlers.Add(ctx, -1)
}

// CommandProcessed records a processed command of the given kind
func (x *FolderMetric) CommandProcessed(ctx context.Context, kind string, latency time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	x.commandsCount.Add(ctx, 1, attrs)
	x.commandDuration.Record(ctx, latency.Milliseconds(), attrs)
	if err != nil {
		x.commandFailures.Add(ctx, 1, attrs)
	}
}

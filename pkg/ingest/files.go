// Copyright 2026 Kadir Pekel
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

package ingest

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// FileResult pairs one input path with its outcome. Results and Err
// can both be set: a multi-item file may land some documents and fail
// others.
type FileResult struct {
	Path    string
	Results []*Result
	Err     error
}

// IngestFiles runs the pipeline over many files with bounded
// parallelism. The returned slice is ordered like paths. Cancellation
// stops dispatching new files; files never started report the context
// error.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, opts Options) []*FileResult {
	out := make([]*FileResult, len(paths))

	var wg sync.WaitGroup
	var completed atomic.Int64
	slots := make(chan struct{}, cap(p.sem))

	for i := range paths {
		// Once the context is done a free slot is equally ready in the
		// select below, so cancellation must be checked first.
		if err := ctx.Err(); err != nil {
			out[i] = &FileResult{Path: paths[i], Err: err}
			continue
		}
		select {
		case <-ctx.Done():
			out[i] = &FileResult{Path: paths[i], Err: ctx.Err()}
			continue
		case slots <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-slots }()

			out[i] = p.ingestFile(ctx, path, opts)

			done := completed.Add(1)
			slog.Debug("file processed",
				"path", path, "done", done, "total", len(paths), "error", out[i].Err)
		}(i, paths[i])
	}
	wg.Wait()
	return out
}

func (p *Pipeline) ingestFile(ctx context.Context, path string, opts Options) *FileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileResult{Path: path, Err: &InputError{Reason: err.Error()}}
	}

	opts.Filename = path
	results, err := p.Ingest(ctx, data, opts)
	return &FileResult{Path: path, Results: results, Err: err}
}

// Package csvfile serves datasets from CSV exports on disk. Dataset "hr" is
// read from <dir>/hr.csv on every fetch, so replaced files are picked up
// without a restart.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

const DefaultID = "csv"

type Provider struct {
	id     string
	dir    string
	logger *slog.Logger
}

type Option func(*Provider)

func WithID(id string) Option {
	return func(p *Provider) {
		p.id = id
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func New(dir string, opts ...Option) (*Provider, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	p := &Provider{
		id:     DefaultID,
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Fetch(ctx context.Context, q provider.Query) (*identity.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.ContextError(p.id, q.Dataset, "context done", err)
	}
	if q.Dataset == "" || strings.ContainsAny(q.Dataset, `/\`) {
		return nil, provider.NewError(provider.ErrorContractMismatch, p.id, q.Dataset, "invalid dataset name", provider.ErrInvalidQuery)
	}

	path := filepath.Join(p.dir, q.Dataset+".csv")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, provider.NewError(provider.ErrorNotFound, p.id, q.Dataset, "no such file", err)
	}
	if err != nil {
		return nil, provider.NewError(provider.ErrorOutage, p.id, q.Dataset, "read file", err)
	}

	table, err := p.parse(ctx, q.Dataset, data)
	if err != nil {
		return nil, provider.NewError(provider.ErrorBadData, p.id, q.Dataset, "parse csv", err)
	}
	return provider.Select(p.id, table, q)
}

// Health checks the data directory is readable.
func (p *Provider) Health(context.Context) error {
	info, err := os.Stat(p.dir)
	if err != nil {
		return provider.NewError(provider.ErrorOutage, p.id, "", "stat data directory", err)
	}
	if !info.IsDir() {
		return provider.NewError(provider.ErrorOutage, p.id, "", p.dir+" is not a directory", nil)
	}
	return nil
}

// parse reads a header row and data rows. Headers are trimmed, ragged rows
// are padded or truncated to the header width, and empty cells become null.
func (p *Provider) parse(ctx context.Context, dataset string, data []byte) (*identity.Table, error) {
	src, enc := Decode(data)
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file: no header row found")
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	table := &identity.Table{Name: dataset, Columns: headers}
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			p.logger.WarnContext(ctx, "skipping unparseable csv row", "dataset", dataset, "row", line, "error", err)
			continue
		}
		if len(rec) != len(headers) {
			p.logger.WarnContext(ctx, "csv row width mismatch",
				"dataset", dataset,
				"row", line,
				"got", len(rec),
				"want", len(headers),
			)
		}

		row := make(identity.Row, len(headers))
		for i, h := range headers {
			if i >= len(rec) || rec[i] == "" {
				row[h] = nil
				continue
			}
			row[h] = rec[i]
		}
		table.Rows = append(table.Rows, row)
	}

	p.logger.DebugContext(ctx, "csv dataset loaded", "dataset", dataset, "encoding", enc, "rows", len(table.Rows))
	return table, nil
}

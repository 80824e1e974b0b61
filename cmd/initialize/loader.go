// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package initialize

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/liveconfig/internal/adminapi"
	"github.com/cardinalhq/liveconfig/internal/record"
)

// FileReader interface for testable file operations
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
	Getenv(key string) string
}

// OSFileReader implements FileReader using OS operations
type OSFileReader struct{}

func (r OSFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (r OSFileReader) Getenv(key string) string {
	return os.Getenv(key)
}

// RecordWriter is the part of the store seeding needs.
type RecordWriter interface {
	Upsert(ctx context.Context, rec record.Record) error
}

// SeedRecords loads filename and upserts every record in it. A filename of
// the form "env:NAME" reads the document from that environment variable.
func SeedRecords(ctx context.Context, filename string, store RecordWriter, ll *slog.Logger) (int, error) {
	return SeedRecordsWithDependencies(ctx, filename, store, OSFileReader{}, ll)
}

// SeedRecordsWithDependencies is SeedRecords with an injectable file reader.
// Nothing is written unless every record in the document is valid.
func SeedRecordsWithDependencies(ctx context.Context, filename string, store RecordWriter, fileReader FileReader, ll *slog.Logger) (int, error) {
	contents, err := loadFileContentsWithReader(filename, fileReader)
	if err != nil {
		return 0, err
	}

	records, err := ParseSeedFile(contents)
	if err != nil {
		return 0, err
	}
	ll.Info("Loaded seed records", slog.String("source", filename), slog.Int("records", len(records)))

	return importRecords(ctx, records, store, ll)
}

func loadFileContentsWithReader(filename string, fileReader FileReader) ([]byte, error) {
	if after, ok := strings.CutPrefix(filename, "env:"); ok {
		envContents := fileReader.Getenv(after)
		if envContents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", after)
		}
		return []byte(envContents), nil
	}

	contents, err := fileReader.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return contents, nil
}

// ParseSeedFile decodes a seed document and validates every record in it,
// reporting all problems at once.
func ParseSeedFile(contents []byte) ([]record.Record, error) {
	var doc SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	var problems *multierror.Error
	records := make([]record.Record, 0, len(doc.Records))
	for i, sr := range doc.Records {
		rec := record.Record{
			ID:              strings.TrimSpace(sr.ID),
			Name:            record.NormalizeName(sr.Name),
			Type:            sr.Type,
			Value:           sr.Value,
			IsActive:        sr.Active == nil || *sr.Active,
			ApplicationName: strings.TrimSpace(sr.Application),
		}
		if rec.ApplicationName == "" {
			rec.ApplicationName = strings.TrimSpace(doc.Application)
		}
		if err := adminapi.Validate(rec); err != nil {
			problems = multierror.Append(problems, fmt.Errorf("records[%d] %q: %w", i, rec.Name, err))
			continue
		}
		records = append(records, rec)
	}
	if err := problems.ErrorOrNil(); err != nil {
		return nil, err
	}
	return records, nil
}

func importRecords(ctx context.Context, records []record.Record, store RecordWriter, ll *slog.Logger) (int, error) {
	written := 0
	for _, rec := range records {
		if err := store.Upsert(ctx, rec); err != nil {
			return written, fmt.Errorf("failed to upsert %s/%s: %w", rec.ApplicationName, rec.Name, err)
		}
		written++
		ll.Debug("Seeded record",
			slog.String("application", rec.ApplicationName),
			slog.String("name", rec.Name))
	}
	return written, nil
}

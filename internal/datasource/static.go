package datasource

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/opsdesk/model"
)

// StaticSource serves a fixed in-memory record set. It is not paginated: the
// engine filters, sorts and pages the full set locally.
type StaticSource struct {
	records []model.Record
}

// seedFile is the on-disk shape of a static seed. JSON seeds parse too.
type seedFile struct {
	Records []model.Record `yaml:"records"`
}

// NewStaticSource creates a source over a copy of records.
func NewStaticSource(records []model.Record) *StaticSource {
	return &StaticSource{records: cloneRecords(records)}
}

// LoadStaticSource reads a YAML or JSON seed file.
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &StaticSource{records: seed.Records}, nil
}

// Fetch returns a copy of every record in source order.
func (s *StaticSource) Fetch(ctx context.Context, _ model.FetchRequest) (model.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.FetchResult{}, err
	}
	return model.FetchResult{Records: cloneRecords(s.records)}, nil
}

// Paginated reports false.
func (s *StaticSource) Paginated() bool { return false }

// Len returns the number of seeded records.
func (s *StaticSource) Len() int { return len(s.records) }

func cloneRecords(in []model.Record) []model.Record {
	out := make([]model.Record, len(in))
	copy(out, in)
	return out
}

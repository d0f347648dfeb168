package datasource

import (
	"context"
	"time"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

type instrumented struct {
	inner      Source
	screenID   string
	sourceType string
	metrics    *observability.Metrics
}

// Instrument wraps src so every fetch runs in a datasource.fetch span and is
// counted in the fetch metrics.
func Instrument(src Source, screenID, sourceType string, m *observability.Metrics) Source {
	return &instrumented{inner: src, screenID: screenID, sourceType: sourceType, metrics: m}
}

func (s *instrumented) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	ctx, span := observability.StartSpan(ctx, "datasource.fetch",
		observability.AttrScreenID.String(s.screenID),
		observability.AttrSourceType.String(s.sourceType),
		observability.AttrPage.Int(req.Page),
	)
	start := time.Now()
	result, err := s.inner.Fetch(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordFetch(s.screenID, status, time.Since(start))
	observability.EndSpanWithError(span, err)
	return result, err
}

func (s *instrumented) Paginated() bool { return s.inner.Paginated() }

func (s *instrumented) Unwrap() Source { return s.inner }

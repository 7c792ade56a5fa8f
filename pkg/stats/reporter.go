package stats

import (
	"context"
	"sync"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Reporter computes corpus statistics for a graduation year.
type Reporter struct {
	store       store.DocumentStore
	parallelism int
}

type ReporterOption func(*Reporter)

// WithParallelism bounds the number of concurrent aggregation calls made
// by TopFieldCounts.
func WithParallelism(n int) ReporterOption {
	return func(r *Reporter) {
		r.parallelism = max(n, 1)
	}
}

func NewReporter(s store.DocumentStore, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		store:       s,
		parallelism: len(common.AggregationFields),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// TopFieldCounts runs one terms aggregation per field over the documents
// of the given year. Without fields all aggregatable fields are reported.
// Every requested field is present in the result, with an empty slice when
// the engine returned no bucket.
func (r *Reporter) TopFieldCounts(ctx context.Context, year int, fields ...string) (map[string][]common.FieldBucket, error) {
	if len(fields) == 0 {
		fields = common.AggregationFields
	}
	fields = store.DedupeStrings(fields)
	for _, f := range fields {
		if err := store.ValidateAggregationField(f); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]common.FieldBucket, len(fields))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, field := range fields {
		g.Go(func() error {
			buckets, err := r.store.AggregateTerms(gCtx, field, year)
			if err != nil {
				return err
			}
			if buckets == nil {
				buckets = []common.FieldBucket{}
			}
			mu.Lock()
			out[field] = buckets
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// InstitutionDepartmentStats flattens the institution by department
// aggregation into rows. Each institution contributes a Total row with its
// overall count followed by one row per department, all in engine order.
func (r *Reporter) InstitutionDepartmentStats(ctx context.Context, year int) ([]common.InstitutionDepartmentRow, error) {
	buckets, err := r.store.AggregateNested(ctx, common.FieldInstitution, common.FieldDepartment, year)
	if err != nil {
		return nil, err
	}

	rows := make([]common.InstitutionDepartmentRow, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, common.InstitutionDepartmentRow{
			Institution: b.Key,
			Department:  common.TotalDepartment,
			Count:       b.DocCount,
		})
		for _, inner := range b.Inner {
			rows = append(rows, common.InstitutionDepartmentRow{
				Institution: b.Key,
				Department:  inner.Key,
				Count:       inner.DocCount,
			})
		}
	}
	return rows, nil
}

func (r *Reporter) TotalDocuments(ctx context.Context) (int64, error) {
	return r.store.CountDocuments(ctx)
}

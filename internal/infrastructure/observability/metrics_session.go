package observability

import (
	"context"
	"time"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// Metrics returns a decorator recording every backend call on c.
func Metrics[E entity.Entity](c *Collector) repository.Decorator[E] {
	name := entity.TypeName[E]()
	return func(inner repository.Session[E]) repository.Session[E] {
		return &MetricsSession[E]{inner: inner, metrics: c, entity: name}
	}
}

type MetricsSession[E entity.Entity] struct {
	inner   repository.Session[E]
	metrics *Collector
	entity  string
}

func (s *MetricsSession[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	start := time.Now()
	rows, err := s.inner.Find(ctx, plan)
	s.metrics.RecordDBOperation("find", s.entity, time.Since(start), err)
	return rows, err
}

func (s *MetricsSession[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	start := time.Now()
	n, err := s.inner.Count(ctx, plan)
	s.metrics.RecordDBOperation("count", s.entity, time.Since(start), err)
	return n, err
}

func (s *MetricsSession[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, plan)
	s.metrics.RecordDBOperation("exists", s.entity, time.Since(start), err)
	return ok, err
}

func (s *MetricsSession[E]) Add(entities ...E) { s.inner.Add(entities...) }

func (s *MetricsSession[E]) Remove(entities ...E) { s.inner.Remove(entities...) }

func (s *MetricsSession[E]) Modified() []E { return s.inner.Modified() }

func (s *MetricsSession[E]) SaveChanges(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.inner.SaveChanges(ctx)
	s.metrics.RecordDBOperation("save_changes", s.entity, time.Since(start), err)
	if err == nil && n > 0 {
		s.metrics.EntitiesSaved.WithLabelValues(s.entity).Add(float64(n))
	}
	return n, err
}

package messaging

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// Publishing returns a decorator that announces every committed change. A
// failed publish is logged; it never fails or undoes the save.
func Publishing[E entity.Entity](publisher Publisher, logger *zap.Logger) repository.Decorator[E] {
	return func(inner repository.Session[E]) repository.Session[E] {
		return &PublishingSession[E]{
			inner:     inner,
			publisher: publisher,
			logger:    logger,
			now:       func() time.Time { return time.Now().UTC() },
		}
	}
}

type PublishingSession[E entity.Entity] struct {
	inner     repository.Session[E]
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	added   []E
	removed []E
}

func (s *PublishingSession[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	return s.inner.Find(ctx, plan)
}

func (s *PublishingSession[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	return s.inner.Count(ctx, plan)
}

func (s *PublishingSession[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	return s.inner.Exists(ctx, plan)
}

func (s *PublishingSession[E]) Add(entities ...E) {
	for _, e := range entities {
		if !entity.IsAbsent(e) {
			s.added = append(s.added, e)
		}
	}
	s.inner.Add(entities...)
}

func (s *PublishingSession[E]) Remove(entities ...E) {
	for _, e := range entities {
		if entity.IsAbsent(e) {
			continue
		}
		if i := indexOf(s.added, e); i >= 0 {
			s.added = slices.Delete(s.added, i, i+1)
			continue
		}
		if indexOf(s.removed, e) < 0 {
			s.removed = append(s.removed, e)
		}
	}
	s.inner.Remove(entities...)
}

func (s *PublishingSession[E]) Modified() []E { return s.inner.Modified() }

func (s *PublishingSession[E]) SaveChanges(ctx context.Context) (int, error) {
	modified := s.inner.Modified()
	n, err := s.inner.SaveChanges(ctx)
	if err != nil {
		return n, err
	}

	name := entity.TypeName[E]()
	at := s.now()
	events := make([]ChangeEvent, 0, len(s.added)+len(modified)+len(s.removed))
	collect := func(kind string, entities []E) {
		for _, e := range entities {
			b := e.Audit()
			events = append(events, ChangeEvent{Kind: kind, Entity: name, ID: b.ID, Version: b.Version, OccurredAt: at})
		}
	}
	collect(KindAdded, s.added)
	collect(KindModified, modified)
	collect(KindRemoved, s.removed)
	s.added, s.removed = nil, nil

	if len(events) > 0 {
		if perr := s.publisher.Publish(ctx, events); perr != nil {
			s.logger.Error("Failed to publish change events",
				zap.String("entity", name),
				zap.Int("events", len(events)),
				zap.Error(perr),
			)
		}
	}
	return n, nil
}

func indexOf[E entity.Entity](list []E, e E) int {
	for i, x := range list {
		if any(x) == any(e) {
			return i
		}
	}
	return -1
}

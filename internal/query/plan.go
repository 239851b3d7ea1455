package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/specification"
)

// Hints are execution preferences a backend may honour or ignore.
type Hints struct {
	Track      bool
	SplitQuery bool
}

// Plan is the declarative description of one query. It is built per call, handed
// to a Source and then discarded. Stages always apply in this order:
// include, normalize, where, order, skip, take.
type Plan[E entity.Entity] struct {
	ID        string
	Operation string
	Entity    string
	Filter    *specification.Specification[E]
	Include   []string
	Hints     Hints
	Sort      []SortKey[E]
	Direction SortDirection
	Skip      int
	Take      int
}

// NewPlan validates spec and opts and assembles the plan for operation op.
func NewPlan[E entity.Entity](op string, spec *specification.Specification[E], opts Options[E]) (Plan[E], error) {
	if err := spec.Validate(); err != nil {
		return Plan[E]{}, apperrors.Invalid(op, err.Error())
	}
	if err := opts.Validate(); err != nil {
		return Plan[E]{}, apperrors.Invalid(op, err.Error())
	}
	return Plan[E]{
		ID:        uuid.NewString(),
		Operation: op,
		Entity:    entity.TypeName[E](),
		Filter:    spec,
		Include:   dedupe(opts.Include),
		Hints:     Hints{Track: opts.Track, SplitQuery: opts.SplitQuery},
		Sort:      opts.Sort,
		Direction: opts.direction(),
		Skip:      opts.Skip,
		Take:      opts.Take,
	}, nil
}

// Sorted reports whether the plan has an order stage.
func (p Plan[E]) Sorted() bool { return len(p.Sort) > 0 }

// Paged reports whether the plan has a skip or take stage.
func (p Plan[E]) Paged() bool { return p.Skip > 0 || p.Take > 0 }

// SortNamed reports whether every sort key names an attribute a backend can order by.
func (p Plan[E]) SortNamed() bool {
	for _, k := range p.Sort {
		if k.Name == "" {
			return false
		}
	}
	return true
}

// Unpaged returns a copy without skip and take.
func (p Plan[E]) Unpaged() Plan[E] {
	p.Skip, p.Take = 0, 0
	return p
}

// WithSort returns a copy ordered by keys.
func (p Plan[E]) WithSort(keys ...SortKey[E]) Plan[E] {
	p.Sort = keys
	return p
}

// Stages lists the stages this plan applies, in execution order.
func (p Plan[E]) Stages() []string {
	stages := make([]string, 0, 6)
	if len(p.Include) > 0 {
		stages = append(stages, fmt.Sprintf("include(%s)", strings.Join(p.Include, ",")))
	}
	stages = append(stages, "normalize", p.whereStage())
	if p.Sorted() {
		names := make([]string, len(p.Sort))
		for i, k := range p.Sort {
			names[i] = k.Name
			if names[i] == "" {
				names[i] = "<computed>"
			}
		}
		stages = append(stages, fmt.Sprintf("order(%s %s)", strings.Join(names, ","), p.Direction))
	}
	if p.Skip > 0 {
		stages = append(stages, fmt.Sprintf("skip(%d)", p.Skip))
	}
	if p.Take > 0 {
		stages = append(stages, fmt.Sprintf("take(%d)", p.Take))
	}
	return stages
}

// whereStage renders the filter with its estimated selectivity. Filters holding a
// predicate are marked because no backend can push them down.
func (p Plan[E]) whereStage() string {
	where := fmt.Sprintf("%s, sel=%.2f", p.Filter.Description(), p.Filter.EstimatedSelectivity())
	if !p.Filter.Translatable() {
		where += ", in-process"
	}
	return "where(" + where + ")"
}

// Explain renders the plan on one line for logs and traces.
func (p Plan[E]) Explain() string {
	return fmt.Sprintf("%s %s: %s", p.Operation, p.Entity, strings.Join(p.Stages(), " -> "))
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

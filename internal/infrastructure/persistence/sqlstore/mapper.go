package sqlstore

import (
	"fmt"

	"repokit/internal/domain/entity"
)

// Base columns every table has, in select order.
const (
	columnID          = "id"
	columnCreatedWhen = "created_when"
	columnUpdatedWhen = "updated_when"
	columnVersion     = "version"
)

// Mapper binds an entity type to a table. The store handles the base columns;
// Columns lists the others, in the order Values and Targets use.
type Mapper[E entity.Entity] struct {
	Table   string
	Columns []string
	// TimeColumns names the entries of Columns holding timestamps.
	TimeColumns []string
	Values      func(E) []any
	Targets     func(E) []any
}

func (m Mapper[E]) validate() error {
	if m.Table == "" || m.Values == nil || m.Targets == nil {
		return fmt.Errorf("mapper for %s is incomplete", entity.TypeName[E]())
	}
	return nil
}

func (m Mapper[E]) selectColumns() []string {
	return append([]string{columnID, columnCreatedWhen, columnUpdatedWhen, columnVersion}, m.Columns...)
}

func (m Mapper[E]) writeColumns() []string {
	return append([]string{columnCreatedWhen, columnUpdatedWhen, columnVersion}, m.Columns...)
}

func (m Mapper[E]) writeValues(e E) []any {
	b := e.Audit()
	return append([]any{b.CreatedWhen, b.UpdatedWhen, b.Version}, m.Values(e)...)
}

func (m Mapper[E]) scanTargets(e E) []any {
	b := e.Audit()
	return append([]any{&b.ID, &b.CreatedWhen, &b.UpdatedWhen, &b.Version}, m.Targets(e)...)
}

func (m Mapper[E]) columnSet() map[string]bool {
	set := make(map[string]bool, len(m.Columns)+4)
	for _, c := range m.selectColumns() {
		set[c] = true
	}
	return set
}

func (m Mapper[E]) timeSet() map[string]bool {
	set := map[string]bool{columnCreatedWhen: true, columnUpdatedWhen: true}
	for _, c := range m.TimeColumns {
		set[c] = true
	}
	return set
}

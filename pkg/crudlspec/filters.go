package crudlspec

import (
	"github.com/bitechdev/CrudlSpec/pkg/common"
)

// Restriction is a queryset filter: a SQL condition with bind arguments.
// The zero value matches all rows.
type Restriction struct {
	Cond string
	Args []interface{}
}

// Empty reports whether the restriction matches all rows.
func (r Restriction) Empty() bool {
	return r.Cond == ""
}

// apply adds the restriction to a select query. Empty restrictions are a no-op.
func (r Restriction) apply(q common.SelectQuery) common.SelectQuery {
	if r.Empty() {
		return q
	}
	return q.Where(r.Cond, r.Args...)
}

// applyDelete adds the restriction to a delete query.
func (r Restriction) applyDelete(q common.DeleteQuery) common.DeleteQuery {
	if r.Empty() {
		return q
	}
	return q.Where(r.Cond, r.Args...)
}

// FilterSource supplies the base queryset restriction plus per-operation
// restrictions. The pipeline always combines BaseFilter AND the operation
// filter, letting an implementer scope "what exists" and "what is
// listable/updatable/deletable" independently.
type FilterSource interface {
	BaseFilter(rc *RequestContext) Restriction
	FilterForList(rc *RequestContext) Restriction
	FilterForUpdate(rc *RequestContext) Restriction
	FilterForDelete(rc *RequestContext) Restriction
	FilterForGetOne(rc *RequestContext) Restriction
}

// DefaultFilters matches all rows for every operation. Embed it to override
// only the filters you need.
type DefaultFilters struct{}

func (DefaultFilters) BaseFilter(*RequestContext) Restriction      { return Restriction{} }
func (DefaultFilters) FilterForList(*RequestContext) Restriction   { return Restriction{} }
func (DefaultFilters) FilterForUpdate(*RequestContext) Restriction { return Restriction{} }
func (DefaultFilters) FilterForDelete(*RequestContext) Restriction { return Restriction{} }
func (DefaultFilters) FilterForGetOne(*RequestContext) Restriction { return Restriction{} }

// operationFilter resolves the action-specific filter for rc.Action.
func operationFilter(fs FilterSource, rc *RequestContext) Restriction {
	switch rc.Action {
	case ActionList:
		return fs.FilterForList(rc)
	case ActionUpdate, ActionPartialUpdate:
		return fs.FilterForUpdate(rc)
	case ActionDelete:
		return fs.FilterForDelete(rc)
	case ActionGetOne:
		return fs.FilterForGetOne(rc)
	}
	return Restriction{}
}

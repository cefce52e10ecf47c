package crudlspec

import (
	"context"

	"github.com/bitechdev/CrudlSpec/pkg/common"
)

// Action identifies one of the five generated operations.
type Action string

const (
	ActionCreate        Action = "create"
	ActionGetOne        Action = "get_one"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDelete        Action = "delete"
	ActionList          Action = "list"
)

// ObjectScoped reports whether the action operates on a single located row.
func (a Action) ObjectScoped() bool {
	switch a {
	case ActionGetOne, ActionUpdate, ActionPartialUpdate, ActionDelete:
		return true
	}
	return false
}

// RequestContext is the request-scoped record threaded through permission
// checks, filters, hooks and the pipeline stages. It is created fresh per
// request, owned by the request goroutine, and progressively enriched:
// Object is set once the lookup (or build, for create) stage has succeeded,
// RelatedModel/RelatedObject are set on the copy handed to related-object
// permission checks.
type RequestContext struct {
	Context    context.Context
	Request    common.Request
	Action     Action
	RequestID  string
	PathParams map[string]string
	Payload    map[string]interface{}

	// Model is a zero-value prototype of the target model struct.
	Model  interface{}
	Object interface{}

	RelatedModel  interface{}
	RelatedObject interface{}

	// Tx is the transaction the current pipeline run executes in. Read
	// pipelines set it to the plain database handle.
	Tx common.Database
}

// WithRelated returns a shallow copy with the related model and object set.
// Policies receive the copy so they can never leak related state back into
// the pipeline's own context.
func (rc *RequestContext) WithRelated(relatedModel, relatedObject interface{}) *RequestContext {
	cp := *rc
	cp.RelatedModel = relatedModel
	cp.RelatedObject = relatedObject
	return &cp
}

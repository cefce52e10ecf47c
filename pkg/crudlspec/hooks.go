package crudlspec

// Hooks are the per-action extension points invoked by the endpoint
// pipelines. For create, the pre hook runs after authorization, before the
// instance is built; for update, partial_update and delete it runs once the
// object has been located and passed the object permission check, so rc.Object
// is set. The post hook runs after the final validation (for delete, after
// the row removal). Hooks are side-effect only; they may read and write
// persistent state through rc.Tx (e.g. stamping an audit field on rc.Object)
// but must not replace the context or its object.
type Hooks interface {
	PreCreate(rc *RequestContext)
	PostCreate(rc *RequestContext)
	PreUpdate(rc *RequestContext)
	PostUpdate(rc *RequestContext)
	PrePatch(rc *RequestContext)
	PostPatch(rc *RequestContext)
	PreDelete(rc *RequestContext)
	PostDelete(rc *RequestContext)
}

// NoopHooks is the embeddable no-op implementation of Hooks.
type NoopHooks struct{}

func (NoopHooks) PreCreate(*RequestContext)  {}
func (NoopHooks) PostCreate(*RequestContext) {}
func (NoopHooks) PreUpdate(*RequestContext)  {}
func (NoopHooks) PostUpdate(*RequestContext) {}
func (NoopHooks) PrePatch(*RequestContext)   {}
func (NoopHooks) PostPatch(*RequestContext)  {}
func (NoopHooks) PreDelete(*RequestContext)  {}
func (NoopHooks) PostDelete(*RequestContext) {}

// preHook dispatches the pre hook matching the action. get_one and list have
// no hook points.
func preHook(h Hooks, rc *RequestContext) {
	if h == nil {
		return
	}
	switch rc.Action {
	case ActionCreate:
		h.PreCreate(rc)
	case ActionUpdate:
		h.PreUpdate(rc)
	case ActionPartialUpdate:
		h.PrePatch(rc)
	case ActionDelete:
		h.PreDelete(rc)
	}
}

// postHook dispatches the post hook matching the action.
func postHook(h Hooks, rc *RequestContext) {
	if h == nil {
		return
	}
	switch rc.Action {
	case ActionCreate:
		h.PostCreate(rc)
	case ActionUpdate:
		h.PostUpdate(rc)
	case ActionPartialUpdate:
		h.PostPatch(rc)
	case ActionDelete:
		h.PostDelete(rc)
	}
}

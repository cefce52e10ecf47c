package crudlspec

// Policy is a marker for permission policies. A policy opts into each of the
// four capability checks by implementing the matching sub-interface; checks a
// policy does not implement are skipped for it. This allows partial policies,
// e.g. one that only gates authentication.
type Policy interface{}

// Authenticator gates the authentication check (401 on denial).
type Authenticator interface {
	IsAuthenticated(rc *RequestContext) bool
}

// Permitter gates the coarse per-action permission check (403 on denial).
type Permitter interface {
	HasPermission(rc *RequestContext) bool
}

// ObjectPermitter gates access to one located or just-built instance.
// Denial maps to 404 so the existence of forbidden objects is not revealed.
type ObjectPermitter interface {
	HasObjectPermission(rc *RequestContext) bool
}

// RelatedObjectPermitter gates references to related objects during relation
// resolution. The pipeline calls it with rc.RelatedModel and rc.RelatedObject
// populated on a context copy. Denial maps to 404.
type RelatedObjectPermitter interface {
	HasRelatedObjectPermission(rc *RequestContext) bool
}

// PermissionEvaluator evaluates an ordered policy list. Every check is an
// AND over the policies implementing it, short-circuiting on the first
// denial. An empty list (or a list where no policy implements the check)
// allows everything.
type PermissionEvaluator struct {
	policies []Policy
}

// NewPermissionEvaluator builds an evaluator over the given policies,
// preserving list order.
func NewPermissionEvaluator(policies ...Policy) *PermissionEvaluator {
	return &PermissionEvaluator{policies: policies}
}

func (pe *PermissionEvaluator) IsAuthenticated(rc *RequestContext) bool {
	for _, p := range pe.policies {
		if a, ok := p.(Authenticator); ok {
			if !a.IsAuthenticated(rc) {
				return false
			}
		}
	}
	return true
}

func (pe *PermissionEvaluator) HasPermission(rc *RequestContext) bool {
	for _, p := range pe.policies {
		if perm, ok := p.(Permitter); ok {
			if !perm.HasPermission(rc) {
				return false
			}
		}
	}
	return true
}

func (pe *PermissionEvaluator) HasObjectPermission(rc *RequestContext) bool {
	for _, p := range pe.policies {
		if op, ok := p.(ObjectPermitter); ok {
			if !op.HasObjectPermission(rc) {
				return false
			}
		}
	}
	return true
}

func (pe *PermissionEvaluator) HasRelatedObjectPermission(rc *RequestContext) bool {
	for _, p := range pe.policies {
		if rp, ok := p.(RelatedObjectPermitter); ok {
			if !rp.HasRelatedObjectPermission(rc) {
				return false
			}
		}
	}
	return true
}

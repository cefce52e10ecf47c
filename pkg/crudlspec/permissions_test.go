package crudlspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// allowAllPolicy implements every capability check and records calls.
type allowAllPolicy struct {
	calls []string
}

func (p *allowAllPolicy) IsAuthenticated(*RequestContext) bool {
	p.calls = append(p.calls, "auth")
	return true
}

func (p *allowAllPolicy) HasPermission(*RequestContext) bool {
	p.calls = append(p.calls, "perm")
	return true
}

func (p *allowAllPolicy) HasObjectPermission(*RequestContext) bool {
	p.calls = append(p.calls, "object")
	return true
}

func (p *allowAllPolicy) HasRelatedObjectPermission(*RequestContext) bool {
	p.calls = append(p.calls, "related")
	return true
}

// denyAuthPolicy only gates authentication.
type denyAuthPolicy struct{}

func (denyAuthPolicy) IsAuthenticated(*RequestContext) bool { return false }

// denyPermissionPolicy authenticates everyone but denies the action.
type denyPermissionPolicy struct{}

func (denyPermissionPolicy) HasPermission(*RequestContext) bool { return false }

// denyObjectPolicy denies object-level access only.
type denyObjectPolicy struct{}

func (denyObjectPolicy) HasObjectPermission(*RequestContext) bool { return false }

// denyRelatedPolicy denies related-object references only.
type denyRelatedPolicy struct{}

func (denyRelatedPolicy) HasRelatedObjectPermission(*RequestContext) bool { return false }

func TestEvaluatorEmptyAllowsEverything(t *testing.T) {
	pe := NewPermissionEvaluator()
	rc := &RequestContext{}

	assert.True(t, pe.IsAuthenticated(rc))
	assert.True(t, pe.HasPermission(rc))
	assert.True(t, pe.HasObjectPermission(rc))
	assert.True(t, pe.HasRelatedObjectPermission(rc))
}

func TestEvaluatorANDsAcrossPolicies(t *testing.T) {
	allow := &allowAllPolicy{}
	rc := &RequestContext{}

	pe := NewPermissionEvaluator(allow, denyAuthPolicy{})
	assert.False(t, pe.IsAuthenticated(rc), "one denial fails the whole check")
	assert.True(t, pe.HasPermission(rc), "denyAuthPolicy does not gate permission")

	pe = NewPermissionEvaluator(allow, denyPermissionPolicy{})
	assert.True(t, pe.IsAuthenticated(rc))
	assert.False(t, pe.HasPermission(rc))

	pe = NewPermissionEvaluator(allow, denyObjectPolicy{})
	assert.False(t, pe.HasObjectPermission(rc))

	pe = NewPermissionEvaluator(allow, denyRelatedPolicy{})
	assert.False(t, pe.HasRelatedObjectPermission(rc))
}

func TestEvaluatorSkipsUnimplementedChecks(t *testing.T) {
	// denyAuthPolicy implements only Authenticator; every other check
	// passes because no policy in the list gates it.
	pe := NewPermissionEvaluator(denyAuthPolicy{})
	rc := &RequestContext{}

	assert.False(t, pe.IsAuthenticated(rc))
	assert.True(t, pe.HasPermission(rc))
	assert.True(t, pe.HasObjectPermission(rc))
	assert.True(t, pe.HasRelatedObjectPermission(rc))
}

func TestEvaluatorShortCircuits(t *testing.T) {
	first := &allowAllPolicy{}
	second := &allowAllPolicy{}
	pe := NewPermissionEvaluator(first, denyAuthPolicy{}, second)

	assert.False(t, pe.IsAuthenticated(&RequestContext{}))
	assert.Equal(t, []string{"auth"}, first.calls)
	assert.Empty(t, second.calls, "policies after the denial are never consulted")
}

func TestWithRelatedCopiesContext(t *testing.T) {
	rc := &RequestContext{RequestID: "rid", Action: ActionCreate}
	related := testPublisher{ID: 1}

	cp := rc.WithRelated(testPublisher{}, &related)

	assert.Equal(t, "rid", cp.RequestID)
	assert.Equal(t, &related, cp.RelatedObject)
	assert.Nil(t, rc.RelatedObject, "the original context stays untouched")
}

func TestActionObjectScoped(t *testing.T) {
	assert.False(t, ActionCreate.ObjectScoped())
	assert.False(t, ActionList.ObjectScoped())
	assert.True(t, ActionGetOne.ObjectScoped())
	assert.True(t, ActionUpdate.ObjectScoped())
	assert.True(t, ActionPartialUpdate.ObjectScoped())
	assert.True(t, ActionDelete.ObjectScoped())
}

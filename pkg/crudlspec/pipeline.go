package crudlspec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/bitechdev/CrudlSpec/pkg/common"
	"github.com/bitechdev/CrudlSpec/pkg/logger"
	"github.com/bitechdev/CrudlSpec/pkg/reflection"
)

// pendingRelation is a relation field whose referenced ids still need
// existence and permission checks before they are applied.
type pendingRelation struct {
	field schemaField
	ids   []interface{}
}

// authorize runs the authentication and coarse permission stages shared by
// every pipeline.
func (c *Controller) authorize(rc *RequestContext) *apiError {
	if !c.evaluator.IsAuthenticated(rc) {
		return c.mapper.Unauthorized(rc.RequestID)
	}
	if !c.evaluator.HasPermission(rc) {
		return c.mapper.Forbidden(rc.RequestID)
	}
	return nil
}

// writeFailure maps a transaction-closure error to a response. Terminal
// pipeline outcomes travel as *apiError; anything else is an unclassified
// fatal error.
func (c *Controller) writeFailure(w common.ResponseWriter, rc *RequestContext, err error) int {
	var aerr *apiError
	if errors.As(err, &aerr) {
		writeError(w, aerr)
		return aerr.status
	}
	logger.Error("Pipeline %s on %s failed: %v", rc.Action, c.name, err)
	aerr = c.mapper.Internal(rc.RequestID, err)
	writeError(w, aerr)
	return aerr.status
}

func (c *Controller) respond(w common.ResponseWriter, status int, body interface{}) int {
	w.SetHeader("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := w.WriteJSON(body); err != nil {
			logger.Warn("Failed to write response: %v", err)
		}
	}
	return status
}

// runCreate implements the objectless create pipeline: build the instance
// from scalar and to-one payload fields, check object permission on the
// unsaved instance, validate, resolve relations and persist once, all inside
// one transaction.
func (c *Controller) runCreate(w common.ResponseWriter, rc *RequestContext) int {
	if aerr := c.authorize(rc); aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	payload, aerr := c.parsePayload(rc, c.createSchema)
	if aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	instance := newInstance(c.cfg.Model)

	err := c.db.RunInTransaction(rc.Context, func(tx common.Database) error {
		rc.Tx = tx

		preHook(c.hooks, rc)

		toOne, toMany, aerr := c.applyFields(rc, instance, c.createSchema, payload)
		if aerr != nil {
			return aerr
		}
		rc.Object = instance

		if !c.evaluator.HasObjectPermission(rc) {
			return c.mapper.NotFound(rc.RequestID)
		}

		if aerr := c.validateInstance(rc, instance); aerr != nil {
			return aerr
		}
		if aerr := c.checkToOneRelations(rc, tx, toOne); aerr != nil {
			return aerr
		}

		if _, err := tx.NewInsert().Model(instance).Exec(rc.Context); err != nil {
			if isIntegrityViolation(err) {
				return c.mapper.Conflict(rc.RequestID, err)
			}
			return err
		}

		if aerr := c.resolveToManyRelations(rc, tx, instance, toMany); aerr != nil {
			return aerr
		}
		if aerr := c.validateInstance(rc, instance); aerr != nil {
			return aerr
		}

		postHook(c.hooks, rc)
		return nil
	})
	if err != nil {
		return c.writeFailure(w, rc, err)
	}

	return c.respond(w, 201, c.createResponseSchema.Dump(instance))
}

// runGetOne is the read-only object-scoped pipeline.
func (c *Controller) runGetOne(w common.ResponseWriter, rc *RequestContext) int {
	if aerr := c.authorize(rc); aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	instance, aerr := c.locateObject(rc, c.db, c.getOneSchema)
	if aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}
	rc.Object = instance

	if !c.evaluator.HasObjectPermission(rc) {
		aerr := c.mapper.NotFound(rc.RequestID)
		writeError(w, aerr)
		return aerr.status
	}

	return c.respond(w, 200, c.getOneSchema.Dump(instance))
}

// runUpdate serves both update and partial_update; they differ only in the
// schema (field optionality), never in pipeline shape.
func (c *Controller) runUpdate(w common.ResponseWriter, rc *RequestContext, schema *Schema) int {
	if aerr := c.authorize(rc); aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	payload, aerr := c.parsePayload(rc, schema)
	if aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	respSchema := c.getOneSchema
	if respSchema == nil {
		respSchema = schema
	}

	var instance interface{}

	err := c.db.RunInTransaction(rc.Context, func(tx common.Database) error {
		rc.Tx = tx

		var aerr *apiError
		instance, aerr = c.locateObject(rc, tx, schema)
		if aerr != nil {
			return aerr
		}
		rc.Object = instance

		if !c.evaluator.HasObjectPermission(rc) {
			return c.mapper.NotFound(rc.RequestID)
		}

		preHook(c.hooks, rc)

		toOne, toMany, aerr := c.applyFields(rc, instance, schema, payload)
		if aerr != nil {
			return aerr
		}

		if aerr := c.validateInstance(rc, instance); aerr != nil {
			return aerr
		}
		if aerr := c.checkToOneRelations(rc, tx, toOne); aerr != nil {
			return aerr
		}

		if aerr := c.persistChanges(rc, tx, instance, schema, payload); aerr != nil {
			return aerr
		}

		if aerr := c.resolveToManyRelations(rc, tx, instance, toMany); aerr != nil {
			return aerr
		}
		if aerr := c.validateInstance(rc, instance); aerr != nil {
			return aerr
		}

		postHook(c.hooks, rc)

		// The instance was loaded with the update schema's preloads; nested
		// selections in the response schema reflect the new foreign keys only
		// after a re-fetch.
		if len(respSchema.PreloadRelations()) > 0 {
			refreshed, aerr := c.locateObject(rc, tx, respSchema)
			if aerr != nil {
				return aerr
			}
			instance = refreshed
			rc.Object = instance
		}
		return nil
	})
	if err != nil {
		return c.writeFailure(w, rc, err)
	}

	return c.respond(w, 200, respSchema.Dump(instance))
}

// runDelete removes the located row between the pre and post delete hooks.
func (c *Controller) runDelete(w common.ResponseWriter, rc *RequestContext) int {
	if aerr := c.authorize(rc); aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	err := c.db.RunInTransaction(rc.Context, func(tx common.Database) error {
		rc.Tx = tx

		instance, aerr := c.locateObject(rc, tx, nil)
		if aerr != nil {
			return aerr
		}
		rc.Object = instance

		if !c.evaluator.HasObjectPermission(rc) {
			return c.mapper.NotFound(rc.RequestID)
		}

		preHook(c.hooks, rc)

		id, _ := c.pathID(rc)
		res, err := tx.NewDelete().Model(newInstance(c.cfg.Model)).
			Where(c.pkName+" = ?", id).Exec(rc.Context)
		if err != nil {
			if isIntegrityViolation(err) {
				return c.mapper.Conflict(rc.RequestID, err)
			}
			return err
		}
		if res.RowsAffected() == 0 {
			return c.mapper.NotFound(rc.RequestID)
		}

		postHook(c.hooks, rc)
		return nil
	})
	if err != nil {
		return c.writeFailure(w, rc, err)
	}

	w.WriteHeader(204)
	return 204
}

// runList is the objectless read pipeline: filtered query, pre-pagination
// count in the x-total-count header, eager loading for nested selections.
func (c *Controller) runList(w common.ResponseWriter, rc *RequestContext) int {
	if aerr := c.authorize(rc); aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	limit, offset, aerr := c.pagination(rc)
	if aerr != nil {
		writeError(w, aerr)
		return aerr.status
	}

	base := c.filters.BaseFilter(rc)
	opFilter := c.filters.FilterForList(rc)

	countQ := c.db.NewSelect().Model(newInstance(c.cfg.Model))
	countQ = base.apply(opFilter.apply(countQ))
	total, err := countQ.Count(rc.Context)
	if err != nil {
		return c.writeFailure(w, rc, err)
	}

	modelType := reflect.TypeOf(newInstance(c.cfg.Model)).Elem()
	slicePtr := reflect.New(reflect.SliceOf(modelType))

	q := c.db.NewSelect().Model(newInstance(c.cfg.Model))
	q = base.apply(opFilter.apply(q))
	for _, rel := range c.listSchema.PreloadRelations() {
		q = q.Preload(rel)
	}
	q = q.Order(c.pkName)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(rc.Context, slicePtr.Interface()); err != nil {
		return c.writeFailure(w, rc, err)
	}

	rows := slicePtr.Elem()
	result := make([]map[string]interface{}, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		result = append(result, c.listSchema.Dump(rows.Index(i).Addr().Interface()))
	}

	w.SetHeader("x-total-count", strconv.Itoa(total))
	return c.respond(w, 200, result)
}

// pagination reads limit/offset query parameters, bounded by the config.
func (c *Controller) pagination(rc *RequestContext) (limit, offset int, aerr *apiError) {
	maxLimit := c.cfg.MaxLimit
	if maxLimit == 0 {
		maxLimit = 1000
	}
	limit = c.cfg.DefaultLimit
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}

	verr := &ValidationError{}
	if raw := rc.Request.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Fields = append(verr.Fields, ValidationFieldError{
				Loc: []string{"query", "limit"}, Msg: "Invalid limit", Type: "type_error",
			})
		} else {
			// The default applies only when the parameter is absent; a
			// requested limit is honored up to the hard maximum.
			limit = n
			if limit > maxLimit {
				limit = maxLimit
			}
		}
	}
	if raw := rc.Request.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Fields = append(verr.Fields, ValidationFieldError{
				Loc: []string{"query", "offset"}, Msg: "Invalid offset", Type: "type_error",
			})
		} else {
			offset = n
		}
	}
	if verr.HasErrors() {
		return 0, 0, c.mapper.Unprocessable(rc.RequestID, verr)
	}
	return limit, offset, nil
}

// locateObject runs the shared object-lookup stage: primary key match
// combined with the base filter AND the operation-specific filter. schema, if
// given, contributes eager-loading hints for relation fields.
func (c *Controller) locateObject(rc *RequestContext, db common.Database, schema *Schema) (interface{}, *apiError) {
	id, ok := c.pathID(rc)
	if !ok {
		return nil, c.mapper.NotFound(rc.RequestID)
	}

	base := c.filters.BaseFilter(rc)
	opFilter := operationFilter(c.filters, rc)

	existsQ := db.NewSelect().Model(newInstance(c.cfg.Model)).Where(c.pkName+" = ?", id)
	existsQ = base.apply(opFilter.apply(existsQ))
	exists, err := existsQ.Exists(rc.Context)
	if err != nil {
		logger.Error("Lookup on %s failed: %v", c.name, err)
		return nil, c.mapper.Internal(rc.RequestID, err)
	}
	if !exists {
		return nil, c.mapper.NotFound(rc.RequestID)
	}

	instance := newInstance(c.cfg.Model)
	q := db.NewSelect().Model(instance).Where(c.pkName+" = ?", id)
	q = base.apply(opFilter.apply(q))
	if schema != nil {
		for _, rel := range schema.PreloadRelations() {
			q = q.Preload(rel)
		}
	}
	if err := q.ScanModel(rc.Context); err != nil {
		logger.Error("Fetch on %s failed: %v", c.name, err)
		return nil, c.mapper.Internal(rc.RequestID, err)
	}

	return instance, nil
}

// applyFields classifies and applies payload fields to the instance: scalars
// and to-one foreign keys are assigned immediately, while relation checks and
// to-many replacements are returned for the later pipeline stages.
func (c *Controller) applyFields(rc *RequestContext, instance interface{}, schema *Schema, payload map[string]interface{}) (toOne, toMany []pendingRelation, aerr *apiError) {
	for _, f := range schema.fields {
		value, present := payload[f.name]
		if !present {
			continue
		}

		switch f.desc.Category {
		case reflection.FieldScalar:
			if f.primaryKey {
				continue
			}
			if !reflection.IsColumnWritable(c.cfg.Model, f.desc.StorageAttr) {
				continue
			}
			if err := reflection.SetFieldValue(instance, f.desc.StructField, value); err != nil {
				return nil, nil, c.mapper.Internal(rc.RequestID, err)
			}

		case reflection.FieldToOne:
			if err := reflection.SetFieldValue(instance, f.desc.FKStructField, value); err != nil {
				return nil, nil, c.mapper.Internal(rc.RequestID, err)
			}
			if value != nil {
				toOne = append(toOne, pendingRelation{field: f, ids: []interface{}{value}})
			}

		case reflection.FieldToManyOrReverse:
			ids, _ := value.([]interface{})
			toMany = append(toMany, pendingRelation{field: f, ids: ids})
		}
	}
	return toOne, toMany, nil
}

// checkToOneRelations verifies existence and related-object permission for
// every non-null to-one reference before anything is committed.
func (c *Controller) checkToOneRelations(rc *RequestContext, tx common.Database, pending []pendingRelation) *apiError {
	for _, p := range pending {
		related, err := reflection.RelatedModel(c.cfg.Model, p.field.name)
		if err != nil {
			return c.mapper.Internal(rc.RequestID, err)
		}
		for _, id := range p.ids {
			if _, aerr := c.fetchRelated(rc, tx, related, id); aerr != nil {
				return aerr
			}
		}
	}
	return nil
}

// resolveToManyRelations replaces the full member set of every to-many or
// reverse relation with the referenced ids. Every id is checked for existence
// and related-object permission before the first mutation, so a denial never
// leaves a half-replaced member set behind.
func (c *Controller) resolveToManyRelations(rc *RequestContext, tx common.Database, instance interface{}, pending []pendingRelation) *apiError {
	for _, p := range pending {
		related, err := reflection.RelatedModel(c.cfg.Model, p.field.name)
		if err != nil {
			return c.mapper.Internal(rc.RequestID, err)
		}

		relType := reflect.TypeOf(related)
		members := reflect.MakeSlice(reflect.SliceOf(relType), 0, len(p.ids))
		for _, id := range p.ids {
			member, aerr := c.fetchRelated(rc, tx, related, id)
			if aerr != nil {
				return aerr
			}
			members = reflect.Append(members, reflect.ValueOf(member).Elem())
		}

		if err := tx.ReplaceRelation(rc.Context, instance, p.field.desc.StructField, members.Interface()); err != nil {
			if isIntegrityViolation(err) {
				return c.mapper.Conflict(rc.RequestID, err)
			}
			return c.mapper.Internal(rc.RequestID, err)
		}

		if err := reflection.SetFieldValue(instance, p.field.desc.StructField, members.Interface()); err != nil {
			return c.mapper.Internal(rc.RequestID, err)
		}
	}
	return nil
}

// fetchRelated loads one referenced row and runs the related-object
// permission check on a context copy. Missing rows and denials both read as
// not-found so forbidden references stay indistinguishable from absent ones.
func (c *Controller) fetchRelated(rc *RequestContext, tx common.Database, relatedModel interface{}, id interface{}) (interface{}, *apiError) {
	relPK := reflection.GetPrimaryKeyName(relatedModel)
	if relPK == "" {
		return nil, c.mapper.Internal(rc.RequestID, fmt.Errorf("related model %T has no primary key", relatedModel))
	}

	exists, err := tx.NewSelect().Model(newInstance(relatedModel)).
		Where(relPK+" = ?", id).Exists(rc.Context)
	if err != nil {
		return nil, c.mapper.Internal(rc.RequestID, err)
	}
	if !exists {
		return nil, c.mapper.NotFound(rc.RequestID)
	}

	relatedInstance := newInstance(relatedModel)
	if err := tx.NewSelect().Model(relatedInstance).
		Where(relPK+" = ?", id).ScanModel(rc.Context); err != nil {
		return nil, c.mapper.Internal(rc.RequestID, err)
	}

	if !c.evaluator.HasRelatedObjectPermission(rc.WithRelated(relatedModel, relatedInstance)) {
		return nil, c.mapper.NotFound(rc.RequestID)
	}

	return relatedInstance, nil
}

// persistChanges writes the scalar and foreign-key columns touched by the
// payload. Only payload-present fields are written, which is what gives
// partial updates their leave-untouched semantics.
func (c *Controller) persistChanges(rc *RequestContext, tx common.Database, instance interface{}, schema *Schema, payload map[string]interface{}) *apiError {
	values := map[string]interface{}{}
	for _, f := range schema.fields {
		if _, present := payload[f.name]; !present {
			continue
		}
		switch f.desc.Category {
		case reflection.FieldScalar:
			if f.primaryKey || !reflection.IsColumnWritable(c.cfg.Model, f.desc.StorageAttr) {
				continue
			}
			values[f.desc.StorageAttr] = reflection.FieldValue(instance, f.desc.StructField)
		case reflection.FieldToOne:
			values[f.desc.StorageAttr] = reflection.FieldValue(instance, f.desc.FKStructField)
		}
	}
	if len(values) == 0 {
		return nil
	}

	id, _ := c.pathID(rc)
	if _, err := tx.NewUpdate().Model(instance).SetMap(values).
		Where(c.pkName+" = ?", id).Exec(rc.Context); err != nil {
		if isIntegrityViolation(err) {
			return c.mapper.Conflict(rc.RequestID, err)
		}
		return c.mapper.Internal(rc.RequestID, err)
	}
	return nil
}

// validateInstance runs the model's own validation when it implements
// common.Validator. Failures here are conflicts with business rules, not
// malformed input, hence 409 rather than 422.
func (c *Controller) validateInstance(rc *RequestContext, instance interface{}) *apiError {
	v, ok := instance.(common.Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return c.mapper.Conflict(rc.RequestID, err)
	}
	return nil
}

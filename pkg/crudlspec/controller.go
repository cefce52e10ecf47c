package crudlspec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bitechdev/CrudlSpec/pkg/common"
	"github.com/bitechdev/CrudlSpec/pkg/logger"
	"github.com/bitechdev/CrudlSpec/pkg/metrics"
	"github.com/bitechdev/CrudlSpec/pkg/modelregistry"
	"github.com/bitechdev/CrudlSpec/pkg/reflection"
)

// Operation is one generated HTTP operation, ready for route registration.
type Operation struct {
	Action      Action
	Method      string
	Path        string
	OperationID string
	Handler     common.HTTPHandlerFunc
}

// Controller holds the assembled pipelines for one model. It is immutable
// after Assemble and safe for concurrent use.
type Controller struct {
	db       common.Database
	cfg      *Config
	name     string
	basePath string
	pkName   string

	evaluator *PermissionEvaluator
	filters   FilterSource
	hooks     Hooks
	mapper    ErrorMapper

	createSchema         *Schema
	createResponseSchema *Schema
	getOneSchema         *Schema
	updateSchema         *Schema
	patchSchema          *Schema
	listSchema           *Schema

	operations []Operation
}

// Assemble builds a controller from a config: it compiles the per-operation
// schemas, derives paths and operation ids for anything left unset, and binds
// the permission evaluator, filter source and hooks into the five pipelines.
// Operations whose schema is absent are skipped; delete is generated only
// when explicitly allowed.
func Assemble(db common.Database, cfg *Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		db:        db,
		cfg:       cfg,
		name:      cfg.modelName(),
		basePath:  cfg.basePath(),
		evaluator: NewPermissionEvaluator(cfg.Policies...),
		filters:   cfg.Filters,
		hooks:     cfg.Hooks,
		mapper:    ErrorMapper{Debug: cfg.Debug},
	}
	if c.filters == nil {
		c.filters = DefaultFilters{}
	}
	if c.hooks == nil {
		c.hooks = NoopHooks{}
	}

	c.pkName = reflection.GetPrimaryKeyName(cfg.Model)
	if c.pkName == "" {
		return nil, fmt.Errorf("model %s has no detectable primary key", c.name)
	}

	if err := c.buildSchemas(); err != nil {
		return nil, err
	}
	c.buildOperations()

	// Make the model discoverable by name for tooling that walks the registry
	if err := modelregistry.RegisterModel(cfg.Model, strings.ToLower(c.name)); err != nil {
		logger.Debug("Model %s already registered: %v", c.name, err)
	}

	return c, nil
}

func (c *Controller) buildSchemas() error {
	var err error

	if c.cfg.CreateFields != nil {
		if c.createSchema, err = BuildSchema(c.cfg.Model, c.cfg.CreateFields, c.name+"Create"); err != nil {
			return err
		}
		respSel := c.cfg.CreateResponseFields
		if respSel == nil {
			respSel = FieldSelection{c.pkName: Infer}
		}
		if c.createResponseSchema, err = BuildSchema(c.cfg.Model, respSel, c.name+"CreateResponse"); err != nil {
			return err
		}
	}

	if c.cfg.GetOneFields != nil {
		if c.getOneSchema, err = BuildSchema(c.cfg.Model, c.cfg.GetOneFields, c.name+"GetOne"); err != nil {
			return err
		}
	}

	if c.cfg.UpdateFields != nil {
		if c.updateSchema, err = BuildSchema(c.cfg.Model, c.cfg.UpdateFields, c.name+"Update"); err != nil {
			return err
		}
	}

	if c.cfg.PartialUpdateFields != nil {
		patchBase, err := BuildSchema(c.cfg.Model, c.cfg.PartialUpdateFields, c.name+"PartialUpdate")
		if err != nil {
			return err
		}
		c.patchSchema = patchBase.Patch()
	} else if c.updateSchema != nil {
		c.patchSchema = c.updateSchema.Patch()
	}

	if c.cfg.ListFields != nil {
		if c.listSchema, err = BuildSchema(c.cfg.Model, c.cfg.ListFields, c.name+"List"); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) buildOperations() {
	itemPath := c.basePath + "/{id}"

	if c.createSchema != nil {
		c.addOperation(ActionCreate, "POST", c.basePath)
	}
	if c.listSchema != nil {
		c.addOperation(ActionList, "GET", c.basePath)
	}
	if c.getOneSchema != nil {
		c.addOperation(ActionGetOne, "GET", itemPath)
	}
	if c.updateSchema != nil {
		c.addOperation(ActionUpdate, "PUT", itemPath)
	}
	if c.patchSchema != nil {
		c.addOperation(ActionPartialUpdate, "PATCH", itemPath)
	}
	if c.cfg.DeleteAllowed {
		c.addOperation(ActionDelete, "DELETE", itemPath)
	}
}

func (c *Controller) addOperation(action Action, method, path string) {
	c.operations = append(c.operations, Operation{
		Action:      action,
		Method:      method,
		Path:        path,
		OperationID: fmt.Sprintf("%s_%s", c.name, action),
		Handler:     c.handle(action),
	})
}

// Operations returns the generated operation descriptors in registration order.
func (c *Controller) Operations() []Operation {
	return c.operations
}

// BasePath returns the derived collection path.
func (c *Controller) BasePath() string {
	return c.basePath
}

// Database returns the database the controller was assembled with.
func (c *Controller) Database() common.Database {
	return c.db
}

// RegisterRoutes registers every generated operation with a router.
func (c *Controller) RegisterRoutes(router common.Router) {
	for _, op := range c.operations {
		router.HandleFunc(op.Path, op.Handler).Methods(op.Method)
		logger.Info("Registered %s %s (%s)", op.Method, op.Path, op.OperationID)
	}
}

// handle wraps one pipeline run with request-context setup, panic recovery
// and metrics.
func (c *Controller) handle(action Action) common.HTTPHandlerFunc {
	return func(w common.ResponseWriter, r common.Request) {
		start := time.Now()

		rc := &RequestContext{
			Context:    r.UnderlyingRequest().Context(),
			Request:    r,
			Action:     action,
			RequestID:  requestID(r),
			PathParams: map[string]string{"id": r.PathParam("id")},
			Model:      c.cfg.Model,
			Tx:         c.db,
		}

		var status int
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					_ = logger.HandlePanic(fmt.Sprintf("%s %s", c.name, action), rec)
					status = 500
					writeError(w, c.mapper.Internal(rc.RequestID, fmt.Errorf("%v", rec)))
				}
			}()
			status = c.dispatch(action, w, rc)
		}()

		metrics.GetProvider().RecordOperation(c.name, string(action), strconv.Itoa(status), time.Since(start))
	}
}

func (c *Controller) dispatch(action Action, w common.ResponseWriter, rc *RequestContext) int {
	switch action {
	case ActionCreate:
		return c.runCreate(w, rc)
	case ActionGetOne:
		return c.runGetOne(w, rc)
	case ActionUpdate:
		return c.runUpdate(w, rc, c.updateSchema)
	case ActionPartialUpdate:
		return c.runUpdate(w, rc, c.patchSchema)
	case ActionDelete:
		return c.runDelete(w, rc)
	case ActionList:
		return c.runList(w, rc)
	}
	return 500
}

// parsePayload reads and schema-validates the request body. Failures map to
// 422 before any transaction is entered.
func (c *Controller) parsePayload(rc *RequestContext, schema *Schema) (map[string]interface{}, *apiError) {
	body, err := rc.Request.Body()
	if err != nil {
		verr := &ValidationError{}
		verr.Fields = append(verr.Fields, ValidationFieldError{
			Loc: []string{"body", "payload"}, Msg: "Unable to read request body", Type: "body_error",
		})
		return nil, c.mapper.Unprocessable(rc.RequestID, verr)
	}

	raw := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			verr := &ValidationError{}
			verr.Fields = append(verr.Fields, ValidationFieldError{
				Loc: []string{"body", "payload"}, Msg: "Invalid JSON payload", Type: "json_invalid",
			})
			return nil, c.mapper.Unprocessable(rc.RequestID, verr)
		}
	}

	parsed, verr := schema.Parse(raw)
	if verr != nil {
		return nil, c.mapper.Unprocessable(rc.RequestID, verr)
	}
	rc.Payload = parsed
	return parsed, nil
}

// pathID converts the {id} path parameter to the primary key's Go type.
// Unparseable ids cannot address any row and read as not-found.
func (c *Controller) pathID(rc *RequestContext) (interface{}, bool) {
	raw := rc.PathParams["id"]
	if raw == "" {
		return nil, false
	}
	pkField, ok := reflection.FindStructField(c.cfg.Model, c.pkName)
	if !ok {
		return raw, true
	}
	kind := pkField.Type.Kind()
	if reflection.IsNumericType(kind) {
		converted, err := reflection.ConvertToNumericType(raw, kind)
		if err != nil {
			return nil, false
		}
		return converted, true
	}
	return raw, true
}

func newInstance(model interface{}) interface{} {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

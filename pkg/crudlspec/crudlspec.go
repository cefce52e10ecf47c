// Package crudlspec generates REST CRUD(L) endpoints for ORM-backed models.
//
// Given a model struct and a declarative per-operation field selection, the
// package assembles up to five conventional operations (create, get-one,
// update, partial-update, delete, list) and registers them with a router.
// Each request runs through a fixed pipeline: authentication, coarse
// authorization, pre-hook, object lookup or build, object-level
// authorization, mutation with validation and relation resolution, post-hook,
// and response. Write pipelines execute inside a single transaction, so every
// terminal failure rolls back all prior mutations of that request.
//
// # Key Features
//
//   - Declarative field selections, with nested selections for relations
//   - Database-agnostic: Works with both GORM and Bun ORM through adapters
//   - Router-agnostic: Supports multiple HTTP routers (Mux, BunRouter, etc.)
//   - Composable permission policies ANDed per capability check
//   - Per-operation queryset filters combined with a base filter
//   - Deterministic error mapping onto a fixed JSON payload shape
//
// # Usage Example
//
//	controller, err := crudlspec.AssembleWithGORM(db, &crudlspec.Config{
//		Model: Publisher{},
//		CreateFields: crudlspec.FieldSelection{
//			"name":    crudlspec.Infer,
//			"address": crudlspec.Infer,
//		},
//		GetOneFields:  crudlspec.AllFields(Publisher{}),
//		UpdateFields:  crudlspec.FieldSelection{"name": crudlspec.Infer, "address": crudlspec.Infer},
//		ListFields:    crudlspec.AllFields(Publisher{}),
//		DeleteAllowed: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	muxRouter := mux.NewRouter()
//	crudlspec.SetupMuxRoutes(muxRouter, nil, controller)
package crudlspec

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"github.com/uptrace/bunrouter"
	"gorm.io/gorm"

	"github.com/bitechdev/CrudlSpec/pkg/common"
	"github.com/bitechdev/CrudlSpec/pkg/common/adapters/database"
	"github.com/bitechdev/CrudlSpec/pkg/common/adapters/router"
)

// AssembleWithGORM assembles a controller on top of a GORM connection.
func AssembleWithGORM(db *gorm.DB, cfg *Config) (*Controller, error) {
	return Assemble(database.NewGormAdapter(db), cfg)
}

// AssembleWithBun assembles a controller on top of a Bun connection.
func AssembleWithBun(db *bun.DB, cfg *Config) (*Controller, error) {
	return Assemble(database.NewBunAdapter(db), cfg)
}

// NewStandardMuxRouter creates a router with standard Mux HTTP handlers
func NewStandardMuxRouter() *router.StandardMuxAdapter {
	return router.NewStandardMuxAdapter()
}

// NewStandardBunRouter creates a router with standard BunRouter handlers
func NewStandardBunRouter() *router.StandardBunRouterAdapter {
	return router.NewStandardBunRouterAdapter()
}

// MiddlewareFunc is a function that wraps an http.Handler with additional functionality
type MiddlewareFunc func(http.Handler) http.Handler

// SetupMuxRoutes registers every operation of the given controllers with a
// Mux router. authMiddleware is optional; if provided, all generated routes
// are wrapped with it.
func SetupMuxRoutes(muxRouter *mux.Router, authMiddleware MiddlewareFunc, controllers ...*Controller) {
	for _, controller := range controllers {
		for _, op := range controller.Operations() {
			op := op
			var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reqAdapter := router.NewHTTPRequestWithVars(r, mux.Vars(r))
				respAdapter := router.NewHTTPResponseWriter(w)
				op.Handler(respAdapter, reqAdapter)
			})
			if authMiddleware != nil {
				handler = authMiddleware(handler)
			}
			muxRouter.Handle(op.Path, handler).Methods(op.Method)
		}
	}
}

// SetupBunRouterRoutes registers every operation of the given controllers
// with a BunRouter adapter. Mux-style "{id}" placeholders are translated to
// BunRouter's ":id" syntax.
func SetupBunRouterRoutes(routerAdapter *router.StandardBunRouterAdapter, controllers ...*Controller) {
	r := routerAdapter.GetBunRouter()

	for _, controller := range controllers {
		for _, op := range controller.Operations() {
			op := op
			path := strings.NewReplacer("{id}", ":id").Replace(op.Path)
			r.Handle(op.Method, path, func(w http.ResponseWriter, req bunrouter.Request) error {
				reqAdapter := router.NewBunRouterRequest(req)
				respAdapter := router.NewHTTPResponseWriter(w)
				op.Handler(respAdapter, reqAdapter)
				return nil
			})
		}
	}
}

// RegisterAll registers multiple controllers with any common.Router.
func RegisterAll(r common.Router, controllers ...*Controller) {
	for _, controller := range controllers {
		controller.RegisterRoutes(r)
	}
}

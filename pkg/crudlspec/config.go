package crudlspec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitechdev/CrudlSpec/pkg/common"
	"github.com/bitechdev/CrudlSpec/pkg/reflection"
)

// Config declares one CRUD(L) controller for a model. It is read once by
// Assemble; after that the controller never consults it again, so a Config
// must be fully populated before assembly and never mutated afterwards.
type Config struct {
	// Model is a zero-value prototype of the target struct, e.g. Publisher{}.
	Model interface{}

	// Name overrides the model name used for path and operation-id
	// derivation. Defaults to the struct type name.
	Name string

	// BasePath overrides the derived collection path. Defaults to the
	// model's TableName() when implemented, else the lowercased model name
	// with an "s" suffix.
	BasePath string

	// Field selections per operation. A nil selection skips the operation:
	// no CreateFields means no POST endpoint, no GetOneFields no GET-by-id,
	// and so on. PartialUpdateFields defaults to UpdateFields with every
	// field optional.
	CreateFields        FieldSelection
	GetOneFields        FieldSelection
	UpdateFields        FieldSelection
	PartialUpdateFields FieldSelection
	ListFields          FieldSelection

	// CreateResponseFields selects what a successful create returns.
	// Defaults to just the primary key.
	DeleteAllowed        bool
	CreateResponseFields FieldSelection

	// Policies are evaluated in order; every check is an AND across them.
	Policies []Policy

	// Filters scope the queryset per operation. Defaults to match-all.
	Filters FilterSource

	// Hooks receive the pre/post callbacks. Defaults to no-ops.
	Hooks Hooks

	// DefaultLimit applies when the limit query parameter is absent;
	// MaxLimit caps any requested limit. Zero means no default limit
	// and a cap of 1000 rows.
	DefaultLimit int
	MaxLimit     int

	// Debug exposes validation and constraint detail on 409/500 responses.
	Debug bool
}

// modelName resolves the name used for operation ids and path derivation.
func (c *Config) modelName() string {
	if c.Name != "" {
		return c.Name
	}
	t := reflect.TypeOf(c.Model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// basePath resolves the collection path: explicit override, the model's own
// table name, or the lowercased model name pluralised with "s".
func (c *Config) basePath() string {
	if c.BasePath != "" {
		if strings.HasPrefix(c.BasePath, "/") {
			return c.BasePath
		}
		return "/" + c.BasePath
	}
	if tn, ok := c.Model.(common.TableNameProvider); ok {
		return "/" + reflection.ExtractTableNameOnly(tn.TableName())
	}
	return "/" + strings.ToLower(c.modelName()) + "s"
}

// validate checks the parts of a Config that cannot be defaulted.
func (c *Config) validate() error {
	if c.Model == nil {
		return fmt.Errorf("config requires a model")
	}
	t := reflect.TypeOf(c.Model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct, got %s", reflect.TypeOf(c.Model))
	}
	if c.MaxLimit < 0 || c.DefaultLimit < 0 {
		return fmt.Errorf("pagination limits must not be negative")
	}
	return nil
}

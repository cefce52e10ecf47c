package crudlspec

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/bitechdev/CrudlSpec/pkg/reflection"
)

// inferMarker is the sentinel used in a FieldSelection to request default
// schema generation for a field.
type inferMarker struct{}

// Infer marks a FieldSelection entry for default schema generation.
var Infer = inferMarker{}

// FieldSelection declares which model fields an operation exposes. Values are
// either Infer or a nested FieldSelection selecting sub-fields of the related
// model. Selections are immutable once a schema has been built from them.
type FieldSelection map[string]interface{}

// AllFields builds a selection of every non-relation column of the model.
func AllFields(model interface{}) FieldSelection {
	sel := FieldSelection{}
	for _, col := range reflection.GetModelColumns(model) {
		sel[col] = Infer
	}
	return sel
}

// schemaField is one compiled entry of a Schema.
type schemaField struct {
	name       string
	desc       reflection.FieldDescriptor
	kind       reflect.Kind
	isTime     bool
	required   bool
	primaryKey bool
	nested     *Schema
	nestedList bool
}

// Schema is a compiled, model-bound field selection. It parses incoming
// payloads into validated field maps and serializes instances back to plain
// maps. Schemas are read-only after build and safe for concurrent use.
type Schema struct {
	name   string
	model  interface{}
	fields []schemaField
	patch  bool
}

// BuildSchema compiles a field selection against a model. Fields are
// classified through the field classifier: scalar entries translate directly,
// relation entries with a nested selection recurse into the related model
// (list-shaped for to-many/reverse relations).
func BuildSchema(model interface{}, sel FieldSelection, name string) (*Schema, error) {
	s := &Schema{name: name, model: model}

	names := make([]string, 0, len(sel))
	for fieldName := range sel {
		names = append(names, fieldName)
	}
	sort.Strings(names)

	pkName := reflection.GetPrimaryKeyName(model)

	for _, fieldName := range names {
		desc, err := reflection.Classify(model, fieldName)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}

		sf := schemaField{
			name:       fieldName,
			desc:       desc,
			primaryKey: desc.StorageAttr == pkName,
		}

		structField, _ := reflection.FindStructField(model, fieldName)
		fieldType := structField.Type
		isPointer := fieldType.Kind() == reflect.Pointer
		for fieldType.Kind() == reflect.Pointer || fieldType.Kind() == reflect.Slice {
			fieldType = fieldType.Elem()
		}
		sf.kind = fieldType.Kind()
		sf.isTime = fieldType == reflect.TypeOf(time.Time{})

		switch v := sel[fieldName].(type) {
		case inferMarker:
			// default generation for this field
		case FieldSelection:
			if desc.Category == reflection.FieldScalar {
				return nil, fmt.Errorf("schema %s: nested selection on non-relation field %s", name, fieldName)
			}
			related, err := reflection.RelatedModel(model, fieldName)
			if err != nil {
				return nil, fmt.Errorf("schema %s: %w", name, err)
			}
			nested, err := BuildSchema(related, v, name+"."+fieldName)
			if err != nil {
				return nil, err
			}
			sf.nested = nested
			sf.nestedList = desc.Category == reflection.FieldToManyOrReverse
		default:
			return nil, fmt.Errorf("schema %s: field %s must map to Infer or a nested FieldSelection", name, fieldName)
		}

		switch desc.Category {
		case reflection.FieldScalar:
			sf.required = !sf.primaryKey && !isPointer && reflection.HasNotNullConstraint(structField)
		case reflection.FieldToOne:
			if fk, ok := reflection.FindStructField(model, desc.StorageAttr); ok {
				sf.required = fk.Type.Kind() != reflect.Pointer && reflection.HasNotNullConstraint(fk)
			}
		}

		s.fields = append(s.fields, sf)
	}

	return s, nil
}

// Name returns the schema's name.
func (s *Schema) Name() string { return s.name }

// Model returns the model prototype the schema is bound to.
func (s *Schema) Model() interface{} { return s.model }

// FieldNames returns the exposed field names in schema order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// PreloadRelations returns the Go field names of relation fields carrying a
// nested selection, used as eager-loading hints on read queries.
func (s *Schema) PreloadRelations() []string {
	var rels []string
	for _, f := range s.fields {
		if f.nested != nil {
			rels = append(rels, f.desc.StructField)
		}
	}
	return rels
}

// Patch derives the partial variant: every field optional, and only fields
// present in the input survive parsing.
func (s *Schema) Patch() *Schema {
	cp := *s
	cp.name = s.name + "Patch"
	cp.patch = true
	return &cp
}

// Parse validates a decoded JSON payload against the schema. It returns the
// subset of payload entries the schema exposes, or a ValidationError listing
// every offending field. Unknown payload keys are ignored.
func (s *Schema) Parse(raw map[string]interface{}) (map[string]interface{}, *ValidationError) {
	verr := &ValidationError{}
	out := make(map[string]interface{})

	for _, f := range s.fields {
		value, present := raw[f.name]
		if !present {
			if f.required && !s.patch {
				verr.AddFieldError(f.name, "Field required", "missing")
			}
			continue
		}

		if value == nil {
			if f.required {
				verr.AddFieldError(f.name, "Field may not be null", "null")
				continue
			}
			out[f.name] = nil
			continue
		}

		switch f.desc.Category {
		case reflection.FieldScalar:
			if !f.validScalarValue(value) {
				verr.AddFieldError(f.name, fmt.Sprintf("Invalid value for %s field", f.kind), "type_error")
				continue
			}
		case reflection.FieldToOne:
			if !validIdentifier(value) {
				verr.AddFieldError(f.name, "Expected a related object identifier", "type_error")
				continue
			}
		case reflection.FieldToManyOrReverse:
			ids, ok := value.([]interface{})
			if !ok {
				verr.AddFieldError(f.name, "Expected a list of related object identifiers", "type_error")
				continue
			}
			for _, id := range ids {
				if !validIdentifier(id) {
					verr.AddFieldError(f.name, "Expected a list of related object identifiers", "type_error")
					break
				}
			}
		}

		out[f.name] = value
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

// validScalarValue checks a decoded JSON value against the field's Go kind.
// Numeric strings are allowed for numeric columns; the pipeline converts them
// when applying the value.
func (f schemaField) validScalarValue(value interface{}) bool {
	if f.isTime {
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	}

	switch f.kind {
	case reflect.String:
		_, ok := value.(string)
		return ok
	case reflect.Bool:
		_, ok := value.(bool)
		return ok
	default:
		if reflection.IsNumericType(f.kind) {
			switch v := value.(type) {
			case float64, int, int64:
				return true
			case string:
				_, err := reflection.ConvertToNumericType(v, f.kind)
				return err == nil
			default:
				return false
			}
		}
	}
	return true
}

// validIdentifier accepts JSON numbers and strings as relation identifiers.
func validIdentifier(value interface{}) bool {
	switch value.(type) {
	case float64, int, int64, string:
		return true
	}
	return false
}

// Dump serializes an instance to a plain map. Relation fields with a nested
// selection recurse into the loaded related instances; relation fields
// selected with Infer emit the stored identifier(s) instead.
func (s *Schema) Dump(instance interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s.fields))

	for _, f := range s.fields {
		switch f.desc.Category {
		case reflection.FieldScalar:
			out[f.name] = reflection.FieldValue(instance, f.desc.StructField)

		case reflection.FieldToOne:
			if f.nested != nil {
				related := reflection.FieldValue(instance, f.desc.StructField)
				if related == nil || reflect.ValueOf(related).Kind() == reflect.Pointer && reflect.ValueOf(related).IsNil() {
					out[f.name] = nil
				} else {
					out[f.name] = f.nested.Dump(related)
				}
				continue
			}
			out[f.desc.StorageAttr] = reflection.FieldValue(instance, f.desc.FKStructField)

		case reflection.FieldToManyOrReverse:
			members := reflection.FieldValue(instance, f.desc.StructField)
			out[f.name] = s.dumpMembers(f, members)
		}
	}

	return out
}

func (s *Schema) dumpMembers(f schemaField, members interface{}) []interface{} {
	result := []interface{}{}
	if members == nil {
		return result
	}
	val := reflect.ValueOf(members)
	if val.Kind() != reflect.Slice {
		return result
	}
	for i := 0; i < val.Len(); i++ {
		member := val.Index(i).Interface()
		if f.nested != nil {
			result = append(result, f.nested.Dump(member))
		} else {
			result = append(result, reflection.GetPrimaryKeyValue(member))
		}
	}
	return result
}

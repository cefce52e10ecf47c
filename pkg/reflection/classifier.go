package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FieldCategory is the relation classification of one model field.
type FieldCategory string

const (
	// FieldScalar is a plain column-backed attribute.
	FieldScalar FieldCategory = "scalar"
	// FieldToOne is a forward single-valued relation (foreign key, forward
	// one-to-one). Its value is stored through the foreign key column.
	FieldToOne FieldCategory = "to_one"
	// FieldToManyOrReverse is a multi-valued or reverse relation
	// (many-to-many, reverse foreign key, reverse one-to-one).
	FieldToManyOrReverse FieldCategory = "to_many_or_reverse"
)

// FieldDescriptor is the classification result for one named field of a model.
//
// StorageAttr is the column the value is actually assigned through, e.g.
// "publisher_id" for a to-one field named "publisher". StructField and
// FKStructField carry the Go field names needed to set values via reflection.
type FieldDescriptor struct {
	Name          string
	Category      FieldCategory
	StorageAttr   string
	StructField   string
	FKStructField string
}

var (
	// ErrUnknownField is returned when a field name does not exist on the model.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotARelation is returned when a related model is requested for a scalar field.
	ErrNotARelation = errors.New("field is not a relation")
)

// Classify determines the relation category and storage attribute for one
// named field of a model. The result is a pure function of the model type and
// the field name.
func Classify(model any, fieldName string) (FieldDescriptor, error) {
	field, ok := FindStructField(model, fieldName)
	if !ok {
		return FieldDescriptor{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, modelTypeName(model), fieldName)
	}

	desc := FieldDescriptor{
		Name:        fieldName,
		StructField: field.Name,
	}

	if !isRelationField(field) {
		desc.Category = FieldScalar
		desc.StorageAttr = getColumnNameFromField(field)
		return desc, nil
	}

	if field.Type.Kind() == reflect.Slice {
		desc.Category = FieldToManyOrReverse
		desc.StorageAttr = fieldName
		return desc, nil
	}

	// Single-valued relation: forward (to-one) only when the foreign key
	// column lives on this model, otherwise it is a reverse one-to-one.
	if fkField, ok := localForeignKeyField(model, field); ok {
		desc.Category = FieldToOne
		desc.FKStructField = fkField.Name
		if strings.HasSuffix(fieldName, "_id") {
			desc.StorageAttr = fieldName
		} else {
			desc.StorageAttr = fieldName + "_id"
		}
		return desc, nil
	}

	desc.Category = FieldToManyOrReverse
	desc.StorageAttr = fieldName
	return desc, nil
}

// RelatedModel resolves the referenced model type for a relation field,
// returning a zero value of the related struct. Scalar fields yield
// ErrNotARelation.
func RelatedModel(model any, fieldName string) (any, error) {
	field, ok := FindStructField(model, fieldName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, modelTypeName(model), fieldName)
	}
	if !isRelationField(field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotARelation, modelTypeName(model), fieldName)
	}

	targetType := field.Type
	if targetType.Kind() == reflect.Slice {
		targetType = targetType.Elem()
	}
	if targetType.Kind() == reflect.Pointer {
		targetType = targetType.Elem()
	}
	if targetType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotARelation, modelTypeName(model), fieldName)
	}

	return reflect.New(targetType).Elem().Interface(), nil
}

// localForeignKeyField finds the foreign key field on the same model for a
// single-valued relation field. The gorm foreignKey tag names it explicitly;
// otherwise the conventional <Field>ID name is checked.
func localForeignKeyField(model any, relField reflect.StructField) (reflect.StructField, bool) {
	modelType := baseStructType(model)
	if modelType == nil {
		return reflect.StructField{}, false
	}

	bunTag := relField.Tag.Get("bun")
	if strings.Contains(bunTag, "rel:belongs-to") {
		if f, ok := modelType.FieldByName(relField.Name + "ID"); ok {
			return f, true
		}
		// bun join tag: join:owner_id=id names the local column
		if join := extractTagOption(bunTag, "join:"); join != "" {
			local := strings.SplitN(join, "=", 2)[0]
			return fieldByColumn(modelType, local)
		}
	}
	if strings.Contains(bunTag, "rel:has-one") || strings.Contains(bunTag, "rel:has-many") || strings.Contains(bunTag, "m2m:") {
		return reflect.StructField{}, false
	}

	gormTag := relField.Tag.Get("gorm")
	if fk := extractGormTagOption(gormTag, "foreignKey:"); fk != "" {
		if f, ok := modelType.FieldByName(fk); ok {
			return f, true
		}
		return reflect.StructField{}, false
	}

	return modelType.FieldByName(relField.Name + "ID")
}

// FindStructField locates a struct field by exposed name, matching the Go
// field name, the json tag, and the snake_case form, in that order.
func FindStructField(model any, fieldName string) (reflect.StructField, bool) {
	modelType := baseStructType(model)
	if modelType == nil {
		return reflect.StructField{}, false
	}
	return findFieldInType(modelType, fieldName)
}

func findFieldInType(typ reflect.Type, fieldName string) (reflect.StructField, bool) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)

		if f.Anonymous {
			fieldType := f.Type
			if fieldType.Kind() == reflect.Pointer {
				fieldType = fieldType.Elem()
			}
			if fieldType.Kind() == reflect.Struct {
				if found, ok := findFieldInType(fieldType, fieldName); ok {
					return found, true
				}
			}
			continue
		}

		if strings.EqualFold(f.Name, fieldName) {
			return f, true
		}

		jsonTag := f.Tag.Get("json")
		if jsonTag != "" && jsonTag != "-" {
			if strings.EqualFold(strings.Split(jsonTag, ",")[0], fieldName) {
				return f, true
			}
		}

		if ToSnakeCase(f.Name) == fieldName {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// FieldValue reads the value of a named Go struct field from an instance.
func FieldValue(instance any, structField string) any {
	val := reflect.ValueOf(instance)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	fv := val.FieldByName(structField)
	if !fv.IsValid() || !fv.CanInterface() {
		return nil
	}
	return fv.Interface()
}

// SetFieldValue assigns a decoded JSON value to a named Go struct field on a
// pointer-to-struct instance, converting between JSON number/string forms and
// the field's Go type.
func SetFieldValue(instance any, structField string, value any) error {
	val := reflect.ValueOf(instance)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return fmt.Errorf("instance must be a non-nil pointer to struct")
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("instance must point to a struct")
	}

	fv := val.FieldByName(structField)
	if !fv.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownField, structField)
	}
	if !fv.CanSet() {
		return fmt.Errorf("field %s cannot be set", structField)
	}

	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	target := fv
	targetType := fv.Type()
	if targetType.Kind() == reflect.Pointer {
		ptr := reflect.New(targetType.Elem())
		if err := assignValue(ptr.Elem(), value); err != nil {
			return fmt.Errorf("field %s: %w", structField, err)
		}
		fv.Set(ptr)
		return nil
	}

	if err := assignValue(target, value); err != nil {
		return fmt.Errorf("field %s: %w", structField, err)
	}
	return nil
}

func assignValue(target reflect.Value, value any) error {
	vv := reflect.ValueOf(value)
	targetType := target.Type()

	if vv.Type().AssignableTo(targetType) {
		target.Set(vv)
		return nil
	}

	if vv.Type().ConvertibleTo(targetType) {
		switch targetType.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String:
			// Guard against silent string<->number conversions
			if (vv.Kind() == reflect.String) != (targetType.Kind() == reflect.String) {
				break
			}
			target.Set(vv.Convert(targetType))
			return nil
		default:
			target.Set(vv.Convert(targetType))
			return nil
		}
	}

	// JSON strings for numeric columns and timestamps
	if vv.Kind() == reflect.String {
		s := vv.String()
		if targetType == reflect.TypeOf(time.Time{}) {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q", s)
			}
			target.Set(reflect.ValueOf(t))
			return nil
		}
		if IsNumericType(targetType.Kind()) {
			converted, err := ConvertToNumericType(s, targetType.Kind())
			if err != nil {
				return err
			}
			target.Set(reflect.ValueOf(converted).Convert(targetType))
			return nil
		}
	}

	return fmt.Errorf("cannot assign %T to %s", value, targetType)
}

func baseStructType(model any) reflect.Type {
	modelType := reflect.TypeOf(model)
	for modelType != nil && (modelType.Kind() == reflect.Pointer || modelType.Kind() == reflect.Slice || modelType.Kind() == reflect.Array) {
		modelType = modelType.Elem()
	}
	if modelType == nil || modelType.Kind() != reflect.Struct {
		return nil
	}
	return modelType
}

func modelTypeName(model any) string {
	if t := baseStructType(model); t != nil {
		return t.Name()
	}
	return fmt.Sprintf("%T", model)
}

// extractTagOption pulls "prefix<value>" out of a comma-separated bun tag.
func extractTagOption(tag, prefix string) string {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if v, found := strings.CutPrefix(part, prefix); found {
			return v
		}
	}
	return ""
}

// extractGormTagOption pulls "prefix<value>" out of a semicolon-separated gorm tag.
func extractGormTagOption(tag, prefix string) string {
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if v, found := strings.CutPrefix(part, prefix); found {
			return v
		}
	}
	return ""
}

// fieldByColumn finds a struct field whose mapped column equals the given name.
func fieldByColumn(typ reflect.Type, column string) (reflect.StructField, bool) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Anonymous {
			continue
		}
		if getColumnNameFromField(f) == column {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

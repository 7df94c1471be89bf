package gormutil

import (
	"context"
	"encoding"
	"fmt"
	"reflect"

	"gorm.io/gorm/schema"
)

// TextSerializer stores values through their encoding.TextMarshaler implementation, so enums
// are kept in the database by name instead of by number.
type TextSerializer struct{}

func (TextSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue any) error {
	srcTy := field.FieldType
	noPtrTy := srcTy
	if srcTy.Kind() == reflect.Pointer {
		noPtrTy = srcTy.Elem()
	}
	if !reflect.PointerTo(noPtrTy).Implements(reflect.TypeFor[encoding.TextUnmarshaler]()) {
		return fmt.Errorf("bad field value type: %v", srcTy)
	}
	if dbValue == nil {
		field.ReflectValueOf(ctx, dst).Set(reflect.New(field.FieldType).Elem())
		return nil
	}
	var data []byte
	switch v := dbValue.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("bad db value type: %T", dbValue)
	}
	ptr := reflect.New(noPtrTy)
	if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText(data); err != nil {
		return fmt.Errorf("unmarshal %v: %w", noPtrTy, err)
	}
	val := field.ReflectValueOf(ctx, dst)
	if srcTy.Kind() == reflect.Pointer {
		val.Set(ptr)
	} else {
		val.Set(ptr.Elem())
	}
	return nil
}

func (TextSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue any) (any, error) {
	if v := reflect.ValueOf(fieldValue); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, nil
	}
	m, ok := fieldValue.(encoding.TextMarshaler)
	if !ok {
		return nil, fmt.Errorf("bad value type %T", fieldValue)
	}
	b, err := m.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", fieldValue, err)
	}
	return string(b), nil
}

func init() {
	schema.RegisterSerializer("text", TextSerializer{})
}

package reflectionutils

import (
	"math/big"
	"reflect"
)

// bigIntPtrType is the reflected type of *big.Int.
var bigIntPtrType = reflect.TypeOf((*big.Int)(nil))

// ZeroValue returns the zero value of the provided type with every *big.Int set to zero and every slice empty rather
// than nil, recursing into arrays and struct fields. The result can be ABI encoded without nil dereferences.
func ZeroValue(t reflect.Type) reflect.Value {
	if t == bigIntPtrType {
		return reflect.ValueOf(new(big.Int))
	}

	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0)
	case reflect.Array:
		array := reflect.New(t).Elem()
		for i := 0; i < array.Len(); i++ {
			array.Index(i).Set(ZeroValue(t.Elem()))
		}
		return array
	case reflect.Struct:
		structValue := reflect.New(t).Elem()
		for i := 0; i < structValue.NumField(); i++ {
			if structValue.Field(i).CanSet() {
				structValue.Field(i).Set(ZeroValue(t.Field(i).Type))
			}
		}
		return structValue
	default:
		return reflect.Zero(t)
	}
}

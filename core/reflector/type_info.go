// Package reflector derives stable type names for message types.
// Names are cached, so repeated lookups on hot paths stay cheap.
package reflector

import (
	"reflect"
	"sync"
)

// maxCacheSize bounds the type cache. Programs only ever see a handful of
// message types, so the cache is simply reset when the limit is hit.
const maxCacheSize = 1024

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]TypeInfo)
)

// TypeInfo holds metadata about a reflected type.
type TypeInfo struct {
	Name string // "pkg/path.TypeName" for named types, "*pkg/path.TypeName" for pointers to them, Go syntax otherwise ("[]uint8")
	Type reflect.Type
}

// TypeInfoOf returns TypeInfo for the dynamic type of x.
func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

// TypeInfoFor returns TypeInfo for type parameter T.
func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeFor[T]())
}

// TypeName is shorthand for TypeInfoFor[T]().Name.
func TypeName[T any]() string {
	return TypeInfoFor[T]().Name
}

// TypeInfoForType returns TypeInfo for t. T and *T have different names.
func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}

	muCache.RLock()
	ti, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return ti
	}

	ti = TypeInfo{Name: nameOf(t), Type: t}

	muCache.Lock()
	if existing, ok := cache[t]; ok {
		muCache.Unlock()
		return existing
	}
	if len(cache) >= maxCacheSize {
		cache = make(map[reflect.Type]TypeInfo)
	}
	cache[t] = ti
	muCache.Unlock()

	return ti
}

func nameOf(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return "*" + nameOf(t.Elem())
	}
	if t.Name() == "" || t.PkgPath() == "" {
		// builtin and composite types ([]byte, map[string]int, ...)
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

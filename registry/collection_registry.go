/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/suparena/docstore/errors"
)

var (
	collectionRegistry = make(map[reflect.Type]string)
	collectionMu       sync.RWMutex
)

// BindCollection associates a Go type T with the name of the collection holding its records.
func BindCollection[T any](name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	collectionMu.Lock()
	defer collectionMu.Unlock()
	collectionRegistry[t] = name
}

// CollectionFor retrieves the collection name bound to type T.
func CollectionFor[T any]() (string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	collectionMu.RLock()
	defer collectionMu.RUnlock()
	name, ok := collectionRegistry[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrNoCollectionBinding, t)
	}
	return name, nil
}

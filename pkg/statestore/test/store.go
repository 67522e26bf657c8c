// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test provides a shared test suite for storage.StateStorer
// implementations.
package test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethersphere/raffle/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

const (
	key1 = "key1" // stores the serialized type
	key2 = "key2" // stores a json array
)

var (
	value1 = &Serializing{value: "value1"}
	value2 = []string{"a", "b", "c"}
)

type Serializing struct {
	value           string
	marshalCalled   bool
	unmarshalCalled bool
}

func (st *Serializing) MarshalBinary() (data []byte, err error) {
	d := []byte(st.value)
	st.marshalCalled = true

	return d, nil
}

func (st *Serializing) UnmarshalBinary(data []byte) (err error) {
	st.value = string(data)
	st.unmarshalCalled = true
	return nil
}

// Run executes the put/get, delete and iterator tests against the store
// returned by f. Each test gets a fresh store.
func Run(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	t.Run("put_get", func(t *testing.T) { testPutGet(t, f(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, f(t)) })
	t.Run("iterator", func(t *testing.T) { testIterator(t, f(t)) })
	t.Run("iterator_stop", func(t *testing.T) { testIteratorStop(t, f(t)) })
}

// RunPersist checks that values survive reopening a store in the same directory.
func RunPersist(t *testing.T, f func(t *testing.T, dir string) storage.StateStorer) {
	t.Helper()

	dir := t.TempDir()

	store := f(t, dir)
	insertValues(t, store, key1, key2, value1, value2)
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	persistedStore := f(t, dir)
	defer persistedStore.Close()

	testPersistedValues(t, persistedStore, key1, key2, value1, value2)
}

func testPutGet(t *testing.T, store storage.StateStorer) {
	insertValues(t, store, key1, key2, value1, value2)
	testPersistedValues(t, store, key1, key2, value1, value2)
}

func testDelete(t *testing.T, store storage.StateStorer) {
	insertValues(t, store, key1, key2, value1, value2)

	if err := store.Delete(key2); err != nil {
		t.Fatal(err)
	}

	var s []string
	if err := store.Get(key2, &s); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
	}
}

func testIterator(t *testing.T, store storage.StateStorer) {
	insertValues(t, store, key1, key2, value1, value2)
	testStoreIterator(t, store)
}

func testIteratorStop(t *testing.T, store storage.StateStorer) {
	for _, k := range []string{"stop_a", "stop_b", "stop_c"} {
		if err := store.Put(k, k); err != nil {
			t.Fatal(err)
		}
	}

	var visited int
	err := store.Iterate("stop_", func(_, _ []byte) (bool, error) {
		visited++
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if visited != 1 {
		t.Fatalf("visited %d entries, want 1", visited)
	}
}

func insertValues(t *testing.T, store storage.StateStorer, key1, key2 string, value1 *Serializing, value2 []string) {
	t.Helper()

	err := store.Put(key1, value1)
	if err != nil {
		t.Fatal(err)
	}

	if !value1.marshalCalled {
		t.Fatal("binaryMarshaller not called on serialized type")
	}

	err = store.Put(key2, value2)
	if err != nil {
		t.Fatal(err)
	}
}

func testPersistedValues(t *testing.T, store storage.StateStorer, key1, key2 string, value1 *Serializing, value2 []string) {
	t.Helper()

	v := &Serializing{}
	err := store.Get(key1, v)
	if err != nil {
		t.Fatal(err)
	}

	if !v.unmarshalCalled {
		t.Fatal("unmarshaler not called")
	}

	if v.value != value1.value {
		t.Fatalf("expected persisted to be %s but got %s", value1.value, v.value)
	}

	s := []string{}
	err = store.Get(key2, &s)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(value2, s); diff != "" {
		t.Fatalf("deserialized data mismatch (-want +got):\n%s", diff)
	}
}

func testStoreIterator(t *testing.T, store storage.StateStorer) {
	storePrefix := "test_"
	err := store.Put(storePrefix+"key1", "value1")
	if err != nil {
		t.Fatal(err)
	}

	// do not include prefix in one of the entries
	err = store.Put("key2", "value2")
	if err != nil {
		t.Fatal(err)
	}

	err = store.Put(storePrefix+"key3", "value3")
	if err != nil {
		t.Fatal(err)
	}

	entries := make(map[string]string)

	entriesIterFunction := func(key []byte, value []byte) (stop bool, err error) {
		var entry string
		err = json.Unmarshal(value, &entry)
		if err != nil {
			t.Fatal(err)
		}
		entries[string(key)] = entry
		return stop, err
	}

	err = store.Iterate(storePrefix, entriesIterFunction)
	if err != nil {
		t.Fatal(err)
	}

	expectedEntries := map[string]string{"test_key1": "value1", "test_key3": "value3"}

	if diff := cmp.Diff(expectedEntries, entries); diff != "" {
		t.Fatalf("unexpected store entries (-want +got):\n%s", diff)
	}
}

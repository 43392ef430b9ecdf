// Package memory implements every store port in process memory.
// It is the default driver and the one the engine tests run against.
// Records are copied on the way in and out so callers never share state with the store.
package memory

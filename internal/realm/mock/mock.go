// Package mock provides in-memory mock implementations of
// [realm.EntitiesActiveFetcher] and [realm.FixedEntityFetcher] for use in
// unit tests. Both mocks record every call and expose configurable
// *Result/*Error fields, matching the convention in
// internal/engine/mock.VoiceEngine.
package mock

import (
	"context"
	"sync"

	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/types"
)

var (
	_ realm.EntitiesActiveFetcher = (*EntitiesActive)(nil)
	_ realm.FixedEntityFetcher    = (*FixedEntity)(nil)
)

// FetchActiveCall records the arguments of a single FetchActive call.
type FetchActiveCall struct {
	Pointers []types.Coord
}

// EntitiesActive is a mock realm.EntitiesActiveFetcher.
type EntitiesActive struct {
	mu sync.Mutex

	// Result is returned by every FetchActive call.
	Result []realm.ActiveEntity
	// Error is returned by FetchActive.
	Error error

	// Calls records all FetchActive invocations.
	Calls []FetchActiveCall
}

// FetchActive records the call and returns the configured result.
func (e *EntitiesActive) FetchActive(_ context.Context, pointers []types.Coord) ([]realm.ActiveEntity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, FetchActiveCall{Pointers: pointers})
	if e.Error != nil {
		return nil, e.Error
	}
	return e.Result, nil
}

// FetchByHashCall records the arguments of a single FetchByHash call.
type FetchByHashCall struct {
	Hash types.Hash
}

// FixedEntity is a mock realm.FixedEntityFetcher.
type FixedEntity struct {
	mu sync.Mutex

	// Results overrides the returned entity per-hash.
	Results map[types.Hash]realm.ActiveEntity
	// Error is returned by FetchByHash when Results has no entry.
	Error error

	// Calls records all FetchByHash invocations.
	Calls []FetchByHashCall
}

// FetchByHash records the call and returns the configured result.
func (f *FixedEntity) FetchByHash(_ context.Context, hash types.Hash) (realm.ActiveEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FetchByHashCall{Hash: hash})
	if result, ok := f.Results[hash]; ok {
		return result, nil
	}
	if f.Error != nil {
		return realm.ActiveEntity{}, f.Error
	}
	return realm.ActiveEntity{Hash: hash, Parcels: []types.Coord{}}, nil
}

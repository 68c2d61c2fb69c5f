// Package store persists the watch registry and the portal session cookies.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"seatwatch-backend/internal/registry"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/store")

var ErrUnsupportedScheme = errors.New("unsupported store scheme")

const stateKey = "seatwatch/state"

// State is everything seatwatch needs to resume after a restart.
type State struct {
	Tenants     map[int64]*registry.TenantState `json:"tenants"`
	Cookies     map[string]string               `json:"cookies"`
	LastUpdated time.Time                       `json:"last_updated"`
}

func (s State) normalized() State {
	if s.Tenants == nil {
		s.Tenants = map[int64]*registry.TenantState{}
	}
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	for _, tenant := range s.Tenants {
		if tenant != nil && tenant.Watches == nil {
			tenant.Watches = map[string]*registry.WatchEntry{}
		}
	}
	return s
}

func encodeState(state State) ([]byte, error) {
	data, err := json.MarshalIndent(state.normalized(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (State, error) {
	var state State
	err := json.Unmarshal(data, &state)
	if err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return state.normalized(), nil
}

// Store loads and saves State. Load returns an empty State if nothing has
// been saved yet. Save replaces the stored State as a whole, a failed Save
// leaves the previously saved State intact.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Close() error
}

// Open picks a backend from the url scheme:
//
//	file://state/seatwatch.json       json file (also the default for a bare path)
//	sqlite://state/seatwatch.db       embedded sqlite
//	libsql://db.turso.io?authToken=…  remote libsql
//	badger://state/badger             embedded badger, badger://:memory: for in-memory
//	redis://localhost:6379/0          redis
func Open(ctx context.Context, rawUrl string) (Store, error) {
	scheme, rest, found := strings.Cut(rawUrl, "://")
	if !found {
		scheme, rest = "file", rawUrl
	}

	var (
		backend Store
		err     error
	)
	switch scheme {
	case "file":
		backend, err = openFile(rest)
	case "sqlite":
		backend, err = openSqlite(rest)
	case "libsql":
		backend, err = openLibsql(ctx, rawUrl)
	case "badger":
		backend, err = openBadger(rest)
	case "redis", "rediss":
		backend, err = openRedis(ctx, rawUrl)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", scheme, err)
	}
	return tracedStore{backend: scheme, inner: backend}, nil
}

type tracedStore struct {
	backend string
	inner   Store
}

func (s tracedStore) Load(ctx context.Context) (State, error) {
	ctx, span := tracer.Start(ctx, "Store.Load")
	defer span.End()
	span.SetAttributes(attribute.String("store.backend", s.backend))

	state, err := s.inner.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load state")
		return State{}, err
	}
	span.SetAttributes(attribute.Int("store.tenants", len(state.Tenants)))
	return state, nil
}

func (s tracedStore) Save(ctx context.Context, state State) error {
	ctx, span := tracer.Start(ctx, "Store.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("store.backend", s.backend),
		attribute.Int("store.tenants", len(state.Tenants)),
	)

	err := s.inner.Save(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save state")
		return err
	}
	return nil
}

func (s tracedStore) Close() error {
	return s.inner.Close()
}

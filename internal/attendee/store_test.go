package attendee

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/regbot/core/config"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"xlsx": func(t *testing.T) Store {
			return NewXLSXStore(filepath.Join(t.TempDir(), "attendees.xlsx"), "Registrations")
		},
		"sqlite": func(t *testing.T) Store {
			cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{
				Driver: coreconfig.DriverSQLite,
				Path:   filepath.Join(t.TempDir(), "attendees.db"),
			}}
			st, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			return st
		},
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			st := factory(t)
			t.Cleanup(func() { _ = st.Close() })
			require.NoError(t, st.Init(context.Background()))
			fn(t, st)
		})
	}
}

func collect(t *testing.T, st Store) []Record {
	t.Helper()
	seq, err := st.Active(context.Background())
	require.NoError(t, err)
	return slices.Collect(seq)
}

func TestInitIsIdempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		require.NoError(t, st.Init(context.Background()))
		all, err := st.All(context.Background())
		require.NoError(t, err)
		require.Empty(t, all)
	})
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		req := require.New(t)

		created, err := st.Upsert(ctx, 111, Patch{
			Handle:       lo.ToPtr("alice"),
			RegisteredAt: lo.ToPtr("2024-05-01 10:00"),
		})
		req.NoError(err)
		req.True(created)

		created, err = st.Upsert(ctx, 111, Patch{FullName: lo.ToPtr("Alice Smith")})
		req.NoError(err)
		req.False(created)

		rec, ok, err := st.Find(ctx, 111)
		req.NoError(err)
		req.True(ok)
		req.Equal(Record{
			Handle:       "alice",
			RegisteredAt: "2024-05-01 10:00",
			Identity:     111,
			FullName:     "Alice Smith",
		}, rec)

		all, err := st.All(ctx)
		req.NoError(err)
		req.Len(all, 1)
	})
}

func TestFindMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		_, ok, err := st.Find(context.Background(), 42)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestActiveSkipsCancelledAndKeepsOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		req := require.New(t)
		for _, id := range []int64{3, 1, 2} {
			_, err := st.Upsert(ctx, id, Patch{Handle: lo.ToPtr("u")})
			req.NoError(err)
		}
		_, err := st.Upsert(ctx, 1, Patch{Status: lo.ToPtr(StatusCancelled)})
		req.NoError(err)

		ids := lo.Map(collect(t, st), func(r Record, _ int) int64 { return r.Identity })
		req.Equal([]int64{3, 2}, ids)

		// Reactivation keeps the original row position.
		_, err = st.Upsert(ctx, 1, Patch{Status: lo.ToPtr(StatusActive)})
		req.NoError(err)
		ids = lo.Map(collect(t, st), func(r Record, _ int) int64 { return r.Identity })
		req.Equal([]int64{3, 1, 2}, ids)
	})
}

func TestActiveIsASnapshot(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		req := require.New(t)
		_, err := st.Upsert(ctx, 1, Patch{})
		req.NoError(err)

		seq, err := st.Active(ctx)
		req.NoError(err)

		_, err = st.Upsert(ctx, 2, Patch{})
		req.NoError(err)

		req.Len(slices.Collect(seq), 1)
		// A snapshot can be walked more than once.
		req.Len(slices.Collect(seq), 1)
	})
}

func TestUpsertRejectsInvalidRecords(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		_, err := st.Upsert(ctx, 0, Patch{})
		require.ErrorIs(t, err, ErrInvalidRecord)

		_, err = st.Upsert(ctx, 5, Patch{Status: lo.ToPtr(Status("paused"))})
		require.ErrorIs(t, err, ErrInvalidRecord)

		all, err := st.All(ctx)
		require.NoError(t, err)
		require.Empty(t, all)
	})
}

func TestConcurrentUpsertsKeepOneRowPerIdentity(t *testing.T) {
	eachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.Upsert(ctx, int64(100+i%2), Patch{Handle: lo.ToPtr("h")})
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		all, err := st.All(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []int64{100, 101},
			lo.Map(all, func(r Record, _ int) int64 { return r.Identity }))
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &coreconfig.Config{
		Storage: coreconfig.StorageConfig{Driver: "csv"},
	})
	require.Error(t, err)
}

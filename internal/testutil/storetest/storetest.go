// Package storetest provides a Fixture for tests that seed records through
// the Store's import path.
package storetest

import (
	"context"
	"testing"

	"github.com/wesm/mboxvault/internal/store"
	"github.com/wesm/mboxvault/internal/testutil"
)

// Fixture holds a fresh test store.
type Fixture struct {
	T     *testing.T
	Store *store.Store
}

// New creates a Fixture with an empty database.
func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{T: t, Store: testutil.NewTestStore(t)}
}

// Insert writes records in one import transaction, rebuilds the index and
// returns the assigned ids in order. A record whose UID already exists gets
// id 0.
func (f *Fixture) Insert(emails ...*store.Email) []int64 {
	f.T.Helper()
	ctx := context.Background()

	tx, err := f.Store.BeginImport(ctx)
	testutil.MustNoErr(f.T, err, "BeginImport")
	defer tx.Rollback()

	ids := make([]int64, len(emails))
	for i, e := range emails {
		inserted, err := tx.InsertEmail(ctx, e)
		testutil.MustNoErr(f.T, err, "InsertEmail")
		if inserted {
			ids[i] = e.ID
		}
	}
	testutil.MustNoErr(f.T, tx.RebuildIndex(ctx), "RebuildIndex")
	testutil.MustNoErr(f.T, tx.Commit(), "Commit")
	return ids
}

// InsertOne is Insert for a single record.
func (f *Fixture) InsertOne(e *store.Email) int64 {
	f.T.Helper()
	return f.Insert(e)[0]
}

// MustGet loads a record that must exist.
func (f *Fixture) MustGet(id int64) *store.Email {
	f.T.Helper()
	e, err := f.Store.GetEmail(context.Background(), id)
	testutil.MustNoErr(f.T, err, "GetEmail")
	if e == nil {
		f.T.Fatalf("email %d not found", id)
	}
	return e
}

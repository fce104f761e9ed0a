// Package testutil provides test helpers for mboxvault tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, ...)
//   - store_helpers.go: database setup (NewTestStore)
//   - builders.go: store.Email builder
//
// Raw message and mbox construction lives in testutil/email; a store with
// seeded records lives in testutil/storetest.
package testutil

// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"

	"github.com/wesm/mboxvault/internal/query"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned data is used.
type MockEngine struct {
	Results []query.Email
	Emails  map[int64]*query.Email

	// Filters records every filter passed to Search, in call order.
	Filters []query.Filter

	SearchFunc   func(context.Context, query.Filter) ([]query.Email, error)
	CountFunc    func(context.Context, query.Filter) (int64, error)
	GetEmailFunc func(context.Context, int64) (*query.Email, error)
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) Search(ctx context.Context, f query.Filter) ([]query.Email, error) {
	m.Filters = append(m.Filters, f)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, f)
	}
	return m.Results, nil
}

func (m *MockEngine) Count(ctx context.Context, f query.Filter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, f)
	}
	return int64(len(m.Results)), nil
}

func (m *MockEngine) GetEmail(ctx context.Context, id int64) (*query.Email, error) {
	if m.GetEmailFunc != nil {
		return m.GetEmailFunc(ctx, id)
	}
	return m.Emails[id], nil
}

package tools

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/benvon/crm-tools/internal/database"
)

type fakeCall struct {
	Query string
	Args  []any
}

type fakeResponse struct {
	match string
	rows  []database.Row
}

// fakeDB answers queries with canned rows, picking the first response whose match is a
// substring of the query. Writes are recorded and succeed unless they contain failOn.
// A rolled back transaction drops the calls it recorded into rolledBack.
type fakeDB struct {
	mu         sync.Mutex
	responses  []fakeResponse
	calls      []fakeCall
	rolledBack []fakeCall
	nextID     int64
	affected   int64
	err        error
	failOn     string
	// respond, when set, answers reads before the canned responses are consulted.
	respond    func(query string, args []any) ([]database.Row, bool)
	inTx       bool
	commits    int
}

var _ database.Querier = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{nextID: 100, affected: 1}
}

func (f *fakeDB) on(match string, rows ...database.Row) *fakeDB {
	f.responses = append(f.responses, fakeResponse{match: match, rows: rows})
	return f
}

func (f *fakeDB) record(query string, args []any) {
	f.calls = append(f.calls, fakeCall{Query: query, Args: args})
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) ([]database.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(query, args)
	if f.err != nil {
		return nil, f.err
	}
	if f.respond != nil {
		if rows, ok := f.respond(query, args); ok {
			return rows, nil
		}
	}
	for _, r := range f.responses {
		if strings.Contains(query, r.match) {
			out := make([]database.Row, len(r.rows))
			for i, row := range r.rows {
				out[i] = maps.Clone(row)
			}
			return out, nil
		}
	}
	return []database.Row{}, nil
}

func (f *fakeDB) QueryOne(ctx context.Context, query string, args ...any) (database.Row, error) {
	rows, err := f.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeDB) ExecInsert(_ context.Context, query string, args ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(query, args)
	if err := f.writeErr(query); err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(query, args)
	if err := f.writeErr(query); err != nil {
		return 0, err
	}
	return f.affected, nil
}

func (f *fakeDB) writeErr(query string) error {
	if f.err != nil {
		return f.err
	}
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(q database.Querier) error) error {
	f.mu.Lock()
	if f.inTx {
		f.mu.Unlock()
		return fn(f)
	}
	f.inTx = true
	mark := len(f.calls)
	f.mu.Unlock()

	err := fn(f)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	if err != nil {
		f.rolledBack = append(f.rolledBack, f.calls[mark:]...)
		f.calls = f.calls[:mark]
		return err
	}
	f.commits++
	return nil
}

// callsMatching returns the recorded calls whose SQL starts with prefix.
func (f *fakeDB) callsMatching(prefix string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if strings.HasPrefix(c.Query, prefix) {
			out = append(out, c)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testEnv(db *fakeDB) *Env {
	return &Env{DB: db, MaxRows: 1000, Now: func() time.Time { return fixedNow }}
}

package legacy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/legacy/legacytest"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/store/sqlite"
)

func seed(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db := legacytest.OpenSeeded(t)

	legacytest.MustExec(t, legacytest.InsertUser(ctx, db, legacytest.User{ID: 1, FirstName: "Ann", LastName: "Oak", Email: "a@x.com", Role: "woodland_owner"}))
	legacytest.MustExec(t, legacytest.InsertUser(ctx, db, legacytest.User{ID: 2, FirstName: "Uma", LastName: "Ash", Email: "u@x.com", Role: "agent", Company: "Ash Forestry"}))

	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 10, SelfManaged: true, UserID: 1, FirstName: "Ann", LastName: "Oak", Email: "a@x.com", Postcode: "ab1 2cd"}))
	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 20, AgentUserID: 2, AgentRole: "agent", FirstName: "Bob", LastName: "Elm"}))
	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 30, AgentUserID: 99, FirstName: "Cat", LastName: "Yew"}))
	legacytest.MustExec(t, legacytest.InsertOwner(ctx, db, legacytest.Owner{ID: 40, SelfManaged: true, FirstName: "Dan", LastName: "Fir"}))

	legacytest.MustExec(t, legacytest.InsertDocument(ctx, db, legacytest.Document{ID: 100, OwnerID: 10, FileName: "map.pdf", ContentType: "application/pdf", StorageKey: "legacy/100", Size: 3}))
	legacytest.MustExec(t, legacytest.InsertDocument(ctx, db, legacytest.Document{ID: 101, OwnerID: 10, FileName: "plan.pdf", StorageKey: "legacy/101", Size: 4}))
	legacytest.MustExec(t, legacytest.InsertDocument(ctx, db, legacytest.Document{ID: 200, OwnerID: 20, FileName: "lease.doc", StorageKey: "legacy/200"}))
	return db
}

func TestReadPage_Variants(t *testing.T) {
	db := seed(t)
	r, err := NewReader(db, Options{PageSize: 10})
	require.NoError(t, err)

	units, err := r.ReadPage(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, units, 4)

	self := units[0]
	assert.Equal(t, int64(10), self.Owner.ID)
	assert.True(t, self.Owner.IsSelfManagedOwner())
	sm, ok := self.Owner.Management.(domain.SelfManaged)
	require.True(t, ok)
	require.NotNil(t, sm.User)
	assert.Equal(t, "a@x.com", sm.User.Email)
	assert.Equal(t, "a@x.com", sm.User.Contact.Email)
	assert.Equal(t, "ab1 2cd", self.Owner.Contact.Postcode)
	require.Len(t, self.Documents, 2)
	assert.Equal(t, int64(100), self.Documents[0].ID)
	assert.Equal(t, "application/pdf", self.Documents[0].ContentType)
	assert.Empty(t, self.Problem)

	agent := units[1]
	am, ok := agent.Owner.Management.(domain.AgentManaged)
	require.True(t, ok)
	assert.Equal(t, int64(2), am.Agent.ID)
	assert.Equal(t, "Ash Forestry", am.Agent.CompanyName)
	assert.Equal(t, "agent", am.AgentRole)
	require.Len(t, agent.Documents, 1)
	assert.Empty(t, agent.Problem)

	dangling := units[2]
	assert.Contains(t, dangling.Problem, "agent user 99 not found")

	noLogin := units[3]
	sm, ok = noLogin.Owner.Management.(domain.SelfManaged)
	require.True(t, ok)
	assert.Nil(t, sm.User)
	assert.Empty(t, noLogin.Problem)
	assert.Empty(t, noLogin.Documents)
}

func TestStream_PagesInOrderFromCursor(t *testing.T) {
	db := seed(t)
	r, err := NewReader(db, Options{PageSize: 1})
	require.NoError(t, err)

	var ids []int64
	err = r.Stream(context.Background(), 10, func(u domain.Unit) error {
		ids = append(ids, u.Owner.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 30, 40}, ids)

	n, err := r.Count(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStream_EmitErrorStops(t *testing.T) {
	db := seed(t)
	r, err := NewReader(db, Options{PageSize: 2})
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = r.Stream(context.Background(), 0, func(domain.Unit) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReadPage_SourceUnavailable(t *testing.T) {
	db := legacytest.OpenSQLite(t, "empty.db")
	r, err := NewReader(db, Options{})
	require.NoError(t, err)

	_, err = r.ReadPage(context.Background(), 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestStream_ClosedDatabase(t *testing.T) {
	dialect := sqlite.NewDialect()
	raw, err := dialect.Connect(sqlite.PathDSN(t.TempDir() + "/closed.db"))
	require.NoError(t, err)
	db := store.Wrap(raw, dialect)
	require.NoError(t, db.Close())

	r, err := NewReader(db, Options{})
	require.NoError(t, err)
	err = r.Stream(context.Background(), 0, func(domain.Unit) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestTables_Validate(t *testing.T) {
	assert.NoError(t, Tables{Users: "v1.users", Owners: "managed_owners"}.Validate())
	assert.Error(t, Tables{Users: "users; DROP TABLE x"}.Validate())

	db := legacytest.OpenSQLite(t, "v.db")
	_, err := NewReader(db, Options{Tables: Tables{Owners: "bad name"}})
	assert.Error(t, err)
}

package stacks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hpungsan/stream/internal/backend/backendtest"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	ctl   *Controller
	store *store.Store
	fake  *backendtest.Fake

	mu      sync.Mutex
	notices []string
}

func (f *fixture) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notices...)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	fake := backendtest.New()
	s := store.New(fake, nil, store.Options{Clock: store.NewManualClock(time.Unix(0, 0))})
	fx := &fixture{
		ctl:   New(fake, s, Options{Now: func() time.Time { return time.UnixMilli(42) }}),
		store: s,
		fake:  fake,
	}
	s.Subscribe(func(n store.Notice) {
		fx.mu.Lock()
		fx.notices = append(fx.notices, n.Message)
		fx.mu.Unlock()
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Flush(ctx))
	})
	return fx
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.store.Wait(ctx))
}

func intPtr(n int) *int { return &n }

func TestCreate(t *testing.T) {
	fx := setup(t)

	s, err := fx.ctl.Create(context.Background(), "  Drafts ")
	require.NoError(t, err)
	assert.Equal(t, "Drafts", s.Name)
	assert.Equal(t, int64(42), s.CreatedAt)
	assert.NotEmpty(t, s.ID)

	assert.Equal(t, []fragment.Stack{s}, fx.ctl.List())
	assert.Len(t, fx.fake.Calls(backendtest.OpCreateStack), 1)
	assert.Contains(t, fx.messages(), `Stack "Drafts" created`)

	_, err = fx.ctl.Create(context.Background(), "  ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCreate_BackendFailureKeepsLocal(t *testing.T) {
	fx := setup(t)
	fx.fake.FailOn(backendtest.OpCreateStack, fmt.Errorf("offline"))

	s, err := fx.ctl.Create(context.Background(), "Drafts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistence))
	_, ok := fx.ctl.Get(s.ID)
	assert.True(t, ok)
	assert.Contains(t, fx.messages(), "Failed to save stack")
}

func TestRename(t *testing.T) {
	fx := setup(t)
	s, err := fx.ctl.Create(context.Background(), "Old")
	require.NoError(t, err)

	require.NoError(t, fx.ctl.Rename(context.Background(), s.ID, "New"))
	got, _ := fx.ctl.Get(s.ID)
	assert.Equal(t, "New", got.Name)

	err = fx.ctl.Rename(context.Background(), "missing", "x")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDelete_ClearsMembershipAndView(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	s, err := fx.ctl.Create(ctx, "S")
	require.NoError(t, err)

	a := fx.store.Create("a")
	b := fx.store.Create("b")
	moved, err := fx.ctl.Assign([]string{a.ID, b.ID}, s.ID)
	require.NoError(t, err)
	require.Equal(t, 2, moved)
	require.Len(t, fx.ctl.View(s.ID), 2)

	fx.wait(t)

	require.NoError(t, fx.ctl.Select(s.ID))
	require.NoError(t, fx.ctl.Delete(ctx, s.ID))

	for _, id := range []string{a.ID, b.ID} {
		got, ok := fx.store.Get(id)
		require.True(t, ok, "members are not deleted")
		assert.Nil(t, got.Stack)
	}
	assert.Empty(t, fx.ctl.View(s.ID))
	assert.Empty(t, fx.ctl.List())
	assert.Equal(t, "", fx.ctl.Active(), "deleting the active stack resets the selection")
	assert.Contains(t, fx.messages(), `Stack "S" deleted`)

	fx.wait(t)
	stored, _ := fx.fake.Fragment(a.ID)
	assert.Nil(t, stored.Stack, "backend cascade unlinks stored members")

	err = fx.ctl.Delete(ctx, s.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAssign_Notices(t *testing.T) {
	fx := setup(t)
	s, err := fx.ctl.Create(context.Background(), "Work")
	require.NoError(t, err)
	a := fx.store.Create("a")
	b := fx.store.Create("b")

	_, err = fx.ctl.Assign([]string{a.ID}, s.ID)
	require.NoError(t, err)
	_, err = fx.ctl.Assign([]string{a.ID, b.ID, "ghost"}, "")
	require.NoError(t, err)

	msgs := fx.messages()
	assert.Contains(t, msgs, "Moved 1 prompt to Work")
	assert.Contains(t, msgs, "Moved 2 prompts to All")

	_, err = fx.ctl.Assign([]string{a.ID}, "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAssign_ClearsPositionOnMove(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	one, err := fx.ctl.Create(ctx, "One")
	require.NoError(t, err)
	two, err := fx.ctl.Create(ctx, "Two")
	require.NoError(t, err)

	a := fx.store.Create("a")
	_, err = fx.ctl.Assign([]string{a.ID}, one.ID)
	require.NoError(t, err)
	require.NoError(t, fx.ctl.SetPosition(a.ID, intPtr(3)))

	_, err = fx.ctl.Assign([]string{a.ID}, one.ID)
	require.NoError(t, err)
	got, _ := fx.store.Get(a.ID)
	pos, ok := got.Position()
	assert.True(t, ok, "reassigning to the same stack keeps the position")
	assert.Equal(t, 3, pos)

	_, err = fx.ctl.Assign([]string{a.ID}, two.ID)
	require.NoError(t, err)
	got, _ = fx.store.Get(a.ID)
	assert.Equal(t, two.ID, got.StackID())
	_, ok = got.Position()
	assert.False(t, ok)

	fx.wait(t)
	stored, _ := fx.fake.Fragment(a.ID)
	assert.Equal(t, two.ID, stored.StackID())
}

func TestView_SortsByPositionMissingLast(t *testing.T) {
	fx := setup(t)
	s, err := fx.ctl.Create(context.Background(), "S")
	require.NoError(t, err)

	noPos1 := fx.store.Create("no position 1")
	third := fx.store.Create("third")
	first := fx.store.Create("first")
	noPos2 := fx.store.Create("no position 2")
	second := fx.store.Create("second")
	_, err = fx.store.CreateDraft(store.Draft{Content: "elsewhere", StackID: "other", Position: intPtr(1)})
	require.NoError(t, err)

	_, err = fx.ctl.Assign([]string{noPos1.ID, third.ID, first.ID, noPos2.ID, second.ID}, s.ID)
	require.NoError(t, err)
	require.NoError(t, fx.ctl.SetPosition(third.ID, intPtr(30)))
	require.NoError(t, fx.ctl.SetPosition(first.ID, intPtr(1)))
	require.NoError(t, fx.ctl.SetPosition(second.ID, intPtr(7)))

	var got []string
	for _, f := range fx.ctl.View(s.ID) {
		got = append(got, f.Content)
	}
	require.Len(t, got, 5)
	assert.Equal(t, []string{"first", "second", "third"}, got[:3])
	assert.ElementsMatch(t, []string{"no position 1", "no position 2"}, got[3:])
}

func TestSetPosition_Errors(t *testing.T) {
	fx := setup(t)
	a := fx.store.Create("a")

	err := fx.ctl.SetPosition(a.ID, intPtr(1))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	err = fx.ctl.SetPosition("missing", intPtr(1))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSelect(t *testing.T) {
	fx := setup(t)
	s, err := fx.ctl.Create(context.Background(), "S")
	require.NoError(t, err)

	require.NoError(t, fx.ctl.Select(s.ID))
	assert.Equal(t, s.ID, fx.ctl.Active())
	assert.True(t, errors.Is(fx.ctl.Select("nope"), errors.ErrNotFound))
	require.NoError(t, fx.ctl.Select(""))
	assert.Equal(t, "", fx.ctl.Active())
}

func TestLoadAndFind(t *testing.T) {
	fx := setup(t)
	fx.ctl.Load([]fragment.Stack{{ID: "s1", Name: "Alpha"}, {ID: "s2", Name: "Beta"}})

	got, ok := fx.ctl.Find("Beta")
	require.True(t, ok)
	assert.Equal(t, "s2", got.ID)
	got, ok = fx.ctl.Find("s1")
	require.True(t, ok)
	assert.Equal(t, "Alpha", got.Name)
	_, ok = fx.ctl.Find("Gamma")
	assert.False(t, ok)

	require.NoError(t, fx.ctl.Select("s1"))
	fx.ctl.Load(nil)
	assert.Equal(t, "", fx.ctl.Active(), "selection of a vanished stack resets")
}

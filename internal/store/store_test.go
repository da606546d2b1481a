package store

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
	"github.com/hpungsan/stream/internal/bg"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/tagger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	store   *Store
	fake    *backendtest.Fake
	clock   *ManualClock
	runner  *bg.Runner
	notices *noticeLog
}

type noticeLog struct {
	mu  sync.Mutex
	all []Notice
}

func (l *noticeLog) add(n Notice) {
	l.mu.Lock()
	l.all = append(l.all, n)
	l.mu.Unlock()
}

func (l *noticeLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.all))
	for i, n := range l.all {
		out[i] = n.Message
	}
	return out
}

func (l *noticeLog) last(msg string) (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.all) - 1; i >= 0; i-- {
		if l.all[i].Message == msg {
			return l.all[i], true
		}
	}
	return Notice{}, false
}

func newHarness(t *testing.T, autoTagging bool) *harness {
	t.Helper()
	fake := backendtest.New()
	runner := bg.New(time.Second, nil)
	clock := NewManualClock(time.UnixMilli(1_700_000_000_000))
	pal := palette.NewRegistry(fake, runner, palette.Options{})
	s := New(fake, pal, Options{
		Clock:       clock,
		Runner:      runner,
		AutoTagging: autoTagging,
	})
	log := &noticeLog{}
	s.Subscribe(log.add)
	return &harness{store: s, fake: fake, clock: clock, runner: runner, notices: log}
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.store.Wait(ctx))
}

// --- create ---

func TestCreate_RoundTripWithAutoTagging(t *testing.T) {
	h := newHarness(t, true)

	f := h.store.Create("def foo(): pass")
	h.wait(t)

	got, ok := h.store.Get(f.ID)
	require.True(t, ok)
	assert.Equal(t, "def foo(): pass", got.Content)
	assert.Equal(t, "def foo(): pass", got.Title)
	assert.Equal(t, tagger.Classify("def foo(): pass"), got.Tags)
	assert.Contains(t, got.Tags, tagger.LabelPython)
	assert.Contains(t, got.Tags, tagger.LabelCode)
	assert.Equal(t, fragment.KindContext, got.Kind)
	assert.True(t, got.Flags.New)
	assert.Equal(t, h.clock.Now().UnixMilli(), got.CreatedAt)

	stored, ok := h.fake.Fragment(f.ID)
	require.True(t, ok)
	assert.Equal(t, got.Content, stored.Content)
	assert.False(t, stored.Flags.New, "flags are never persisted")

	assert.Contains(t, h.notices.messages(), MsgSynced)
}

func TestCreate_AutoTaggingOff(t *testing.T) {
	h := newHarness(t, false)

	f := h.store.Create("def foo(): pass")
	assert.Empty(t, f.Tags)
	assert.NotNil(t, f.Tags)
	h.wait(t)
}

func TestCreate_InsertsAtHead(t *testing.T) {
	h := newHarness(t, false)

	a := h.store.Create("first")
	b := h.store.Create("second")
	h.wait(t)

	list := h.store.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestCreate_LongTitleTruncated(t *testing.T) {
	h := newHarness(t, false)

	f := h.store.Create("This first line is definitely longer than forty characters\nsecond")
	h.wait(t)
	assert.Equal(t, "This first line is definitely longer tha...", f.Title)
}

func TestCreate_FailureKeepsFragment(t *testing.T) {
	h := newHarness(t, false)
	h.fake.FailOn(backendtest.OpCreateFragment, fmt.Errorf("disk full"))

	f := h.store.Create("keep me")
	h.wait(t)

	assert.True(t, h.store.Has(f.ID), "optimistic insert is not rolled back")
	n, ok := h.notices.last(MsgSaveFailed)
	require.True(t, ok)
	assert.Equal(t, LevelError, n.Level)
	assert.NotContains(t, h.notices.messages(), MsgSynced)
}

func TestCreate_NewTagsGetDistinctHuesWhileUnpersisted(t *testing.T) {
	h := newHarness(t, false)
	release := h.fake.Hold()

	_, err := h.store.CreateDraft(Draft{Content: "one", Tags: []string{"alpha"}})
	require.NoError(t, err)
	_, err = h.store.CreateDraft(Draft{Content: "two", Tags: []string{"beta"}})
	require.NoError(t, err)

	alpha, ok := h.store.Palette().Resolve("alpha")
	require.True(t, ok)
	beta, ok := h.store.Palette().Resolve("beta")
	require.True(t, ok)
	assert.NotEqual(t, alpha.Hue, beta.Hue)

	release()
	h.wait(t)
}

func TestCreateDraft_Validation(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.store.CreateDraft(Draft{Kind: "poem", Content: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	zero := 0
	_, err = h.store.CreateDraft(Draft{Content: "x", StackID: "s", Position: &zero})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Zero(t, h.store.Len())
}

func TestCreate_NewFlagClears(t *testing.T) {
	h := newHarness(t, false)

	f := h.store.Create("flash")
	h.clock.Advance(DefaultNewFlagFor - time.Millisecond)
	got, _ := h.store.Get(f.ID)
	assert.True(t, got.Flags.New)

	h.clock.Advance(time.Millisecond)
	got, _ = h.store.Get(f.ID)
	assert.False(t, got.Flags.New)
	h.wait(t)
}

func TestCreateStub(t *testing.T) {
	h := newHarness(t, true)

	f := h.store.CreateStub()
	h.wait(t)

	assert.Equal(t, fragment.StubTitle, f.Title)
	assert.Equal(t, []string{fragment.StubTag}, f.Tags)
	assert.Equal(t, fragment.KindInstruction, f.Kind)
	assert.True(t, f.Flags.Ephemeral)
	assert.Empty(t, h.fake.Calls(backendtest.OpCreateFragment), "stubs are never persisted")
	assert.Contains(t, h.notices.messages(), MsgStubAdded)
}

// --- update ---

func TestUpdate_AppliesAndPersists(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("before")

	require.NoError(t, h.store.Update(f.ID, fragment.Patch{
		Content: fragment.Some("after"),
		Tags:    fragment.Some([]string{" custom ", "custom"}),
	}))

	got, _ := h.store.Get(f.ID)
	assert.Equal(t, "after", got.Content)
	assert.Equal(t, []string{"custom"}, got.Tags)
	assert.True(t, got.Flags.New, "flags survive an update")

	h.wait(t)
	stored, _ := h.fake.Fragment(f.ID)
	assert.Equal(t, "after", stored.Content)

	calls := h.fake.Calls(backendtest.OpCreateFragment, backendtest.OpUpdateFragment)
	require.Len(t, calls, 2)
	assert.Equal(t, backendtest.OpCreateFragment, calls[0].Op)
	assert.Equal(t, backendtest.OpUpdateFragment, calls[1].Op)

	_, ok := h.store.Palette().Resolve("custom")
	assert.True(t, ok, "new tag gets a colour")
}

func TestUpdate_SameIDOrderPreservedWhileHeld(t *testing.T) {
	h := newHarness(t, false)
	release := h.fake.Hold()

	f := h.store.Create("v0")
	for i := 1; i <= 3; i++ {
		require.NoError(t, h.store.Update(f.ID, fragment.Patch{Content: fragment.Some(fmt.Sprintf("v%d", i))}))
	}
	release()
	h.wait(t)

	stored, ok := h.fake.Fragment(f.ID)
	require.True(t, ok)
	assert.Equal(t, "v3", stored.Content)
}

func TestUpdate_FailureNotRolledBack(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("before")
	h.wait(t)
	h.fake.FailOn(backendtest.OpUpdateFragment, fmt.Errorf("offline"))

	require.NoError(t, h.store.Update(f.ID, fragment.Patch{Title: fragment.Some("local")}))
	h.wait(t)

	got, _ := h.store.Get(f.ID)
	assert.Equal(t, "local", got.Title)
	n, ok := h.notices.last(MsgUpdateFailed)
	require.True(t, ok)
	assert.Equal(t, LevelError, n.Level)
}

func TestUpdate_StubStaysLocal(t *testing.T) {
	h := newHarness(t, false)
	stub := h.store.CreateStub()

	require.NoError(t, h.store.Update(stub.ID, fragment.Patch{Content: fragment.Some("typed")}))
	h.wait(t)

	got, _ := h.store.Get(stub.ID)
	assert.Equal(t, "typed", got.Content)
	assert.Empty(t, h.fake.Calls(backendtest.OpUpdateFragment))
}

func TestUpdate_Errors(t *testing.T) {
	h := newHarness(t, false)

	err := h.store.Update("missing", fragment.Patch{Title: fragment.Some("x")})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	f := h.store.Create("x")
	err = h.store.Update(f.ID, fragment.Patch{Kind: fragment.Some(fragment.Kind("poem"))})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	h.wait(t)
}

func TestUpdate_EmptyPatchSendsNothing(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")
	h.wait(t)

	require.NoError(t, h.store.Update(f.ID, fragment.Patch{}))
	h.wait(t)
	assert.Empty(t, h.fake.Calls(backendtest.OpUpdateFragment))
}

// --- remove / undo ---

func TestRemove_TwoPhase(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("doomed")
	h.wait(t)

	var dropped []string
	h.store.OnRemove(func(id string) { dropped = append(dropped, id) })

	require.NoError(t, h.store.Remove(f.ID))
	assert.Equal(t, []string{f.ID}, dropped, "rack hook runs in phase one")

	got, ok := h.store.Get(f.ID)
	require.True(t, ok, "still listed during the exit delay")
	assert.True(t, got.Flags.PendingRemoval)

	h.clock.Advance(DefaultExitDelay)
	assert.False(t, h.store.Has(f.ID))
	assert.Equal(t, []string{f.ID}, h.store.PendingDeletes())

	n, ok := h.notices.last(MsgArchived)
	require.True(t, ok)
	require.NotNil(t, n.Action)
	assert.Equal(t, ActionLabelUndo, n.Action.Label)
	assert.Equal(t, f.ID, n.Action.FragmentID)

	h.wait(t)
	assert.Empty(t, h.fake.Calls(backendtest.OpDeleteFragment), "no delete inside the undo window")

	h.clock.Advance(DefaultUndoWindow)
	h.wait(t)
	calls := h.fake.Calls(backendtest.OpDeleteFragment)
	require.Len(t, calls, 1)
	assert.Equal(t, f.ID, calls[0].ID)
	assert.Empty(t, h.store.PendingDeletes())

	_, stored := h.fake.Fragment(f.ID)
	assert.False(t, stored)
}

func TestRemove_Twice(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")

	require.NoError(t, h.store.Remove(f.ID))
	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay)
	require.NoError(t, h.store.Remove(f.ID), "removing during the undo window is a no-op")

	err := h.store.Remove("missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	h.clock.Advance(DefaultUndoWindow)
	h.wait(t)
	assert.Len(t, h.fake.Calls(backendtest.OpDeleteFragment), 1)
}

func TestUndo_RestoresAtHead(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("keep")
	other := h.store.Create("other")
	h.clock.Advance(DefaultNewFlagFor)
	h.wait(t)

	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay)

	n, ok := h.notices.last(MsgArchived)
	require.True(t, ok)
	require.NoError(t, n.Action.Run())

	list := h.store.List()
	require.Len(t, list, 2)
	assert.Equal(t, f.ID, list[0].ID)
	assert.Equal(t, "keep", list[0].Content)
	assert.True(t, list[0].Flags.New)
	assert.False(t, list[0].Flags.PendingRemoval)
	assert.Equal(t, other.ID, list[1].ID)
	assert.Contains(t, h.notices.messages(), MsgRestored)

	h.clock.Advance(DefaultUndoWindow * 2)
	h.wait(t)
	assert.Empty(t, h.fake.Calls(backendtest.OpDeleteFragment))

	err := h.store.Undo(f.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "second undo has nothing to restore")
}

func TestUndo_DuringExitDelay(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")

	require.NoError(t, h.store.Remove(f.ID))
	require.NoError(t, h.store.Undo(f.ID))

	h.clock.Advance(DefaultExitDelay + DefaultUndoWindow)
	h.wait(t)

	got, ok := h.store.Get(f.ID)
	require.True(t, ok)
	assert.False(t, got.Flags.PendingRemoval)
	assert.Empty(t, h.fake.Calls(backendtest.OpDeleteFragment))
}

func TestUndo_AfterWindowFails(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")

	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay + DefaultUndoWindow)
	h.wait(t)

	assert.True(t, errors.Is(h.store.Undo(f.ID), errors.ErrNotFound))
	assert.False(t, h.store.Has(f.ID))
}

func TestRemove_StubDiscardedImmediately(t *testing.T) {
	h := newHarness(t, false)
	stub := h.store.CreateStub()

	require.NoError(t, h.store.Remove(stub.ID))
	h.clock.Advance(DefaultExitDelay)

	assert.False(t, h.store.Has(stub.ID))
	assert.Empty(t, h.store.PendingDeletes())
	_, archived := h.notices.last(MsgArchived)
	assert.False(t, archived)

	h.clock.Advance(DefaultUndoWindow)
	h.wait(t)
	assert.Empty(t, h.fake.Calls(backendtest.OpDeleteFragment))
}

func TestRemove_ClearsFocus(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")
	require.NoError(t, h.store.Focus(f.ID))

	_, ok := h.store.Focused()
	require.True(t, ok)

	require.NoError(t, h.store.Remove(f.ID))
	_, ok = h.store.Focused()
	assert.False(t, ok)

	assert.True(t, errors.Is(h.store.Focus(f.ID), errors.ErrNotFound), "can't focus a fragment on its way out")
	require.NoError(t, h.store.Focus(""))
	h.clock.Advance(DefaultExitDelay + DefaultUndoWindow)
	h.wait(t)
}

func TestRemove_DeleteFailureOnlyLogged(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")
	h.wait(t)
	h.fake.FailOn(backendtest.OpDeleteFragment, fmt.Errorf("gone away"))
	before := len(h.notices.messages())

	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay + DefaultUndoWindow)
	h.wait(t)

	for _, msg := range h.notices.messages()[before:] {
		assert.NotEqual(t, MsgSaveFailed, msg)
		assert.NotEqual(t, MsgUpdateFailed, msg)
	}
	assert.False(t, h.store.Has(f.ID))
}

func TestLateCompletionDoesNotResurrect(t *testing.T) {
	h := newHarness(t, false)
	release := h.fake.Hold()

	f := h.store.Create("ghost")
	require.NoError(t, h.store.Update(f.ID, fragment.Patch{Title: fragment.Some("edited")}))
	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay + DefaultUndoWindow)

	release()
	h.wait(t)

	assert.False(t, h.store.Has(f.ID))
	assert.Empty(t, h.store.List())

	ops := h.fake.Calls(backendtest.OpCreateFragment, backendtest.OpUpdateFragment, backendtest.OpDeleteFragment)
	require.Len(t, ops, 3)
	assert.Equal(t, backendtest.OpCreateFragment, ops[0].Op)
	assert.Equal(t, backendtest.OpUpdateFragment, ops[1].Op)
	assert.Equal(t, backendtest.OpDeleteFragment, ops[2].Op)
}

func TestFlush_CommitsRemovals(t *testing.T) {
	h := newHarness(t, false)
	a := h.store.Create("a")
	b := h.store.Create("b")
	stub := h.store.CreateStub()
	h.wait(t)

	require.NoError(t, h.store.Remove(a.ID))
	h.clock.Advance(DefaultExitDelay)
	require.NoError(t, h.store.Remove(b.ID))
	require.NoError(t, h.store.Remove(stub.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.store.Flush(ctx))

	deleted := h.fake.Calls(backendtest.OpDeleteFragment)
	require.Len(t, deleted, 2)
	assert.Zero(t, h.store.Len())
	assert.Empty(t, h.store.PendingDeletes())
	assert.Equal(t, 3, h.clock.Pending(), "only the new-flag timers stay armed")
}

// --- load / misc ---

func TestLoad_ReplacesAndAssignsColors(t *testing.T) {
	h := newHarness(t, false)
	h.store.Create("local only")

	h.store.Load([]fragment.Fragment{
		{ID: "b", Content: "b", Tags: []string{"zeta", "Python"}, Flags: fragment.Flags{New: true}},
		{ID: "a", Content: "a", Tags: []string{"eta"}},
	})
	h.wait(t)

	list := h.store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.False(t, list[0].Flags.New, "loaded fragments carry no flags")

	_, ok := h.store.Palette().Resolve("zeta")
	assert.True(t, ok)
	_, custom := h.store.Palette().Custom()["Python"]
	assert.False(t, custom, "built-in tags are never auto-assigned")
}

func TestLoad_SkipsFragmentsInUndoWindow(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("x")
	h.wait(t)
	require.NoError(t, h.store.Remove(f.ID))
	h.clock.Advance(DefaultExitDelay)

	frags, err := h.fake.ListFragments(context.Background())
	require.NoError(t, err)
	h.store.Load(frags)
	assert.False(t, h.store.Has(f.ID))

	h.clock.Advance(DefaultUndoWindow)
	h.wait(t)
}

func TestLoad_KeepsExitInProgress(t *testing.T) {
	h := newHarness(t, false)
	f := h.store.Create("leaving")
	h.wait(t)
	require.NoError(t, h.store.Remove(f.ID))

	frags, err := h.fake.ListFragments(context.Background())
	require.NoError(t, err)
	h.store.Load(frags)

	got, ok := h.store.Get(f.ID)
	require.True(t, ok)
	assert.True(t, got.Flags.PendingRemoval, "reload keeps the exit flag")

	h.clock.Advance(DefaultExitDelay)
	assert.False(t, h.store.Has(f.ID))
	assert.Equal(t, []string{f.ID}, h.store.PendingDeletes())

	h.clock.Advance(DefaultUndoWindow)
	h.wait(t)
	assert.Len(t, h.fake.Calls(backendtest.OpDeleteFragment), 1)
}

// --- colours ---

func TestResetTagColor_ReassignsTagInUse(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.store.CreateDraft(Draft{Content: "x", Tags: []string{"Zig"}})
	require.NoError(t, err)
	require.NoError(t, h.store.Palette().Set("Zig", 77, 55))

	assert.True(t, h.store.ResetTagColor(" Zig "))
	c, ok := h.store.Palette().Resolve("Zig")
	require.True(t, ok, "a tag still on a fragment keeps a colour")
	assert.Equal(t, palette.DefaultLightness, c.Lightness)

	h.wait(t)
	stored, ok := h.fake.Color("Zig")
	require.True(t, ok, "delete then re-assign reach the backend in order")
	assert.Equal(t, c.Hue, stored.Hue)
}

func TestResetTagColor_UnusedAndBuiltin(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.store.Palette().Set("Unused", 77, 55))
	assert.True(t, h.store.ResetTagColor("Unused"))
	_, ok := h.store.Palette().Resolve("Unused")
	assert.False(t, ok, "unused tags are not re-assigned")

	_, err := h.store.CreateDraft(Draft{Content: "x", Tags: []string{tagger.LabelPython}})
	require.NoError(t, err)
	require.NoError(t, h.store.Palette().Set(tagger.LabelPython, 123, 61))
	assert.True(t, h.store.ResetTagColor(tagger.LabelPython))
	_, custom := h.store.Palette().Custom()[tagger.LabelPython]
	assert.False(t, custom, "built-in tags fall back to their fixed colour")
	want, _ := palette.BuiltinColor(tagger.LabelPython)
	got, ok := h.store.Palette().Resolve(tagger.LabelPython)
	require.True(t, ok)
	assert.Equal(t, want, got)

	assert.False(t, h.store.ResetTagColor("Never"))
	h.wait(t)
}

// --- queries ---

func TestQuery(t *testing.T) {
	h := newHarness(t, false)
	a, err := h.store.CreateDraft(Draft{Title: "Alpha", Content: "Write idiomatic code", Tags: []string{"Go"}})
	require.NoError(t, err)
	b, err := h.store.CreateDraft(Draft{Title: "Beta", Content: "Review the DIFF", Tags: []string{"Review"}})
	require.NoError(t, err)
	c, err := h.store.CreateDraft(Draft{Title: "Gamma", Content: "plain", Tags: []string{"Docs"}})
	require.NoError(t, err)
	stub := h.store.CreateStub()
	require.NoError(t, h.store.Update(stub.ID, fragment.Patch{
		Content: fragment.Some("scratch text"),
		Tags:    fragment.Some([]string{"Scratch"}),
	}))

	tests := []struct {
		name string
		flt  Filter
		want []string
	}{
		{"no filter hides stubs", Filter{}, []string{c.ID, b.ID, a.ID}},
		{"include stubs", Filter{IncludeEphemeral: true}, []string{stub.ID, c.ID, b.ID, a.ID}},
		{"tags match any", Filter{Tags: []string{"Go", "Docs"}}, []string{c.ID, a.ID}},
		{"unknown tag", Filter{Tags: []string{"Nope"}}, []string{}},
		{"search is case-insensitive", Filter{Search: "diff"}, []string{b.ID}},
		{"search matches title", Filter{Search: "ALPHA"}, []string{a.ID}},
		{"search matches tag only", Filter{Search: "docs"}, []string{c.ID}},
		{"search and tags combine", Filter{Search: "review", Tags: []string{"Go", "Review"}}, []string{b.ID}},
		{"blank search matches all", Filter{Search: "   "}, []string{c.ID, b.ID, a.ID}},
		{"stub hidden from search", Filter{Search: "scratch"}, []string{}},
		{"stub found with include", Filter{Search: "scratch", IncludeEphemeral: true}, []string{stub.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.store.VisibleIDs(tt.flt))

			got := h.store.Query(tt.flt)
			require.Len(t, got, len(tt.want))
			for i, f := range got {
				assert.Equal(t, tt.want[i], f.ID, "Query and VisibleIDs share an order")
			}
		})
	}

	assert.Equal(t, []string{"Docs", "Go", "Review"}, h.store.AllTags(), "sorted, stubs excluded")
	h.wait(t)
}

func TestSetAutoTagging(t *testing.T) {
	h := newHarness(t, false)
	assert.False(t, h.store.AutoTagging())

	h.store.SetAutoTagging(true)
	f := h.store.Create("SELECT * FROM users")
	assert.Contains(t, f.Tags, tagger.LabelSQL)
	h.wait(t)
}

func TestClearStack(t *testing.T) {
	h := newHarness(t, false)
	one := 1
	a, err := h.store.CreateDraft(Draft{Content: "a", StackID: "s1", Position: &one})
	require.NoError(t, err)
	b, err := h.store.CreateDraft(Draft{Content: "b", StackID: "s1"})
	require.NoError(t, err)
	c, err := h.store.CreateDraft(Draft{Content: "c", StackID: "s2"})
	require.NoError(t, err)

	ids := h.store.ClearStack("s1")
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	got, _ := h.store.Get(a.ID)
	assert.Nil(t, got.Stack)
	got, _ = h.store.Get(c.ID)
	assert.Equal(t, "s2", got.StackID())
	assert.Empty(t, h.store.Query(Filter{StackID: "s1"}))
	h.wait(t)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t, false)
	var count int
	unsubscribe := h.store.Subscribe(func(Notice) { count++ })

	h.store.Notify(Notice{Level: LevelInfo, Message: "one"})
	unsubscribe()
	h.store.Notify(Notice{Level: LevelInfo, Message: "two"})

	assert.Equal(t, 1, count)
}

func TestNilBackendStaysInMemory(t *testing.T) {
	s := New(nil, nil, Options{Clock: NewManualClock(time.Unix(0, 0))})
	f := s.Create("memory")
	require.NoError(t, s.Update(f.ID, fragment.Patch{Title: fragment.Some("t")}))
	require.NoError(t, s.Remove(f.ID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
	assert.Zero(t, s.Len())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "success", LevelSuccess.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "info", LevelInfo.String())
}

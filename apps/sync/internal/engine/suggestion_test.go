package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("u%02d@x.io", i))
	}
	return out
}

func startGenerator(t *testing.T, h *harness, friends []string) (*SuggestionGenerator, <-chan []model.Profile) {
	t.Helper()
	out, ch := newTestGate[[]model.Profile](4)
	g := newSuggestionGenerator(context.Background(), h.deps, Principal{Email: "me@x.io"}, out)
	t.Cleanup(g.Stop)
	g.SetFriends(friends)
	g.SetReceived(nil)
	g.SetSent(nil)
	return g, ch
}

func TestSuggestion_QuotaReached(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")
	h.addProfiles(t, numbered(9)...)

	_, ch := startGenerator(t, h, nil)
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, numbered(5), emailsOf(got))
}

func TestSuggestion_DirectoryShorterThanQuota(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")
	h.addProfiles(t, numbered(3)...)

	g, ch := startGenerator(t, h, nil)
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, numbered(3), emailsOf(got))

	current, scanned := g.Current()
	assert.True(t, scanned)
	assert.Len(t, current, 3)
}

func TestSuggestion_EmptyDirectoryTerminates(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")

	_, ch := startGenerator(t, h, nil)
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Empty(t, got)
}

func TestSuggestion_ExclusionCoveringWholePages(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")
	all := numbered(9)
	h.addProfiles(t, all...)

	_, ch := startGenerator(t, h, all[:7])
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, all[7:], emailsOf(got))
}

func TestSuggestion_MaxPagesGuard(t *testing.T) {
	cfg := testConfig()
	cfg.SuggestionMaxPages = 2
	h := newHarness(t, cfg)
	h.addProfiles(t, "me@x.io")
	all := numbered(9)
	h.addProfiles(t, all...)

	// 前两页全部被排除，达到页数上限后停止
	_, ch := startGenerator(t, h, all[:6])
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Empty(t, got)
}

func TestSuggestion_WaitsForAllExclusionSets(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io", "u01@x.io")

	out, ch := newTestGate[[]model.Profile](4)
	g := newSuggestionGenerator(context.Background(), h.deps, Principal{Email: "me@x.io"}, out)
	defer g.Stop()
	g.SetFriends(nil)
	g.SetReceived(nil)

	select {
	case <-ch:
		t.Fatal("scan started before sent requests were known")
	case <-time.After(100 * time.Millisecond):
	}
	_, scanned := g.Current()
	assert.False(t, scanned)

	g.SetSent(nil)
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, []string{"u01@x.io"}, emailsOf(got))
}

func TestSuggestion_PrunesInPlaceWithoutRescan(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")
	h.addProfiles(t, numbered(9)...)

	g, ch := startGenerator(t, h, nil)
	waitFor(t, ch, hasEmails(numbered(5)...))

	g.SetSent([]string{"u02@x.io"})
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, []string{"u01@x.io", "u03@x.io", "u04@x.io", "u05@x.io"}, emailsOf(got))

	// 没有新剔除时不重新发布，也不补位
	g.SetSent([]string{"u02@x.io", "u09@x.io"})
	select {
	case v := <-ch:
		t.Fatalf("unexpected republish: %v", emailsOf(v))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_SuggestionsFollowRelationships(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io", "carol@x.io", "dave@x.io")
	alice := h.login(t, "alice@x.io")

	suggestions, cancel := alice.WatchSuggestions()
	defer cancel()
	waitFor(t, suggestions, hasEmails("bob@x.io", "carol@x.io", "dave@x.io"))

	require.NoError(t, alice.AddRequest(ctx, "bob@x.io"))
	waitFor(t, suggestions, hasEmails("carol@x.io", "dave@x.io"))

	carol := h.login(t, "carol@x.io")
	require.NoError(t, carol.AddRequest(ctx, "alice@x.io"))
	waitFor(t, suggestions, hasEmails("dave@x.io"))

	ok, err := alice.AcceptRequest(ctx, "carol@x.io")
	require.NoError(t, err)
	require.True(t, ok)
	friends, cancelFriends := alice.WatchFriends()
	defer cancelFriends()
	waitFor(t, friends, hasEmails("carol@x.io"))

	current, scanned := alice.Suggestions()
	assert.True(t, scanned)
	assert.Equal(t, []string{"dave@x.io"}, emailsOf(current))
}

func TestSession_SearchDirectory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "albert@x.io", "bob@x.io")
	alice := h.login(t, "alice@x.io")

	got, err := alice.SearchDirectory(ctx, "AL")
	require.NoError(t, err)
	assert.Equal(t, []string{"albert@x.io"}, emailsOf(got))

	_, err = alice.SearchDirectory(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSuggestion_ScanRetriesAfterFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")
	h.addProfiles(t, numbered(2)...)

	var calls atomic.Int32
	repo := &fakeProfiles{IProfileRepository: h.repos.Profiles}
	repo.listAfterFunc = func(ctx context.Context, cursor repository.ProfileCursor, limit int) ([]*model.Profile, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("directory unavailable")
		}
		return h.repos.Profiles.ListAfter(ctx, cursor, limit)
	}

	out, ch := newTestGate[[]model.Profile](4)
	g := newSuggestionGenerator(context.Background(), h.withProfiles(repo), Principal{Email: "me@x.io"}, out)
	defer g.Stop()
	g.SetFriends(nil)
	g.SetReceived(nil)
	g.SetSent(nil)

	// 排除集合之后不再变化，只能靠重试恢复
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	assert.Equal(t, numbered(2), emailsOf(got))

	current, scanned := g.Current()
	assert.True(t, scanned)
	assert.Len(t, current, 2)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestSuggestion_StopDuringRetryBackoff(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addProfiles(t, "me@x.io")

	failed := make(chan struct{}, 1)
	repo := &fakeProfiles{IProfileRepository: h.repos.Profiles}
	repo.listAfterFunc = func(context.Context, repository.ProfileCursor, int) ([]*model.Profile, error) {
		select {
		case failed <- struct{}{}:
		default:
		}
		return nil, errors.New("directory unavailable")
	}

	out, _ := newTestGate[[]model.Profile](4)
	g := newSuggestionGenerator(context.Background(), h.withProfiles(repo), Principal{Email: "me@x.io"}, out)
	g.SetFriends(nil)
	g.SetReceived(nil)
	g.SetSent(nil)

	select {
	case <-failed:
	case <-time.After(waitTimeout):
		t.Fatal("scan never started")
	}

	stopped := make(chan struct{})
	go func() {
		g.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop blocked on a retrying scan")
	}
	_, scanned := g.Current()
	assert.False(t, scanned)
}

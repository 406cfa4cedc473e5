package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SocialSync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProfiles 解析集合恰为 blockOn 时阻塞，直到 release 关闭
func blockingProfiles(h *harness, blockOn string, entered chan<- struct{}, release <-chan struct{}) *fakeProfiles {
	repo := &fakeProfiles{IProfileRepository: h.repos.Profiles}
	repo.batchGetFunc = func(ctx context.Context, emails []string) ([]*model.Profile, error) {
		if strings.Join(emails, ",") == blockOn {
			entered <- struct{}{}
			<-release
		}
		return h.repos.Profiles.BatchGetByEmails(ctx, emails)
	}
	return repo
}

func TestProfileList_StaleRemoveDoesNotOverwriteNewerSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "p@x.io", "q@x.io", "r@x.io")

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	deps := h.withProfiles(blockingProfiles(h, "r@x.io", entered, release))

	out, ch := newTestGate[[]model.Profile](8)
	var lastChange atomic.Value
	l := newProfileList(deps, "received", out, func(emails []string) { lastChange.Store(emails) })

	l.set(ctx, []string{"p@x.io", "r@x.io"})
	waitFor(t, ch, hasEmails("p@x.io", "r@x.io"))

	// 本地乐观移除 p，解析被卡住
	removed := make(chan struct{})
	go func() {
		l.remove(ctx, "p@x.io")
		close(removed)
	}()
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("remove never reached the resolver")
	}

	// 此时订阅回调送来新的申请 q
	l.set(ctx, []string{"q@x.io", "r@x.io"})
	waitFor(t, ch, hasEmails("q@x.io", "r@x.io"))

	close(release)
	<-removed

	select {
	case v := <-ch:
		t.Fatalf("stale snapshot published: %v", emailsOf(v))
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, []string{"q@x.io", "r@x.io"}, l.current())
	assert.Equal(t, []string{"q@x.io", "r@x.io"}, lastChange.Load())
}

func TestProfileList_RemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "p@x.io")

	out, ch := newTestGate[[]model.Profile](4)
	l := newProfileList(h.deps, "received", out, nil)
	l.set(ctx, []string{"p@x.io"})
	waitFor(t, ch, hasEmails("p@x.io"))

	l.remove(ctx, "nobody@x.io")
	select {
	case v := <-ch:
		t.Fatalf("unexpected publish: %v", emailsOf(v))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProfileList_RefreshBeforeFirstSetIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())

	out, ch := newTestGate[[]model.Profile](4)
	l := newProfileList(h.deps, "links", out, nil)
	l.refresh(ctx)
	select {
	case v := <-ch:
		t.Fatalf("unexpected publish: %v", emailsOf(v))
	case <-time.After(100 * time.Millisecond):
	}

	l.set(ctx, nil)
	got := waitFor(t, ch, func([]model.Profile) bool { return true })
	require.Empty(t, got)
}

package engine

import (
	"context"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/memstore"
	"SocialSync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) online(t *testing.T, email string) bool {
	t.Helper()
	rec, err := h.channel.Get(context.Background(), email)
	require.NoError(t, err)
	return rec.Online
}

func TestSession_OperationsRequirePrincipal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	s := h.session(t, "dev-1")

	assert.ErrorIs(t, s.AddRequest(ctx, "bob@x.io"), ErrNoPrincipal)
	_, err := s.AcceptRequest(ctx, "bob@x.io")
	assert.ErrorIs(t, err, ErrNoPrincipal)
	_, err = s.SendMessage(ctx, "bob@x.io", "hi")
	assert.ErrorIs(t, err, ErrNoPrincipal)
	assert.ErrorIs(t, s.BeginWatchingPeer(ctx, "bob@x.io"), ErrNoPrincipal)
	assert.ErrorIs(t, s.SetPresence(ctx, true), ErrNoPrincipal)
	assert.ErrorIs(t, s.WatchPresence(ctx, "bob@x.io"), ErrNoPrincipal)
	assert.Nil(t, s.Principal())

	assert.ErrorIs(t, s.Reset(ctx, &Principal{ID: "p"}), ErrInvalidArgument)
}

func TestSession_ResetDoesNotLeakPreviousPrincipal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io", "carol@x.io", "dave@x.io", "erin@x.io")
	h.store.Seed(ctx, memstore.Seed{
		Owners: []model.LinkOwner{{Id: "oa", Email: "alice@x.io"}, {Id: "ob", Email: "bob@x.io"}},
		Entries: []model.LinkEntry{
			{OwnerId: "oa", OwnerEmail: "alice@x.io", Email: "carol@x.io"},
			{OwnerId: "ob", OwnerEmail: "bob@x.io", Email: "dave@x.io"},
		},
	})

	s := h.session(t, "dev-1")
	friends, cancel := s.WatchFriends()
	defer cancel()

	require.NoError(t, s.Reset(ctx, &Principal{ID: "pid-alice", Email: "alice@x.io"}))
	waitFor(t, friends, hasEmails("carol@x.io"))
	require.NoError(t, s.BeginWatchingPeer(ctx, "carol@x.io"))
	assert.True(t, h.online(t, "alice@x.io"))

	require.NoError(t, s.Reset(ctx, &Principal{ID: "pid-bob", Email: "bob@x.io"}))
	assert.Empty(t, s.WatchedPeers(), "conversation logs are discarded on switch")
	assert.False(t, h.online(t, "alice@x.io"))
	assert.True(t, h.online(t, "bob@x.io"))

	waitFor(t, friends, func(ps []model.Profile) bool {
		require.NotContains(t, emailsOf(ps), "carol@x.io")
		return hasEmails("dave@x.io")(ps)
	})

	// 上一个主体的数据变化不再送达
	h.store.Seed(ctx, memstore.Seed{Entries: []model.LinkEntry{
		{OwnerId: "oa", OwnerEmail: "alice@x.io", Email: "erin@x.io"},
	}})
	select {
	case v := <-friends:
		t.Fatalf("stale update delivered after reset: %v", emailsOf(v))
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, "bob@x.io", s.Principal().Email)
}

func TestSession_ResetSamePrincipalIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io")
	s := h.login(t, "alice@x.io")

	friends, cancel := s.WatchFriends()
	waitFor(t, friends, hasEmails())
	cancel()

	require.NoError(t, s.Reset(ctx, &Principal{ID: "pid-alice@x.io", Email: "alice@x.io"}))

	// 缓存的快照仍在，说明没有重建
	again, cancelAgain := s.WatchFriends()
	defer cancelAgain()
	select {
	case v := <-again:
		assert.Empty(t, v)
	default:
		t.Fatal("snapshot was cleared by a no-op reset")
	}
}

func TestSession_LogoutClearsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io")
	s := h.login(t, "alice@x.io")

	principals, cancelP := s.WatchPrincipal()
	defer cancelP()
	waitFor(t, principals, func(p PrincipalState) bool { return p.Principal != nil })

	require.NoError(t, s.Reset(ctx, nil))
	waitFor(t, principals, func(p PrincipalState) bool { return p.Principal == nil })
	assert.False(t, h.online(t, "alice@x.io"))
	assert.ErrorIs(t, s.AddRequest(ctx, "bob@x.io"), ErrNoPrincipal)

	friends, cancel := s.WatchFriends()
	defer cancel()
	select {
	case v := <-friends:
		t.Fatalf("snapshot survived logout: %v", v)
	default:
	}
}

func TestSession_DisconnectFlipsPresenceOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	alice := h.login(t, "alice@x.io")
	bob := h.login(t, "bob@x.io")

	require.NoError(t, bob.WatchPresence(ctx, "alice@x.io"))
	defer bob.UnwatchPresence("alice@x.io")
	states, cancelStates := bob.WatchPresenceMap()
	defer cancelStates()
	waitFor(t, states, func(m PresenceMap) bool { return m["alice@x.io"].Online })

	// 不调用登出，直接断开连接
	alice.Close(ctx)
	waitFor(t, states, func(m PresenceMap) bool {
		rec, ok := m["alice@x.io"]
		return ok && !rec.Online
	})
	assert.False(t, h.online(t, "alice@x.io"))
	assert.ErrorIs(t, alice.Reset(ctx, &Principal{ID: "x", Email: "alice@x.io"}), ErrSessionClosed)
}

func TestSession_SetPresenceAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io")
	s := h.login(t, "alice@x.io")

	require.NoError(t, s.SetPresence(ctx, false))
	assert.False(t, h.online(t, "alice@x.io"))
	require.NoError(t, s.SetPresence(ctx, true))
	require.NoError(t, s.Heartbeat(ctx))
	assert.True(t, h.online(t, "alice@x.io"))
}

func TestSession_BindFollowsIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	s := h.session(t, "dev-1")

	identity := NewIdentity()
	unbind := s.Bind(ctx, identity)
	defer unbind()

	identity.Set(&Principal{ID: "pid-alice", Email: "alice@x.io"})
	require.NotNil(t, s.Principal())
	assert.Equal(t, "alice@x.io", s.Principal().Email)
	assert.Equal(t, "dev-1", s.Principal().DeviceID)

	identity.Set(nil)
	assert.Nil(t, s.Principal())
}

func TestSession_ProfileWatchSeesOwnUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io")
	s := h.login(t, "alice@x.io")

	profiles, cancel := s.WatchProfile()
	defer cancel()
	waitFor(t, profiles, func(p model.Profile) bool { return p.Email == "alice@x.io" })

	svc := h.engine.Profiles(nil)
	require.NoError(t, svc.UpdateNickname(ctx, "alice@x.io", "Alice W"))
	got := waitFor(t, profiles, func(p model.Profile) bool { return p.DisplayName == "Alice W" })
	assert.Equal(t, "alice w", got.SearchKey)
}

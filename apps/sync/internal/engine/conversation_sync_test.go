package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"SocialSync/apps/sync/internal/memstore"
	"SocialSync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, h *harness, convID, a, b string, seqs ...int64) {
	t.Helper()
	msgs := make([]model.Message, 0, len(seqs))
	for _, s := range seqs {
		msgs = append(msgs, model.Message{
			Seq:            s,
			ConversationId: convID,
			SenderEmail:    a,
			Text:           "history",
			SentAt:         time.Unix(s, 0),
		})
	}
	h.store.Seed(context.Background(), memstore.Seed{
		Conversations: []model.ConversationIndex{{
			ConversationId: convID, ParticipantA: a, ParticipantB: b, PairKey: model.PairKey(a, b),
		}},
		Messages: msgs,
	})
}

func seqRange(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

func TestConversation_MutualWatchCreatesSingleIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	alice := h.login(t, "alice@x.io")
	bob := h.login(t, "bob@x.io")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = alice.BeginWatchingPeer(ctx, "bob@x.io") }()
	go func() { defer wg.Done(); errs[1] = bob.BeginWatchingPeer(ctx, "alice@x.io") }()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	convs, err := h.repos.Conversations.FindByPair(ctx, "alice@x.io", "bob@x.io")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	aLog, cancelA, err := alice.WatchPeer("bob@x.io")
	require.NoError(t, err)
	defer cancelA()
	bLog, cancelB, err := bob.WatchPeer("alice@x.io")
	require.NoError(t, err)
	defer cancelB()

	a := waitFor(t, aLog, func(PeerLog) bool { return true })
	b := waitFor(t, bLog, func(PeerLog) bool { return true })
	assert.Equal(t, convs[0].ConversationId, a.ConversationID)
	assert.Equal(t, a.ConversationID, b.ConversationID)
	assert.Empty(t, a.Messages)
	assert.False(t, a.HasMore)
}

func TestConversation_RepeatedBeginWatchingIsSuppressed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	alice := h.login(t, "alice@x.io")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, alice.BeginWatchingPeer(ctx, "bob@x.io"))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"bob@x.io"}, alice.WatchedPeers())
	convs, err := h.repos.Conversations.FindByPair(ctx, "alice@x.io", "bob@x.io")
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	_, _, err = alice.WatchPeer("carol@x.io")
	assert.ErrorIs(t, err, ErrPeerNotWatched)
}

func TestConversation_TailAndPaginationCoverEveryMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	seedConversation(t, h, "conv-ab", "bob@x.io", "alice@x.io", seqRange(1, 12)...)

	alice := h.login(t, "alice@x.io")
	bob := h.login(t, "bob@x.io")
	require.NoError(t, alice.BeginWatchingPeer(ctx, "bob@x.io"))

	logs, cancel, err := alice.WatchPeer("bob@x.io")
	require.NoError(t, err)
	defer cancel()

	first := waitFor(t, logs, func(PeerLog) bool { return true })
	assert.Equal(t, "conv-ab", first.ConversationID)
	assert.Equal(t, seqRange(8, 12), seqsOf(first.Messages))
	assert.True(t, first.HasMore)

	// 一次写入多于窗口的新消息，尾部按游标补齐不留空洞
	var sent []int64
	for i := 0; i < 8; i++ {
		msg, err := bob.SendMessage(ctx, "alice@x.io", "hi")
		require.NoError(t, err)
		assert.Equal(t, "conv-ab", msg.ConversationId)
		sent = append(sent, msg.Seq)
	}
	waitFor(t, logs, func(l PeerLog) bool { return len(l.Messages) == 5+len(sent) })

	older, err := alice.FetchOlderThan(ctx, 0, "bob@x.io")
	require.NoError(t, err)
	assert.Equal(t, seqRange(3, 7), seqsOf(older))

	older, err = alice.FetchOlderThan(ctx, 0, "bob@x.io")
	require.NoError(t, err)
	assert.Equal(t, seqRange(1, 2), seqsOf(older))

	older, err = alice.FetchOlderThan(ctx, 0, "bob@x.io")
	require.NoError(t, err)
	assert.Empty(t, older, "empty page means no more history")

	final := waitFor(t, logs, func(l PeerLog) bool { return len(l.Messages) == 12+len(sent) })
	want := append(seqRange(1, 12), sent...)
	assert.Equal(t, want, seqsOf(final.Messages))
	assert.False(t, final.HasMore)
}

func TestConversation_FetchOlderThanExplicitCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	seedConversation(t, h, "conv-ab", "alice@x.io", "bob@x.io", seqRange(1, 9)...)
	alice := h.login(t, "alice@x.io")

	// 未订阅也可翻页
	page, err := alice.FetchOlderThan(ctx, 9, "bob@x.io")
	require.NoError(t, err)
	assert.Equal(t, seqRange(4, 8), seqsOf(page))

	page, err = alice.FetchOlderThan(ctx, 0, "carol@x.io")
	require.NoError(t, err)
	assert.Empty(t, page, "no conversation yet is an empty result")

	convs, err := h.repos.Conversations.FindByPair(ctx, "alice@x.io", "carol@x.io")
	require.NoError(t, err)
	assert.Empty(t, convs, "fetching history never creates a conversation")
}

func TestConversation_SendCreatesIndexOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	alice := h.login(t, "alice@x.io")
	bob := h.login(t, "bob@x.io")

	sentCh, cancel := alice.WatchMessageSent()
	defer cancel()

	m1, err := alice.SendMessage(ctx, "bob@x.io", "hello")
	require.NoError(t, err)
	m2, err := bob.SendMessage(ctx, "alice@x.io", "hey")
	require.NoError(t, err)
	assert.Equal(t, m1.ConversationId, m2.ConversationId)
	assert.Less(t, m1.Seq, m2.Seq)

	ev := waitFor(t, sentCh, func(MessageSent) bool { return true })
	assert.Equal(t, "bob@x.io", ev.Peer)
	assert.Equal(t, m1.Seq, ev.Message.Seq)

	convs, err := h.repos.Conversations.FindByPair(ctx, "bob@x.io", "alice@x.io")
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	_, err = alice.SendMessage(ctx, "bob@x.io", "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = alice.SendMessage(ctx, "alice@x.io", "me")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConversation_DuplicateIndexIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig())
	h.addProfiles(t, "alice@x.io", "bob@x.io")
	seedConversation(t, h, "conv-1", "alice@x.io", "bob@x.io")
	seedConversation(t, h, "conv-2", "bob@x.io", "alice@x.io")
	alice := h.login(t, "alice@x.io")

	err := alice.BeginWatchingPeer(ctx, "bob@x.io")
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Empty(t, alice.WatchedPeers())

	_, err = alice.SendMessage(ctx, "bob@x.io", "hello")
	require.ErrorIs(t, err, ErrIntegrity)

	for _, id := range []string{"conv-1", "conv-2"} {
		msgs, err := h.repos.Conversations.ListLatest(ctx, id, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs, "nothing written on integrity failure")
	}
}

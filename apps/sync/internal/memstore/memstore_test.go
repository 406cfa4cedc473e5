package memstore

import (
	"context"
	"errors"
	"testing"

	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	repos := s.Repositories()
	require.NoError(t, repos.Requests.Create(ctx, &model.FriendRequest{Id: "r1", SenderEmail: "b@x.io", ReceiverEmail: "a@x.io"}))

	boom := errors.New("boom")
	err := repos.Batcher.Batch(ctx, func(tx repository.Tx) error {
		owners, err := tx.EnsureLinkOwner("a@x.io")
		if err != nil {
			return err
		}
		if err := tx.AddLinkEntry(owners[0], "b@x.io"); err != nil {
			return err
		}
		if err := tx.DeleteRequest(&model.FriendRequest{Id: "r1", SenderEmail: "b@x.io", ReceiverEmail: "a@x.io"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	owners, err := repos.Links.GetOwners(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Empty(t, owners)
	reqs, err := repos.Requests.ListByReceiver(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestEnsureConversation_CompareAndCreate(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	repos := s.Repositories()

	for _, id := range []string{"c1", "c2"} {
		id := id
		require.NoError(t, repos.Batcher.Batch(ctx, func(tx repository.Tx) error {
			_, err := tx.EnsureConversation(id, "b@x.io", "a@x.io")
			return err
		}))
	}

	convs, err := repos.Conversations.FindByPair(ctx, "a@x.io", "b@x.io")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ConversationId)
	assert.Equal(t, "a@x.io", convs[0].Peer("b@x.io"))
}

func TestAddLinkEntry_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	repos := s.Repositories()

	add := func(tx repository.Tx) error {
		owners, err := tx.EnsureLinkOwner("a@x.io")
		if err != nil {
			return err
		}
		return tx.AddLinkEntry(owners[0], "b@x.io")
	}
	require.NoError(t, repos.Batcher.Batch(ctx, add))
	require.NoError(t, repos.Batcher.Batch(ctx, add))

	owners, err := repos.Links.GetOwners(ctx, "a@x.io")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	entries, err := repos.Links.ListEntries(ctx, owners[0].Id)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMessages_Cursors(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	var msgs []model.Message
	for seq := int64(1); seq <= 5; seq++ {
		msgs = append(msgs, model.Message{Seq: seq, ConversationId: "c1"})
	}
	s.Seed(ctx, Seed{Messages: msgs})
	repo := s.Repositories().Conversations

	latest, err := repo.ListLatest(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, seqs(latest))

	before, err := repo.ListBefore(ctx, "c1", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, seqs(before))

	after, err := repo.ListAfter(ctx, "c1", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, seqs(after))
}

func TestProfiles_ListAfterAndSearch(t *testing.T) {
	ctx := context.Background()
	repo := New(nil).Repositories().Profiles
	for _, p := range []model.Profile{
		{PrincipalId: "1", Email: "b@x.io", DisplayName: "Anna"},
		{PrincipalId: "2", Email: "a@x.io", DisplayName: "anna"},
		{PrincipalId: "3", Email: "c@x.io", DisplayName: "Bob"},
	} {
		p := p
		require.NoError(t, repo.Create(ctx, &p))
	}
	dup := model.Profile{PrincipalId: "9", Email: "a@x.io"}
	require.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrDuplicateKey)

	page, err := repo.ListAfter(ctx, repository.ProfileCursor{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a@x.io", page[0].Email)
	assert.Equal(t, "b@x.io", page[1].Email)

	page, err = repo.ListAfter(ctx, repository.ProfileCursor{SearchKey: page[1].SearchKey, Email: page[1].Email}, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c@x.io", page[0].Email)

	found, err := repo.SearchByPrefix(ctx, "AN", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func seqs(msgs []*model.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Seq)
	}
	return out
}

package store_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/internal/store"
)

func newTestDatabase(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.NewDatabase(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, db *store.Database, name string) int64 {
	t.Helper()
	id, err := db.CreateUser(name, "hash-"+name, false)
	require.NoError(t, err)
	return id
}

func TestUserLifecycle(t *testing.T) {
	db := newTestDatabase(t)

	id, err := db.CreateUser("alice", "hash1", false)
	require.NoError(t, err)

	byName, err := db.UserByName("alice")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, "hash1", byName.PasswordHash)
	assert.False(t, byName.IsAdmin)
	assert.False(t, byName.IsBanned)

	byID, err := db.UserByID(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Name)

	require.NoError(t, db.UpdatePassword(id, "hash2"))
	updated, err := db.UserByID(id)
	require.NoError(t, err)
	assert.Equal(t, "hash2", updated.PasswordHash)

	require.NoError(t, db.SetBanned(id, true))
	banned, err := db.UserByID(id)
	require.NoError(t, err)
	assert.True(t, banned.IsBanned)

	require.NoError(t, db.DeleteUser(id))
	_, err = db.UserByID(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Deleting an account must work even after it has sent messages and shared
// files; those rows reference the user and go with it.
func TestDeleteUserWithHistory(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	bob := mustCreateUser(t, db, "bob")

	groupID, err := db.CreateGroup("general", false, []int64{alice, bob})
	require.NoError(t, err)
	_, err = db.AppendMessage(groupID, alice, "hello")
	require.NoError(t, err)
	_, err = db.AppendMessage(groupID, bob, "hi alice")
	require.NoError(t, err)
	require.NoError(t, db.CreateFileRecord(store.FileRecord{
		ID:       "file-a",
		GroupID:  groupID,
		SenderID: alice,
		Name:     "notes.txt",
		Path:     "/tmp/blobs/a",
		Size:     1,
	}))

	require.NoError(t, db.DeleteUser(alice))

	_, err = db.UserByID(alice)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.FileRecord("file-a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Other members' history survives.
	msgs, err := db.History(groupID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].SenderName)
}

func TestUserNameUnique(t *testing.T) {
	db := newTestDatabase(t)
	mustCreateUser(t, db, "alice")
	_, err := db.CreateUser("alice", "other", false)
	assert.Error(t, err)
}

func TestUserNotFound(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.UserByName("ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, db.UpdatePassword(99, "x"), store.ErrNotFound)
	assert.ErrorIs(t, db.DeleteUser(99), store.ErrNotFound)
}

func TestGroupMembership(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	bob := mustCreateUser(t, db, "bob")

	groupID, err := db.CreateGroup("general", false, []int64{alice})
	require.NoError(t, err)

	member, err := db.IsMember(groupID, alice)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = db.IsMember(groupID, bob)
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, db.AddMember(groupID, bob))
	member, err = db.IsMember(groupID, bob)
	require.NoError(t, err)
	assert.True(t, member)

	// Adding an existing member is a no-op, not an error.
	require.NoError(t, db.AddMember(groupID, bob))

	require.NoError(t, db.RemoveMember(groupID, bob))
	member, err = db.IsMember(groupID, bob)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestAllGroups(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	bob := mustCreateUser(t, db, "bob")

	g1, err := db.CreateGroup("general", false, []int64{alice, bob})
	require.NoError(t, err)
	g2, err := db.CreateGroup("alice-bob", true, []int64{alice, bob})
	require.NoError(t, err)

	groups, members, err := db.AllGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byID := map[int64]store.Group{}
	for _, g := range groups {
		byID[g.ID] = g
	}
	assert.False(t, byID[g1].Private)
	assert.True(t, byID[g2].Private)
	assert.ElementsMatch(t, []int64{alice, bob}, members[g1])
	assert.ElementsMatch(t, []int64{alice, bob}, members[g2])
}

func TestHistoryChronologicalWindow(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	groupID, err := db.CreateGroup("general", false, []int64{alice})
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := db.AppendMessage(groupID, alice, fmt.Sprintf("msg-%d", i))
		require.NoError(t, err)
	}

	// The window holds the MOST RECENT messages, oldest first.
	msgs, err := db.History(groupID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-3", msgs[0].Body)
	assert.Equal(t, "msg-4", msgs[1].Body)
	assert.Equal(t, "msg-5", msgs[2].Body)
	assert.Equal(t, "alice", msgs[0].SenderName)
	assert.Equal(t, groupID, msgs[0].GroupID)
}

func TestHistoryEmptyGroup(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	groupID, err := db.CreateGroup("quiet", false, []int64{alice})
	require.NoError(t, err)

	msgs, err := db.History(groupID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFileRecords(t *testing.T) {
	db := newTestDatabase(t)
	alice := mustCreateUser(t, db, "alice")
	groupID, err := db.CreateGroup("general", false, []int64{alice})
	require.NoError(t, err)

	rec := store.FileRecord{
		ID:       "file-1",
		GroupID:  groupID,
		SenderID: alice,
		Name:     "notes.txt",
		Path:     "/tmp/blobs/abc",
		Size:     42,
	}
	require.NoError(t, db.CreateFileRecord(rec))

	got, err := db.FileRecord("file-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.Size, got.Size)

	_, err = db.FileRecord("missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

package groupdir

import (
	"log/slog"
	"sync"
	"time"

	"github.com/yhaddad/go-relay/pkg/state"
)

// InMemoryDirectory is the authoritative runtime view of group membership.
// It mirrors persistence: handlers write the store first, then this
// directory, and every permission check reads the member set fresh.
type InMemoryDirectory struct {
	mu     sync.RWMutex
	byID   map[int64]*state.Group
	byName map[string]int64
	logger *slog.Logger
}

func NewInMemoryDirectory(logger *slog.Logger) *InMemoryDirectory {
	return &InMemoryDirectory{
		byID:   make(map[int64]*state.Group),
		byName: make(map[string]int64),
		logger: logger.With(slog.String("component", "group_directory")),
	}
}

var _ state.GroupDirectory = (*InMemoryDirectory)(nil)

// snapshot copies a group so callers never hold a pointer into state that
// is still mutated under the directory's lock. Must be called with the lock
// held.
func snapshot(g *state.Group) *state.Group {
	members := make(map[int64]struct{}, len(g.Members))
	for uid := range g.Members {
		members[uid] = struct{}{}
	}
	copied := *g
	copied.Members = members
	return &copied
}

func (d *InMemoryDirectory) Create(id int64, name string, private bool, memberIDs []int64) (*state.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byName[name]; taken {
		return nil, state.ErrNameTaken
	}
	if len(memberIDs) == 0 {
		return nil, state.ErrMemberRequired
	}

	group := &state.Group{
		ID:        id,
		Name:      name,
		Private:   private,
		Members:   make(map[int64]struct{}, len(memberIDs)),
		CreatedAt: time.Now(),
	}
	for _, uid := range memberIDs {
		group.Members[uid] = struct{}{}
	}
	d.byID[id] = group
	d.byName[name] = id

	d.logger.Debug("group created", slog.Int64("groupID", id), slog.String("name", name), slog.Bool("private", private))
	return snapshot(group), nil
}

func (d *InMemoryDirectory) AddMember(groupID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	group, ok := d.byID[groupID]
	if !ok {
		return state.ErrGroupNotFound
	}
	if group.Private {
		return state.ErrPrivateGroup
	}
	if _, already := group.Members[userID]; already {
		return state.ErrAlreadyMember
	}
	group.Members[userID] = struct{}{}
	return nil
}

func (d *InMemoryDirectory) RemoveMember(groupID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	group, ok := d.byID[groupID]
	if !ok {
		return state.ErrGroupNotFound
	}
	if _, member := group.Members[userID]; !member {
		return state.ErrNotMember
	}
	delete(group.Members, userID)
	return nil
}

func (d *InMemoryDirectory) IsMember(groupID, userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	group, ok := d.byID[groupID]
	if !ok {
		return false
	}
	_, member := group.Members[userID]
	return member
}

func (d *InMemoryDirectory) Members(groupID int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	group, ok := d.byID[groupID]
	if !ok {
		return nil, state.ErrGroupNotFound
	}
	members := make([]int64, 0, len(group.Members))
	for uid := range group.Members {
		members = append(members, uid)
	}
	return members, nil
}

func (d *InMemoryDirectory) Get(groupID int64) (*state.Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	group, ok := d.byID[groupID]
	if !ok {
		return nil, false
	}
	return snapshot(group), true
}

func (d *InMemoryDirectory) GetByName(name string) (*state.Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	group, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return snapshot(group), true
}

// PublicGroups lists every non-private group. Small groups are included:
// the member set itself is the only filter.
func (d *InMemoryDirectory) PublicGroups() []*state.Group {
	d.mu.RLock()
	defer d.mu.RUnlock()

	groups := make([]*state.Group, 0, len(d.byID))
	for _, g := range d.byID {
		if !g.Private {
			groups = append(groups, snapshot(g))
		}
	}
	return groups
}

func (d *InMemoryDirectory) JoinedGroups(userID int64) []*state.Group {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var groups []*state.Group
	for _, g := range d.byID {
		if _, member := g.Members[userID]; member {
			groups = append(groups, snapshot(g))
		}
	}
	return groups
}

package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/revoker/domain"
)

const (
	GroupsCollection = "identity_groups" // Group hierarchy (parent refs)
	UsersCollection  = "identity_users"  // Users with group membership and roles
)

// maxGroupDepth bounds subgroup expansion. The hierarchy is expected to be a
// tree; hitting the bound means a cycle slipped in and expansion fails fast
// instead of looping.
const maxGroupDepth = 64

type groupDoc struct {
	ID       string `bson:"_id"`
	ParentID string `bson:"parent_id,omitempty"`
}

type userDoc struct {
	ID      string   `bson:"_id"`
	Groups  []string `bson:"groups"`
	IsAdmin bool     `bson:"is_admin"`
}

// GroupDirectoryMongo implements domain.GroupDirectory over the identity
// collections. It is the deployment adapter for the identity collaborator;
// installations with an external directory plug their own implementation in
// instead.
type GroupDirectoryMongo struct {
	groups *mongo.Collection
	users  *mongo.Collection
}

// NewGroupDirectoryMongo creates the directory adapter.
func NewGroupDirectoryMongo(db *mongo.Database) *GroupDirectoryMongo {
	return &GroupDirectoryMongo{
		groups: db.Collection(GroupsCollection),
		users:  db.Collection(UsersCollection),
	}
}

// GroupMembers returns the user ids belonging to the group, expanded to
// subgroups when includeSubgroups is true. Unknown groups fail fast so an
// administrator cannot mistake "no such group" for "no affected users".
func (d *GroupDirectoryMongo) GroupMembers(ctx context.Context, groupID string, includeSubgroups bool) ([]string, error) {
	var root groupDoc
	err := d.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&root)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Error looking up group in MongoDB")
		return nil, err
	}

	groupIDs := []string{groupID}
	if includeSubgroups {
		groupIDs, err = d.expand(ctx, groupID)
		if err != nil {
			return nil, err
		}
	}

	cursor, err := d.users.Find(ctx, bson.M{"groups": bson.M{"$in": groupIDs}})
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Error listing group members from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []userDoc
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	members := make([]string, 0, len(users))
	for _, u := range users {
		members = append(members, u.ID)
	}
	return members, nil
}

// expand walks the hierarchy breadth-first with a visited set and a depth
// bound, returning the transitive closure of subgroup ids.
func (d *GroupDirectoryMongo) expand(ctx context.Context, rootID string) ([]string, error) {
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	all := []string{rootID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxGroupDepth {
			return nil, domain.ErrCyclicGroupHierarchy
		}

		cursor, err := d.groups.Find(ctx, bson.M{"parent_id": bson.M{"$in": frontier}})
		if err != nil {
			return nil, err
		}
		var children []groupDoc
		if err = cursor.All(ctx, &children); err != nil {
			return nil, err
		}

		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return nil, domain.ErrCyclicGroupHierarchy
			}
			visited[child.ID] = struct{}{}
			next = append(next, child.ID)
			all = append(all, child.ID)
		}
		frontier = next
	}
	return all, nil
}

// IsAdmin reports whether the user holds an admin role. Unknown users are
// simply not admins.
func (d *GroupDirectoryMongo) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var user userDoc
	err := d.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

var _ domain.GroupDirectory = (*GroupDirectoryMongo)(nil)

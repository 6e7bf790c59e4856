package query

import "strings"

// Op names a read operation.
type Op string

// Read operations.
const (
	GetCurrentUser   Op = "GET_CURRENT_USER"
	GetRecentPosts   Op = "GET_RECENT_POSTS"
	GetPosts         Op = "GET_POSTS"
	GetPostByID      Op = "GET_POST_BY_ID"
	SearchPosts      Op = "SEARCH_POSTS"
	GetUserByID      Op = "GET_USER_BY_ID"
	GetUserFollowers Op = "GET_USER_FOLLOWERS"
	GetUserFollowing Op = "GET_USER_FOLLOWING"
	GetUserPosts     Op = "GET_USER_POSTS"
	GetUserSaves     Op = "GET_USER_SAVES"
)

// Ops lists every read operation.
var Ops = []Op{
	GetCurrentUser, GetRecentPosts, GetPosts, GetPostByID, SearchPosts,
	GetUserByID, GetUserFollowers, GetUserFollowing, GetUserPosts, GetUserSaves,
}

const keySeparator = "\x1f"

// Key identifies a cached read: the operation name followed by its parameters.
type Key []string

// NewKey builds a Key.
func NewKey(op Op, params ...string) Key {
	return append(Key{string(op)}, params...)
}

// Op returns the operation of the key.
func (k Key) Op() Op {
	if len(k) == 0 {
		return ""
	}
	return Op(k[0])
}

// HasPrefix reports whether prefix matches the first elements of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String returns the key encoded as a single string, used as the cache key.
func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// ParseKey decodes a key encoded with String.
func ParseKey(s string) Key {
	return Key(strings.Split(s, keySeparator))
}

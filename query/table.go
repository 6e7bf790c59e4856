package query

import (
	"errors"
	"fmt"
	"sort"
)

// Mutation names a write operation.
type Mutation string

// Mutations.
const (
	CreateUserAccount  Mutation = "CREATE_USER_ACCOUNT"
	SignIn             Mutation = "SIGN_IN"
	SignOut            Mutation = "SIGN_OUT"
	CreatePost         Mutation = "CREATE_POST"
	UpdatePost         Mutation = "UPDATE_POST"
	DeletePost         Mutation = "DELETE_POST"
	LikePost           Mutation = "LIKE_POST"
	SavePost           Mutation = "SAVE_POST"
	DeleteSavedPost    Mutation = "DELETE_SAVED_POST"
	FollowUser         Mutation = "FOLLOW_USER"
	UnfollowUser       Mutation = "UNFOLLOW_USER"
	UpdateUserLocation Mutation = "UPDATE_USER_LOCATION"
)

// Mutations lists every mutation.
var Mutations = []Mutation{
	CreateUserAccount, SignIn, SignOut, CreatePost, UpdatePost, DeletePost, LikePost,
	SavePost, DeleteSavedPost, FollowUser, UnfollowUser, UpdateUserLocation,
}

// Mutation parameter names.
const (
	ParamUserID     = "userId"
	ParamPostID     = "postId"
	ParamFollowerID = "followerId"
	ParamFollowedID = "followedId"
)

// ErrInvalidTable is returned by Table.Validate.
var ErrInvalidTable = errors.New("invalid invalidation table")

// ErrMissingParam is returned when a mutation is run without a declared parameter.
var ErrMissingParam = errors.New("missing mutation parameter")

// Params are the values of the parameters of a mutation.
type Params map[string]string

// Target is a key prefix invalidated by a mutation: the operation, followed by the value of
// Param when Param is not empty.
type Target struct {
	Op    Op
	Param string
}

// Rule declares the parameters of a mutation and what it invalidates on success.
type Rule struct {
	Params  []string
	Targets []Target
}

// Table maps every mutation to its invalidation rule.
type Table map[Mutation]Rule

// DefaultTable returns the invalidation rules of the application.
func DefaultTable() Table {
	return Table{
		CreateUserAccount: {},
		SignIn: {
			Targets: []Target{{Op: GetCurrentUser}},
		},
		SignOut: {
			Targets: []Target{{Op: GetCurrentUser}},
		},
		CreatePost: {
			Params: []string{ParamUserID},
			Targets: []Target{
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: GetUserPosts, Param: ParamUserID},
			},
		},
		UpdatePost: {
			Params: []string{ParamPostID},
			Targets: []Target{
				{Op: GetPostByID, Param: ParamPostID},
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: SearchPosts},
				{Op: GetUserPosts},
				{Op: GetUserSaves},
			},
		},
		DeletePost: {
			Params: []string{ParamPostID, ParamUserID},
			Targets: []Target{
				{Op: GetPostByID, Param: ParamPostID},
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: GetUserPosts, Param: ParamUserID},
				{Op: SearchPosts},
				{Op: GetUserSaves},
			},
		},
		LikePost: {
			Params: []string{ParamPostID},
			Targets: []Target{
				{Op: GetPostByID, Param: ParamPostID},
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: GetCurrentUser},
			},
		},
		SavePost: {
			Params: []string{ParamUserID},
			Targets: []Target{
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: GetCurrentUser},
				{Op: GetUserSaves, Param: ParamUserID},
			},
		},
		DeleteSavedPost: {
			Params: []string{ParamUserID},
			Targets: []Target{
				{Op: GetRecentPosts},
				{Op: GetPosts},
				{Op: GetCurrentUser},
				{Op: GetUserSaves, Param: ParamUserID},
			},
		},
		FollowUser:   followRule(),
		UnfollowUser: followRule(),
		UpdateUserLocation: {
			Params: []string{ParamUserID},
			Targets: []Target{
				{Op: GetCurrentUser},
				{Op: GetUserByID, Param: ParamUserID},
				{Op: GetPosts},
			},
		},
	}
}

func followRule() Rule {
	return Rule{
		Params: []string{ParamFollowerID, ParamFollowedID},
		Targets: []Target{
			{Op: GetCurrentUser},
			{Op: GetUserByID, Param: ParamFollowerID},
			{Op: GetUserByID, Param: ParamFollowedID},
			{Op: GetUserFollowers, Param: ParamFollowedID},
			{Op: GetUserFollowing, Param: ParamFollowerID},
		},
	}
}

// Validate checks that every mutation has a rule, that targets name known read operations and
// that target parameters are declared by the rule.
func (t Table) Validate() error {
	var errs []error
	for _, m := range Mutations {
		if _, ok := t[m]; !ok {
			errs = append(errs, fmt.Errorf("%w: mutation %s has no rule", ErrInvalidTable, m))
		}
	}
	known := map[Op]bool{}
	for _, op := range Ops {
		known[op] = true
	}
	mutations := make([]string, 0, len(t))
	for m := range t {
		mutations = append(mutations, string(m))
	}
	sort.Strings(mutations)
	for _, name := range mutations {
		rule := t[Mutation(name)]
		declared := map[string]bool{}
		for _, p := range rule.Params {
			declared[p] = true
		}
		for _, target := range rule.Targets {
			if !known[target.Op] {
				errs = append(errs, fmt.Errorf("%w: mutation %s invalidates unknown operation %s", ErrInvalidTable, name, target.Op))
			}
			if target.Param != "" && !declared[target.Param] {
				errs = append(errs, fmt.Errorf("%w: mutation %s uses undeclared parameter %s", ErrInvalidTable, name, target.Param))
			}
		}
	}
	return errors.Join(errs...)
}

// Prefixes returns the key prefixes invalidated by a successful mutation.
func (t Table) Prefixes(m Mutation, params Params) ([]Key, error) {
	rule, ok := t[m]
	if !ok {
		return nil, fmt.Errorf("%w: mutation %s has no rule", ErrInvalidTable, m)
	}
	for _, p := range rule.Params {
		if params[p] == "" {
			return nil, fmt.Errorf("%w: %s requires %s", ErrMissingParam, m, p)
		}
	}
	prefixes := make([]Key, 0, len(rule.Targets))
	for _, target := range rule.Targets {
		if target.Param == "" {
			prefixes = append(prefixes, NewKey(target.Op))
			continue
		}
		prefixes = append(prefixes, NewKey(target.Op, params[target.Param]))
	}
	return prefixes, nil
}

package auth

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Route permissions. Each caller-facing operation is gated by exactly one of
// these fixed literals.
const (
	PermArticlesRead            = "articles.read"
	PermArticlesCreate          = "articles.create"
	PermArticlesUpdate          = "articles.update"
	PermArticlesDelete          = "articles.delete"
	PermArticlesAutoAnonymize   = "articles.anonymize.auto"
	PermArticlesManualAnonymize = "articles.anonymize.manual"
	PermModelAnonymize          = "model.anonymize"
	PermUsersManage             = "users.manage"
)

// Builtin role names. Custom roles may be added to the table at runtime.
const (
	RolePublic      = "public"
	RoleContributor = "contributor"
	RoleCorrector   = "corrector"
	RoleAdmin       = "admin"
)

// Table maps a role name to the set of permissions it grants.
type Table map[string][]string

// BuiltinTable returns the default role->permission relation.
func BuiltinTable() Table {
	return Table{
		RolePublic: {
			PermArticlesRead,
		},
		RoleContributor: {
			PermArticlesRead,
			PermArticlesCreate,
			PermArticlesUpdate,
			PermModelAnonymize,
		},
		RoleCorrector: {
			PermArticlesRead,
			PermArticlesUpdate,
			PermArticlesAutoAnonymize,
			PermArticlesManualAnonymize,
			PermModelAnonymize,
		},
		RoleAdmin: {
			PermArticlesRead,
			PermArticlesCreate,
			PermArticlesUpdate,
			PermArticlesDelete,
			PermArticlesAutoAnonymize,
			PermArticlesManualAnonymize,
			PermModelAnonymize,
			PermUsersManage,
		},
	}
}

// IsBuiltinRole reports whether name is one of the four builtin roles.
func IsBuiltinRole(name string) bool {
	switch name {
	case RolePublic, RoleContributor, RoleCorrector, RoleAdmin:
		return true
	}
	return false
}

type permissionSets map[string]map[string]struct{}

// Resolver answers permission checks against an immutable snapshot of the
// role->permission table. Replace swaps the snapshot wholesale; lookups
// never observe a half-updated table.
type Resolver struct {
	snapshot atomic.Pointer[permissionSets]
}

// NewResolver builds a resolver over the given table.
func NewResolver(table Table) *Resolver {
	r := &Resolver{}
	r.Replace(table)
	return r
}

// Replace installs a new table snapshot. The input is copied; later mutation
// of table by the caller does not affect the resolver.
func (r *Resolver) Replace(table Table) {
	sets := make(permissionSets, len(table))
	for role, perms := range table {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			p = strings.TrimSpace(p)
			if p != "" {
				set[p] = struct{}{}
			}
		}
		sets[role] = set
	}
	r.snapshot.Store(&sets)
}

// Allowed reports whether the union of permissions granted by roles contains
// permission. A role absent from the table grants nothing; an empty role set
// denies everything.
func (r *Resolver) Allowed(roles []string, permission string) bool {
	sets := r.snapshot.Load()
	if sets == nil {
		return false
	}
	for _, role := range roles {
		if _, ok := (*sets)[role][permission]; ok {
			return true
		}
	}
	return false
}

// PermissionsFor returns the sorted union of permissions for a role set.
func (r *Resolver) PermissionsFor(roles []string) []string {
	sets := r.snapshot.Load()
	if sets == nil {
		return nil
	}
	union := make(map[string]struct{})
	for _, role := range roles {
		for p := range (*sets)[role] {
			union[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for p := range union {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package auth

import (
	"reflect"
	"sync"
	"testing"
)

func TestResolverUnionSemantics(t *testing.T) {
	table := Table{
		"public": {},
		"admin":  {PermArticlesRead, PermArticlesUpdate},
	}
	r := NewResolver(table)

	// public alone grants nothing.
	for _, perm := range []string{PermArticlesRead, PermArticlesUpdate, PermArticlesDelete} {
		if r.Allowed([]string{"public"}, perm) {
			t.Fatalf("public should not be allowed %s", perm)
		}
	}

	// admin grants exactly its two permissions.
	if !r.Allowed([]string{"admin"}, PermArticlesRead) || !r.Allowed([]string{"admin"}, PermArticlesUpdate) {
		t.Fatal("admin should hold its listed permissions")
	}
	if r.Allowed([]string{"admin"}, PermArticlesDelete) {
		t.Fatal("admin should not hold unlisted permissions")
	}

	// Union: {public, admin} behaves exactly like {admin}.
	both := []string{"public", "admin"}
	for _, perm := range []string{PermArticlesRead, PermArticlesUpdate, PermArticlesDelete, PermUsersManage} {
		if r.Allowed(both, perm) != r.Allowed([]string{"admin"}, perm) {
			t.Fatalf("union semantics violated for %s", perm)
		}
	}
}

func TestResolverUnknownRoleFailsClosed(t *testing.T) {
	r := NewResolver(Table{"admin": {PermArticlesRead}})
	if r.Allowed([]string{"ghost"}, PermArticlesRead) {
		t.Fatal("unknown role must grant nothing")
	}
	if r.Allowed(nil, PermArticlesRead) {
		t.Fatal("empty role set must deny")
	}
	if !r.Allowed([]string{"ghost", "admin"}, PermArticlesRead) {
		t.Fatal("unknown role must not block a granting role")
	}
}

func TestResolverReplaceIsolatesSnapshot(t *testing.T) {
	table := Table{"editor": {PermArticlesUpdate}}
	r := NewResolver(table)

	// Mutating the input table after construction must not leak in.
	table["editor"] = append(table["editor"], PermArticlesDelete)
	if r.Allowed([]string{"editor"}, PermArticlesDelete) {
		t.Fatal("resolver observed external table mutation")
	}

	r.Replace(table)
	if !r.Allowed([]string{"editor"}, PermArticlesDelete) {
		t.Fatal("replace did not install the new table")
	}
}

func TestResolverConcurrentLookupsDuringReplace(t *testing.T) {
	r := NewResolver(BuiltinTable())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Allowed([]string{RoleAdmin}, PermArticlesRead)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		r.Replace(BuiltinTable())
	}
	wg.Wait()
	if !r.Allowed([]string{RoleAdmin}, PermArticlesRead) {
		t.Fatal("admin lost read permission after replace churn")
	}
}

func TestBuiltinTable(t *testing.T) {
	r := NewResolver(BuiltinTable())

	if !r.Allowed([]string{RolePublic}, PermArticlesRead) {
		t.Fatal("public must read articles (masked)")
	}
	if r.Allowed([]string{RolePublic}, PermArticlesCreate) {
		t.Fatal("public must not create articles")
	}
	if !r.Allowed([]string{RoleCorrector}, PermArticlesManualAnonymize) {
		t.Fatal("corrector must anonymize manually")
	}
	if r.Allowed([]string{RoleContributor}, PermUsersManage) {
		t.Fatal("contributor must not manage users")
	}
	if got := r.PermissionsFor([]string{RoleAdmin}); !reflect.DeepEqual(got, []string{
		PermArticlesAutoAnonymize,
		PermArticlesManualAnonymize,
		PermArticlesCreate,
		PermArticlesDelete,
		PermArticlesRead,
		PermArticlesUpdate,
		PermModelAnonymize,
		PermUsersManage,
	}) {
		t.Fatalf("unexpected admin permission union: %v", got)
	}
}

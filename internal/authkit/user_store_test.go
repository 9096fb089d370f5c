package authkit

import (
	"context"
	"errors"
	"testing"
)

func userStoreFactories() map[string]func(t *testing.T) UserStore {
	return map[string]func(t *testing.T) UserStore{
		"memory": func(t *testing.T) UserStore {
			return NewMemoryUserStore()
		},
		"sqlite": func(t *testing.T) UserStore {
			return NewDatabaseUserStore(newTestDatabase(t))
		},
	}
}

func TestUserStoresShareSemantics(t *testing.T) {
	t.Parallel()

	for name, factory := range userStoreFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := factory(t)
			alice := User{ID: "u-1", Username: "alice", Email: " Alice@Example.com ", PasswordHash: "digest", Role: RoleUser}

			if _, err := store.FindUser(ctx, "alice"); !errors.Is(err, ErrUserRecordNotFound) {
				t.Fatalf("expected ErrUserRecordNotFound, got %v", err)
			}
			if err := store.SaveUser(ctx, alice); err != nil {
				t.Fatalf("save failed: %v", err)
			}

			byName, err := store.FindUser(ctx, "alice")
			if err != nil {
				t.Fatalf("find by username failed: %v", err)
			}
			if byName.ID != "u-1" || byName.Email != "alice@example.com" || byName.Role != RoleUser {
				t.Fatalf("unexpected user: %+v", byName)
			}
			byEmail, err := store.FindUser(ctx, "ALICE@example.com")
			if err != nil || byEmail.Username != "alice" {
				t.Fatalf("expected lookup by email to resolve alice, got %+v (%v)", byEmail, err)
			}

			usernameTaken, err := store.UserExists(ctx, "alice")
			if err != nil || !usernameTaken {
				t.Fatalf("expected alice to exist (%v)", err)
			}
			emailTaken, err := store.EmailExists(ctx, "alice@example.com")
			if err != nil || !emailTaken {
				t.Fatalf("expected email to exist (%v)", err)
			}
			unknown, err := store.UserExists(ctx, "bob")
			if err != nil || unknown {
				t.Fatalf("expected bob to be absent (%v)", err)
			}

			duplicateName := User{ID: "u-2", Username: "alice", Email: "other@example.com", PasswordHash: "digest", Role: RoleUser}
			if err := store.SaveUser(ctx, duplicateName); !errors.Is(err, ErrUserAlreadyExists) {
				t.Fatalf("expected ErrUserAlreadyExists for username, got %v", err)
			}
			duplicateEmail := User{ID: "u-3", Username: "bob", Email: "alice@example.com", PasswordHash: "digest", Role: RoleUser}
			if err := store.SaveUser(ctx, duplicateEmail); !errors.Is(err, ErrUserAlreadyExists) {
				t.Fatalf("expected ErrUserAlreadyExists for email, got %v", err)
			}
		})
	}
}

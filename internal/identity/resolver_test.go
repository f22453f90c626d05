package identity

import (
	"context"
	"testing"

	"github.com/mattergrate/mattergrate/internal/config"
	"github.com/mattergrate/mattergrate/internal/mattermost"
	"github.com/mattergrate/mattergrate/internal/rocketchat"
)

type fakeDirectory struct {
	byUsername    map[string]*rocketchat.User
	byEmail       map[string]*rocketchat.User
	usernameCalls int
	emailCalls    int
}

func (d *fakeDirectory) UserByUsername(_ context.Context, username string) (*rocketchat.User, error) {
	d.usernameCalls++
	if u, ok := d.byUsername[username]; ok {
		return u, nil
	}
	return nil, rocketchat.ErrNotFound
}

func (d *fakeDirectory) UserByEmail(_ context.Context, email string) (*rocketchat.User, error) {
	d.emailCalls++
	if u, ok := d.byEmail[email]; ok {
		return u, nil
	}
	return nil, rocketchat.ErrNotFound
}

func TestResolveManualMappingWins(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byUsername: map[string]*rocketchat.User{
		"a.archer": {ID: "rc-1", Username: "a.archer"},
		"alice":    {ID: "rc-2", Username: "alice"},
	}}
	r := NewResolver(dir, map[string]string{"alice": "a.archer"}, config.MatchByUsername, nil)

	id := r.Resolve(context.Background(), &mattermost.User{ID: "u1", Username: "alice"})
	if id == nil || id.UserID != "rc-1" {
		t.Fatalf("expected mapping to win over automatic match, got %+v", id)
	}
}

func TestResolveBadMappingFallsThrough(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byUsername: map[string]*rocketchat.User{
		"alice": {ID: "rc-2", Username: "alice"},
	}}
	r := NewResolver(dir, map[string]string{"alice": "no-such-account"}, config.MatchByUsername, nil)

	id := r.Resolve(context.Background(), &mattermost.User{ID: "u1", Username: "alice"})
	if id == nil || id.UserID != "rc-2" {
		t.Fatalf("a broken mapping entry must not break the automatic match, got %+v", id)
	}
}

func TestResolveAutomaticUsernameMatch(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byUsername: map[string]*rocketchat.User{
		"bob": {ID: "rc-bob", Username: "bob"},
	}}
	r := NewResolver(dir, nil, config.MatchByUsername, nil)

	id := r.Resolve(context.Background(), &mattermost.User{ID: "u2", Username: "bob"})
	if id == nil || id.UserID != "rc-bob" {
		t.Fatalf("expected automatic username match, got %+v", id)
	}
}

func TestResolveEmailMode(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byEmail: map[string]*rocketchat.User{
		"bob@example.com": {ID: "rc-bob", Username: "robert"},
	}}
	r := NewResolver(dir, nil, config.MatchByEmail, nil)

	id := r.Resolve(context.Background(), &mattermost.User{ID: "u2", Username: "bob", Email: "bob@example.com"})
	if id == nil || id.Username != "robert" {
		t.Fatalf("expected email match, got %+v", id)
	}

	// Without an email the automatic strategy has nothing to match on.
	if got := r.Resolve(context.Background(), &mattermost.User{ID: "u3", Username: "carol"}); got != nil {
		t.Errorf("expected unresolved for user without email, got %+v", got)
	}
	if dir.usernameCalls != 0 {
		t.Errorf("email mode must not fall back to username lookups, got %d", dir.usernameCalls)
	}
}

func TestResolveEmailModeMappingKeyedByEmail(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byUsername: map[string]*rocketchat.User{
		"a.archer": {ID: "rc-1", Username: "a.archer"},
	}}
	r := NewResolver(dir, map[string]string{"alice@example.com": "a.archer"}, config.MatchByEmail, nil)

	id := r.Resolve(context.Background(), &mattermost.User{ID: "u1", Username: "alice", Email: "alice@example.com"})
	if id == nil || id.UserID != "rc-1" {
		t.Fatalf("expected email-keyed mapping hit, got %+v", id)
	}
}

func TestResolveCachesOutcomes(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{byUsername: map[string]*rocketchat.User{
		"alice": {ID: "rc-alice", Username: "alice"},
	}}
	r := NewResolver(dir, nil, config.MatchByUsername, nil)

	alice := &mattermost.User{ID: "u1", Username: "alice"}
	ghost := &mattermost.User{ID: "u9", Username: "ghost"}

	for i := 0; i < 3; i++ {
		if got := r.Resolve(context.Background(), alice); got == nil {
			t.Fatal("expected alice to resolve")
		}
		if got := r.Resolve(context.Background(), ghost); got != nil {
			t.Fatalf("expected ghost to stay unresolved, got %+v", got)
		}
	}

	// One lookup per distinct username; unresolved outcomes are cached too.
	if dir.usernameCalls != 2 {
		t.Errorf("expected 2 directory lookups, got %d", dir.usernameCalls)
	}
}

func TestResolveNilUser(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeDirectory{}, nil, config.MatchByUsername, nil)
	if got := r.Resolve(context.Background(), nil); got != nil {
		t.Errorf("expected nil identity for nil user, got %+v", got)
	}
}

package bot

import (
	"context"
	"errors"
	"testing"

	"matrixbot/internal/domain"
)

// countingResolverClient instruments every transport tier.
type countingResolverClient struct {
	joinByIDCalls  int
	joinByIDErr    error
	directoryCalls int
	directoryID    string
	directoryErr   error
	joinCalls      int
	joinID         string
	joinErr        error
}

func (c *countingResolverClient) JoinRoomByID(context.Context, string) error {
	c.joinByIDCalls++
	return c.joinByIDErr
}

func (c *countingResolverClient) DirectoryLookup(context.Context, string) (string, error) {
	c.directoryCalls++
	return c.directoryID, c.directoryErr
}

func (c *countingResolverClient) JoinRoom(context.Context, string) (string, error) {
	c.joinCalls++
	return c.joinID, c.joinErr
}

type fakeAliasIndex struct {
	byAlias map[string]string
	err     error
	calls   int
}

func (f *fakeAliasIndex) RoomIDForAlias(_ context.Context, alias string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.byAlias[alias], nil
}

func TestResolve_PassthroughSkipsNetwork(t *testing.T) {
	client := &countingResolverClient{}
	r := NewRoomResolver(client, &fakeAliasIndex{}, testLogger())

	id, err := r.Resolve(context.Background(), "!already:x")
	if err != nil {
		t.Fatal(err)
	}
	if id != "!already:x" {
		t.Fatalf("passthrough must return input unchanged, got %q", id)
	}
	if client.directoryCalls != 0 || client.joinCalls != 0 {
		t.Fatal("passthrough must not hit directory or join tiers")
	}
	if client.joinByIDCalls != 1 {
		t.Fatal("passthrough should attempt a best-effort join")
	}
}

func TestResolve_PassthroughToleratesJoinError(t *testing.T) {
	client := &countingResolverClient{joinByIDErr: errors.New("forbidden")}
	r := NewRoomResolver(client, &fakeAliasIndex{}, testLogger())

	id, err := r.Resolve(context.Background(), "!already:x")
	if err != nil {
		t.Fatalf("join error must not fail passthrough resolution: %v", err)
	}
	if id != "!already:x" {
		t.Fatalf("got %q", id)
	}
}

func TestResolve_LocalIndexShortCircuits(t *testing.T) {
	client := &countingResolverClient{}
	idx := &fakeAliasIndex{byAlias: map[string]string{"#main:x": "!room:x"}}
	r := NewRoomResolver(client, idx, testLogger())

	id, err := r.Resolve(context.Background(), "#main:x")
	if err != nil {
		t.Fatal(err)
	}
	if id != "!room:x" {
		t.Fatalf("got %q", id)
	}
	if client.directoryCalls != 0 || client.joinCalls != 0 {
		t.Fatalf("indexed alias must not reach network tiers (directory=%d join=%d)",
			client.directoryCalls, client.joinCalls)
	}
}

func TestResolve_DirectoryTier(t *testing.T) {
	client := &countingResolverClient{directoryID: "!dir:x", joinErr: errors.New("unreachable")}
	r := NewRoomResolver(client, &fakeAliasIndex{}, testLogger())

	id, err := r.Resolve(context.Background(), "#unknown:x")
	if err != nil {
		t.Fatal(err)
	}
	if id != "!dir:x" {
		t.Fatalf("got %q", id)
	}
	if client.joinCalls != 0 {
		t.Fatal("directory success must short-circuit the join tier")
	}
}

func TestResolve_IndexErrorAdvancesChain(t *testing.T) {
	client := &countingResolverClient{directoryID: "!dir:x"}
	idx := &fakeAliasIndex{err: errors.New("index offline")}
	r := NewRoomResolver(client, idx, testLogger())

	id, err := r.Resolve(context.Background(), "#main:x")
	if err != nil {
		t.Fatalf("a single tier failure must not fail resolution: %v", err)
	}
	if id != "!dir:x" {
		t.Fatalf("got %q", id)
	}
}

func TestResolve_JoinFallback(t *testing.T) {
	client := &countingResolverClient{
		directoryErr: errors.New("not found"),
		joinID:       "!joined:x",
	}
	r := NewRoomResolver(client, &fakeAliasIndex{}, testLogger())

	id, err := r.Resolve(context.Background(), "#hidden:x")
	if err != nil {
		t.Fatal(err)
	}
	if id != "!joined:x" {
		t.Fatalf("got %q", id)
	}
}

func TestResolve_ExhaustionNamesInput(t *testing.T) {
	client := &countingResolverClient{
		directoryErr: errors.New("not found"),
		joinErr:      errors.New("forbidden"),
	}
	r := NewRoomResolver(client, &fakeAliasIndex{}, testLogger())

	_, err := r.Resolve(context.Background(), "#gone:x")
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if !domain.IsUnresolvedRoom(err) {
		t.Fatalf("expected UnresolvedRoomError, got %T", err)
	}
	var ure *domain.UnresolvedRoomError
	if !errors.As(err, &ure) || ure.Input != "#gone:x" {
		t.Fatalf("error must name the unresolved input: %v", err)
	}
}

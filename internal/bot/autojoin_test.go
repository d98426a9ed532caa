package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"matrixbot/internal/matrix"
)

// fakeDirectory serves canned public-room pages and records joins through
// the resolver's best-effort join path.
type fakeDirectory struct {
	mu          sync.Mutex
	joinedNow   []string
	joined      []string
	joinedErr   error
	pages       [][]matrix.PublicRoom
	pagesServed int
}

func (f *fakeDirectory) JoinedRooms(context.Context) ([]string, error) {
	return f.joined, f.joinedErr
}

func (f *fakeDirectory) PublicRooms(_ context.Context, since string) ([]matrix.PublicRoom, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pagesServed >= len(f.pages) {
		return nil, "", nil
	}
	page := f.pages[f.pagesServed]
	f.pagesServed++
	next := ""
	if f.pagesServed < len(f.pages) {
		next = "batch"
	}
	return page, next, nil
}

// resolver tiers used by auto-join (room IDs only → JoinRoomByID).
func (f *fakeDirectory) JoinRoomByID(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinedNow = append(f.joinedNow, roomID)
	return nil
}
func (f *fakeDirectory) DirectoryLookup(context.Context, string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeDirectory) JoinRoom(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func newAutoJoinWorker(f *fakeDirectory, pageLimit int) *AutoJoinWorker {
	resolver := NewRoomResolver(f, &fakeAliasIndex{}, testLogger())
	return NewAutoJoinWorker(AutoJoinConfig{
		Client:         f,
		Resolver:       resolver,
		PageLimit:      pageLimit,
		JoinsPerMinute: 60000, // effectively unpaced in tests
		JoinBurst:      100,
		Logger:         testLogger(),
	})
}

func TestAutoJoin_JoinsOnlyPublicUnjoinedRooms(t *testing.T) {
	f := &fakeDirectory{
		joined: []string{"!already:x"},
		pages: [][]matrix.PublicRoom{{
			{RoomID: "!already:x", JoinRule: "public"},
			{RoomID: "!new:x", JoinRule: "public"},
			{RoomID: "!invite:x", JoinRule: "invite"},
			{RoomID: "", JoinRule: "public"},
			{RoomID: "!nojoinedrule:x"}, // missing join_rule defaults to public
		}},
	}
	w := newAutoJoinWorker(f, 20)

	if err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"!new:x": true, "!nojoinedrule:x": true}
	if len(f.joinedNow) != len(want) {
		t.Fatalf("joined %v, want exactly %v", f.joinedNow, want)
	}
	for _, id := range f.joinedNow {
		if !want[id] {
			t.Fatalf("unexpected join: %s", id)
		}
	}
}

func TestAutoJoin_RespectsPageLimit(t *testing.T) {
	f := &fakeDirectory{
		pages: [][]matrix.PublicRoom{
			{{RoomID: "!p1:x", JoinRule: "public"}},
			{{RoomID: "!p2:x", JoinRule: "public"}},
			{{RoomID: "!p3:x", JoinRule: "public"}},
		},
	}
	w := newAutoJoinWorker(f, 2)

	if err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.pagesServed != 2 {
		t.Fatalf("expected 2 pages fetched, got %d", f.pagesServed)
	}
}

func TestAutoJoin_JoinedRoomsFailureIsNonFatal(t *testing.T) {
	f := &fakeDirectory{
		joinedErr: errors.New("server busy"),
		pages: [][]matrix.PublicRoom{{
			{RoomID: "!a:x", JoinRule: "public"},
		}},
	}
	w := newAutoJoinWorker(f, 20)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("joined-rooms failure should not abort the scan: %v", err)
	}
	if len(f.joinedNow) != 1 {
		t.Fatalf("scan should continue after seed failure, joined %v", f.joinedNow)
	}
}

func TestAutoJoin_CancelledContext(t *testing.T) {
	f := &fakeDirectory{}
	w := NewAutoJoinWorker(AutoJoinConfig{
		Client:     f,
		Resolver:   NewRoomResolver(f, &fakeAliasIndex{}, testLogger()),
		StartDelay: 1000000000, // 1s; cancelled before it elapses
		Logger:     testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

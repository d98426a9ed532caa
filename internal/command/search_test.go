package command

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"matrixbot/internal/domain"
)

func TestSearch_FormatsResultsWithLinks(t *testing.T) {
	client := &fakeClient{}
	index := &fakeIndex{searchResults: []domain.IndexedMessage{
		{EventID: "$e1", RoomID: "!r:x", Sender: "@bob:x", Body: "hello there", OriginTS: 1700000000000},
	}}
	inv := newInvocation(client, index, nil)
	inv.Args = " hello "

	if err := NewSearch().Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if index.lastQuery != "hello" {
		t.Fatalf("query should be trimmed, got %q", index.lastQuery)
	}

	msg := client.lastMessage()
	for _, want := range []string{
		"Search results for 'hello':",
		"[2023-11-14] @bob:x: hello there",
		"https://matrix.to/#/!r:x/$e1",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("reply missing %q:\n%s", want, msg)
		}
	}
}

func TestSearch_TruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("a", 120)
	line := formatResult(domain.IndexedMessage{Body: long, Sender: "@x:y"}, "https://matrix.to")
	if !strings.Contains(line, strings.Repeat("a", 77)+"...") {
		t.Fatalf("body not truncated: %s", line)
	}
	if strings.Contains(line, strings.Repeat("a", 78)) {
		t.Fatalf("truncation kept too much: %s", line)
	}
}

func TestSearch_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ü", 120)
	line := formatResult(domain.IndexedMessage{Body: long, Sender: "@x:y"}, "https://matrix.to")
	if !utf8.ValidString(line) {
		t.Fatalf("truncation split a rune: %q", line)
	}
	if !strings.Contains(line, strings.Repeat("ü", 77)+"...") {
		t.Fatalf("body not truncated at 77 runes: %s", line)
	}
}

func TestSearch_EmptyQueryShowsUsage(t *testing.T) {
	client := &fakeClient{}
	inv := newInvocation(client, nil, nil)
	inv.Args = "   "

	if err := NewSearch().Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(client.lastMessage(), "Usage: !search") {
		t.Fatalf("expected usage text, got %q", client.lastMessage())
	}
}

func TestSearch_NoResults(t *testing.T) {
	client := &fakeClient{}
	inv := newInvocation(client, &fakeIndex{}, nil)
	inv.Args = "nothing"

	if err := NewSearch().Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(client.lastMessage(), "No results found.") {
		t.Fatalf("expected no-results reply, got %q", client.lastMessage())
	}
}

package command

import (
	"context"
	"strings"
	"testing"

	"matrixbot/internal/domain"
)

func TestRandCaps_QuotesShoutedMessage(t *testing.T) {
	client := &fakeClient{}
	index := &fakeIndex{shouted: []domain.IndexedMessage{
		{Sender: "@loud:x", Body: "THIS IS VERY IMPORTANT"},
	}}
	inv := newInvocation(client, index, nil)

	if err := NewRandCaps(nil).Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if got := client.lastMessage(); !strings.Contains(got, "@loud:x: THIS IS VERY IMPORTANT") {
		t.Fatalf("unexpected quote: %q", got)
	}
}

func TestRandCaps_ExcludesBlacklistAndSelf(t *testing.T) {
	client := &fakeClient{userID: "@bot:x"}
	index := &fakeIndex{}
	inv := newInvocation(client, index, nil)
	inv.Args = "bob"

	if err := NewRandCaps([]string{"@spam:x"}).Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if index.lastFilter != "bob" {
		t.Fatalf("sender filter not passed through, got %q", index.lastFilter)
	}
	joined := strings.Join(index.lastExclude, ",")
	if !strings.Contains(joined, "@spam:x") || !strings.Contains(joined, "@bot:x") {
		t.Fatalf("exclusion list missing entries: %v", index.lastExclude)
	}
}

func TestRandCaps_FallbackWhenNothingQualifies(t *testing.T) {
	client := &fakeClient{}
	index := &fakeIndex{shouted: []domain.IndexedMessage{
		{Sender: "@x:y", Body: "SHORT"},        // too short
		{Sender: "@x:y", Body: "!!! ??? ... 123456"}, // too few letters
	}}
	inv := newInvocation(client, index, nil)

	if err := NewRandCaps(nil).Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(client.lastMessage(), "NO SCREAMING FOUND") {
		t.Fatalf("expected fallback, got %q", client.lastMessage())
	}
}

func TestIsShouted(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"THIS IS A LONG SHOUT", true},
		{"SHORT", false},                       // length gate
		{"this is not shouting at all", false}, // lowercase
		{"HTTP://X.Y/1234 5678 90!!", false},   // letter ratio
		{"WHY WOULD YOU DO THAT", true},
	}
	for _, tc := range cases {
		if got := isShouted(tc.body); got != tc.want {
			t.Errorf("isShouted(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

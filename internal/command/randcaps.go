package command

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"matrixbot/internal/domain"
)

const (
	shoutedSampleSize = 50
	shoutedMinLength  = 10
	shoutedMinLetters = 0.6
)

// RandCaps answers "!randcaps [sender]" with a random all-caps message
// from the index. The bot's own messages and a configured blacklist of
// senders are never quoted.
type RandCaps struct {
	blacklist []string
}

func NewRandCaps(blacklist []string) *RandCaps {
	return &RandCaps{blacklist: blacklist}
}

func (c *RandCaps) Trigger() string { return "!randcaps" }

func (c *RandCaps) Execute(ctx context.Context, inv *domain.Invocation) error {
	senderFilter := strings.TrimSpace(inv.Args)

	exclude := make([]string, 0, len(c.blacklist)+1)
	exclude = append(exclude, c.blacklist...)
	exclude = append(exclude, inv.Client.UserID())

	sample, err := inv.Index.SampleShouted(ctx, senderFilter, exclude, shoutedSampleSize)
	if err != nil {
		return fmt.Errorf("sample shouted messages: %w", err)
	}

	candidates := sample[:0]
	for _, m := range sample {
		if isShouted(m.Body) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "NO SCREAMING FOUND")
		return err
	}

	pick := candidates[rand.Intn(len(candidates))]
	_, err = inv.Client.SendMessage(ctx, inv.RoomID, fmt.Sprintf("%s: %s", pick.Sender, pick.Body))
	return err
}

// isShouted keeps only bodies long enough to be a sentence and mostly
// made of letters, so link spam and punctuation runs do not qualify.
func isShouted(body string) bool {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= shoutedMinLength {
		return false
	}
	letters := 0
	for _, r := range runes {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return float64(letters)/float64(len(runes)) >= shoutedMinLetters
}

package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matrixbot/internal/domain"
)

const searchLimit = 5

// Search answers "!search <query>" with the newest indexed messages whose
// body contains the query, each line carrying a deep link to the event.
type Search struct{}

func NewSearch() *Search { return &Search{} }

func (c *Search) Trigger() string { return "!search" }

func (c *Search) Execute(ctx context.Context, inv *domain.Invocation) error {
	query := strings.TrimSpace(inv.Args)
	if query == "" {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "Usage: !search <query>")
		return err
	}

	results, err := inv.Index.SearchMessages(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	if len(results) == 0 {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "No results found.")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s':\n", query)
	for _, m := range results {
		b.WriteString(formatResult(m, inv.LinkHost))
		b.WriteByte('\n')
	}

	_, err = inv.Client.SendMessage(ctx, inv.RoomID, strings.TrimRight(b.String(), "\n"))
	return err
}

func formatResult(m domain.IndexedMessage, linkHost string) string {
	body := strings.ReplaceAll(m.Body, "\n", " ")
	if runes := []rune(body); len(runes) > 80 {
		body = string(runes[:77]) + "..."
	}
	date := time.UnixMilli(m.OriginTS).UTC().Format("2006-01-02")
	return fmt.Sprintf("[%s] %s: %s %s/#/%s/%s", date, m.Sender, body, linkHost, m.RoomID, m.EventID)
}

package host

import (
	"context"
	"fmt"
	"io"
	"sync"

	"nullbr-search-service/internal/model"
)

// ConsoleHost prints replies to a writer. Used by the CLI.
type ConsoleHost struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleHost creates a new ConsoleHost
func NewConsoleHost(w io.Writer) *ConsoleHost {
	return &ConsoleHost{w: w}
}

// PostMessage writes the reply
func (c *ConsoleHost) PostMessage(_ context.Context, _, title, text, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "== %s ==\n%s\n\n", title, text)
	return err
}

// FallbackSearch prints the manual search suggestion; a terminal has no
// search of its own
func (c *ConsoleHost) FallbackSearch(ctx context.Context, title string, origin model.InboundMessage) error {
	return c.PostMessage(ctx, origin.Channel, ManualSearchTitle, ManualSearchSuggestion(title), origin.UserID)
}

package channel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Console writes posts to an io.Writer. It backs the text echo and dry
// runs; images are noted, not written.
type Console struct {
	name string

	mu  sync.Mutex
	w   io.Writer
	seq int
}

func NewConsole(name string, w io.Writer) *Console {
	if name == "" {
		name = "console"
	}
	return &Console{name: name, w: w}
}

func (c *Console) Name() string        { return c.name }
func (c *Console) TextLimit() int      { return 1 << 20 }
func (c *Console) SupportsMedia() bool { return true }

func (c *Console) Post(ctx context.Context, text string) (PostID, error) {
	return c.write(ctx, "", text)
}

func (c *Console) PostImage(ctx context.Context, text string, png []byte) (PostID, error) {
	return c.write(ctx, fmt.Sprintf("[image %d bytes]\n", len(png)), text)
}

func (c *Console) Reply(ctx context.Context, parent PostID, text string) (PostID, error) {
	return c.write(ctx, fmt.Sprintf("[reply to %s]\n", parent), text)
}

func (c *Console) write(ctx context.Context, prefix, text string) (PostID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if _, err := fmt.Fprintf(c.w, "%s%s\n\n", prefix, text); err != nil {
		return "", err
	}
	return PostID(strconv.Itoa(c.seq)), nil
}

package openai

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// consumeSSE parses a Server-Sent Events stream, invoking fn for each
// "data:" payload. It mirrors the sibling Anthropic adapter's scanner-based
// approach; only the terminating sentinel differs.
func consumeSSE(ctx context.Context, r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}

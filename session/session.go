package session

import (
	"context"
	"errors"

	"github.com/hupe1980/supportdesk/core"
)

// ErrInvalidThread is returned for empty workspace or thread ids.
var ErrInvalidThread = errors.New("session: workspace and thread id are required")

// Store persists the messages of conversation threads.
type Store interface {
	// Load returns the thread history oldest first. Unknown threads are empty.
	Load(ctx context.Context, workspaceID, threadID string) ([]core.Content, error)
	// Append adds messages to the end of a thread, creating it if needed.
	Append(ctx context.Context, workspaceID, threadID string, contents ...core.Content) error
}

func validate(workspaceID, threadID string) error {
	if workspaceID == "" || threadID == "" {
		return ErrInvalidThread
	}
	return nil
}

// trim keeps at most max trailing messages; the result never starts with a
// tool response whose call was cut off.
func trim(msgs []core.Content, max int) []core.Content {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	msgs = msgs[len(msgs)-max:]
	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}
	return msgs
}

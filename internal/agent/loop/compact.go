package loop

import (
	"github.com/connct/screenagent/internal/agent/session"
)

const (
	screenshotPlaceholder = "[previous screenshot removed]"
	treePlaceholder       = "[previous accessibility tree removed]"
)

// Compactor bounds context growth by replacing stale screen payloads with
// placeholders. History always carries at most one materialized screenshot
// or tree: Strip runs before each new payload is appended, so everything
// already present is stale by definition.
type Compactor struct{}

// Strip replaces every materialized image and tree block in user-role
// messages with a placeholder. Returns the number of blocks stripped.
func (Compactor) Strip(history []session.Message) int {
	stripped := 0
	for i := range history {
		if history[i].Role != session.RoleUser {
			continue
		}
		for j := range history[i].Blocks {
			b := &history[i].Blocks[j]
			switch b.Kind {
			case session.BlockImage:
				if len(b.Image) > 0 {
					b.Image = nil
					b.Text = screenshotPlaceholder
					stripped++
				}
			case session.BlockTree:
				if !b.Stripped() {
					b.Text = treePlaceholder
					stripped++
				}
			}
		}
	}
	return stripped
}

const (
	keepRecentToolResults = 3
	oldToolResultMaxChars = 200
)

// trimForRequest returns a copy of the history with tool results older than
// the last keepRecentToolResults tool messages truncated. The stored history
// is never modified.
func trimForRequest(history []session.Message) []session.Message {
	toolIdx := make([]int, 0, len(history))
	for i := range history {
		if history[i].Role == session.RoleTool {
			toolIdx = append(toolIdx, i)
		}
	}
	if len(toolIdx) <= keepRecentToolResults {
		return history
	}
	cutoff := toolIdx[len(toolIdx)-keepRecentToolResults]

	out := make([]session.Message, len(history))
	copy(out, history)
	for _, i := range toolIdx {
		if i >= cutoff {
			break
		}
		results := make([]session.ToolResult, len(out[i].ToolResults))
		copy(results, out[i].ToolResults)
		for j := range results {
			if len(results[j].Content) > oldToolResultMaxChars {
				results[j].Content = results[j].Content[:oldToolResultMaxChars] + "... [truncated]"
			}
		}
		out[i].ToolResults = results
	}
	return out
}

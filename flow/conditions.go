package flow

import (
	"slices"
	"strings"

	"github.com/hupe1980/supportdesk/core"
)

// ToolsNode is the conventional name of the tool executing node.
const ToolsNode = "tools"

// ToolsCondition routes to ToolsNode when the last message requests tool
// calls and to End otherwise.
func ToolsCondition(state State) string {
	last, ok := state.LastMessage()
	if ok && last.Role == core.RoleAssistant && len(last.FunctionCalls()) > 0 {
		return ToolsNode
	}
	return End
}

// TerminationCondition returns a router that ends the run when a tool
// response since the last assistant turn contains marker, and routes to
// next otherwise. Error responses never terminate. When tools are given,
// only responses of those tools are inspected.
func TerminationCondition(marker, next string, tools ...string) Router {
	return func(state State) string {
		if marker == "" {
			return next
		}
		for _, msg := range state.TrailingToolMessages() {
			for _, fr := range msg.FunctionResponses() {
				if fr.Error != "" {
					continue
				}
				if len(tools) > 0 && !slices.Contains(tools, fr.Name) {
					continue
				}
				if strings.Contains(fr.Text(), marker) {
					return End
				}
			}
		}
		return next
	}
}

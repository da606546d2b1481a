package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/session"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"prompt", "rack", "stack", "color"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"prompt_create": {
		def:     promptCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptCreate },
	},
	"prompt_get": {
		def:     promptGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptGet },
	},
	"prompt_list": {
		def:     promptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptList },
	},
	"prompt_update": {
		def:     promptUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUpdate },
	},
	"prompt_remove": {
		def:     promptRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptRemove },
	},
	"prompt_undo": {
		def:     promptUndoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUndo },
	},
	"prompt_classify": {
		def:     promptClassifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptClassify },
	},
	"rack_toggle": {
		def:     rackToggleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRackToggle },
	},
	"rack_reorder": {
		def:     rackReorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRackReorder },
	},
	"rack_compile": {
		def:     rackCompileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRackCompile },
	},
	"rack_stub": {
		def:     rackStubToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRackStub },
	},
	"stack_create": {
		def:     stackCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStackCreate },
	},
	"stack_rename": {
		def:     stackRenameToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStackRename },
	},
	"stack_delete": {
		def:     stackDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStackDelete },
	},
	"stack_assign": {
		def:     stackAssignToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStackAssign },
	},
	"stack_view": {
		def:     stackViewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStackView },
	},
	"color_set": {
		def:     colorSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColorSet },
	},
	"color_reset": {
		def:     colorResetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColorReset },
	},
	"color_list": {
		def:     colorListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColorList },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "rack_toggle" → "rack").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates an MCP server exposing the session's operations.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(sess *session.Session, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"stream",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(sess)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until the client disconnects.
func Run(sess *session.Session, cfg *config.Config, version string) error {
	s := NewServer(sess, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

package mcp

import "github.com/mark3labs/mcp-go/mcp"

var kindEnum = mcp.Enum("persona", "context", "constraint", "format", "instruction", "example")

var promptCreateToolDef = mcp.NewTool("prompt_create",
	mcp.WithDescription("Create a prompt fragment. The title defaults to the first line of the content. With auto-tagging on, detected tags are added."),
	mcp.WithString("content", mcp.Required(), mcp.Description("Prompt text")),
	mcp.WithString("type", kindEnum, mcp.Description("Fragment kind (default context)")),
	mcp.WithString("title", mcp.Description("Title; derived from content when omitted")),
	mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags")),
	mcp.WithString("stack", mcp.Description("Stack id or name to file the prompt under")),
	mcp.WithNumber("stack_order", mcp.Description("Position within the stack, 1-based")),
)

var promptGetToolDef = mcp.NewTool("prompt_get",
	mcp.WithDescription("Get a prompt fragment with its content."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var promptListToolDef = mcp.NewTool("prompt_list",
	mcp.WithDescription("List prompt summaries, newest first. Filters combine; tags match any."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("search", mcp.Description("Case-insensitive match on title, content and tags")),
	mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Show prompts carrying any of these tags")),
	mcp.WithString("stack", mcp.Description("Stack id or name; results follow the stack order")),
)

var promptUpdateToolDef = mcp.NewTool("prompt_update",
	mcp.WithDescription("Update fields of a prompt. Omitted fields are left alone."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
	mcp.WithString("type", kindEnum, mcp.Description("Fragment kind")),
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("content", mcp.Description("New content")),
	mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Replacement tag set")),
)

var promptRemoveToolDef = mcp.NewTool("prompt_remove",
	mcp.WithDescription("Remove a prompt. It can be restored with prompt_undo until the undo window closes."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var promptUndoToolDef = mcp.NewTool("prompt_undo",
	mcp.WithDescription("Restore a recently removed prompt."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var promptClassifyToolDef = mcp.NewTool("prompt_classify",
	mcp.WithDescription("Return the tags the classifier detects in text. Nothing is stored."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to classify")),
)

var rackToggleToolDef = mcp.NewTool("rack_toggle",
	mcp.WithDescription("Add a prompt to the rack, or take it out if already there."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var rackReorderToolDef = mcp.NewTool("rack_reorder",
	mcp.WithDescription("Set the rack order. Unknown ids are dropped."),
	mcp.WithArray("ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Prompt ids in the new order")),
)

var rackCompileToolDef = mcp.NewTool("rack_compile",
	mcp.WithDescription("Join the rack's prompts, separated by blank lines."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithBoolean("html", mcp.Description("Also render the result as HTML")),
)

var rackStubToolDef = mcp.NewTool("rack_stub",
	mcp.WithDescription("Add an empty, unsaved prompt to the rack."),
)

var stackCreateToolDef = mcp.NewTool("stack_create",
	mcp.WithDescription("Create a stack."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Stack name")),
)

var stackRenameToolDef = mcp.NewTool("stack_rename",
	mcp.WithDescription("Rename a stack."),
	mcp.WithString("stack", mcp.Required(), mcp.Description("Stack id or name")),
	mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
)

var stackDeleteToolDef = mcp.NewTool("stack_delete",
	mcp.WithDescription("Delete a stack. Its prompts are kept and become unassigned."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("stack", mcp.Required(), mcp.Description("Stack id or name")),
)

var stackAssignToolDef = mcp.NewTool("stack_assign",
	mcp.WithDescription("Move prompts into a stack, or out of any stack when stack is omitted."),
	mcp.WithArray("ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Prompt ids")),
	mcp.WithString("stack", mcp.Description("Stack id or name")),
)

var stackViewToolDef = mcp.NewTool("stack_view",
	mcp.WithDescription("List a stack's prompts in stack order."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("stack", mcp.Required(), mcp.Description("Stack id or name")),
)

var colorSetToolDef = mcp.NewTool("color_set",
	mcp.WithDescription("Bind a tag to an HSL colour. Fails if another tag already uses it."),
	mcp.WithString("tag", mcp.Required(), mcp.Description("Tag label")),
	mcp.WithNumber("hue", mcp.Required(), mcp.Description("Hue in degrees, 0-359")),
	mcp.WithNumber("lightness", mcp.Description("Lightness percent, 10-85 (default 32)")),
)

var colorResetToolDef = mcp.NewTool("color_reset",
	mcp.WithDescription("Remove a tag's custom colour."),
	mcp.WithString("tag", mcp.Required(), mcp.Description("Tag label")),
)

var colorListToolDef = mcp.NewTool("color_list",
	mcp.WithDescription("List the colour of every known tag."),
	mcp.WithReadOnlyHintAnnotation(true),
)

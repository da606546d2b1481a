package store

// Level classifies a Notice.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice messages.
const (
	MsgSynced       = "Prompt synchronized to database"
	MsgSaveFailed   = "Failed to save to database"
	MsgUpdateFailed = "Failed to save changes"
	MsgArchived     = "Prompt moved to archives"
	MsgRestored     = "Prompt restored successfully"
	MsgStubAdded    = "Stub added to rack"
	ActionLabelUndo = "revert"
)

// Action is an optional callback attached to a Notice, such as undo.
type Action struct {
	Label      string
	FragmentID string
	Run        func() error
}

// Notice is a transient message for the view layer.
type Notice struct {
	Level   Level
	Message string
	Action  *Action
}

package tagger

// Language and framework labels.
const (
	LabelPython     = "Python"
	LabelJavaScript = "JavaScript"
	LabelTypeScript = "TypeScript"
	LabelReact      = "React"
	LabelNextJS     = "Next.js"
	LabelCSharp     = "C#"
	LabelUnity      = "Unity"
	LabelCPP        = "C++"
	LabelUnreal     = "Unreal"
	LabelSQL        = "SQL"
)

// Category labels.
const (
	LabelCode    = "Code"
	LabelRole    = "Role"
	LabelOutput  = "Output"
	LabelRules   = "Rules"
	LabelContext = "Context"
	LabelLogic   = "Logic"

	// LabelAll is the filter-bar pseudo tag; LabelTemp marks rack stubs.
	LabelAll  = "All"
	LabelTemp = "Temp"
)

var builtin = []string{
	LabelRole, LabelContext, LabelLogic, LabelCode, LabelRules, LabelOutput, LabelAll, LabelTemp,
	LabelPython, LabelReact, LabelTypeScript, LabelJavaScript, LabelNextJS,
	LabelCSharp, LabelUnity, LabelCPP, LabelUnreal, LabelSQL,
}

var builtinSet = func() map[string]bool {
	m := make(map[string]bool, len(builtin))
	for _, l := range builtin {
		m[l] = true
	}
	return m
}()

// Builtin returns every label with a fixed colour, in display order.
func Builtin() []string {
	out := make([]string, len(builtin))
	copy(out, builtin)
	return out
}

// IsBuiltin reports whether label has a fixed colour and must never be
// auto-assigned one.
func IsBuiltin(label string) bool {
	return builtinSet[label]
}

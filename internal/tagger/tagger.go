// Package tagger assigns topical labels to prompt text with a battery of
// regular-expression heuristics. Results are best effort.
package tagger

import "regexp"

// family is one language or framework signal group.
type family struct {
	// adds are inserted in order when any signal matches
	adds []string
	// removes are retracted after adds (a stricter dialect wins)
	removes []string
	signals []*regexp.Regexp
	// refine is only evaluated when this family matched
	refine *family
}

func ci(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var languages = []family{
	{
		adds: []string{LabelPython},
		signals: ci(
			`(^|\s)def\s+`,
			`(^|\s)elif\s+`,
			`print\s*\(`,
			`(^|\s)import\s+(numpy|pandas|os|sys|json|math|random|django|flask|torch|tensorflow)(\s|$)`,
			`(^|\s)from\s+\w+\s+import\s+`,
			`if\s+__name__\s*==\s*['"]__main__['"]`,
			`__init__`,
			`self\.`,
			`kwargs`,
			`pip\s+install`,
		),
	},
	{
		adds: []string{LabelJavaScript},
		signals: ci(
			`(^|\s)(const|let|var)\s+`,
			`(^|\s)function\s+`,
			`console\.(log|error|warn)`,
			`=>`,
			`export\s+(default|const|class|function)`,
			`module\.exports`,
			`npm\s+install`,
			`yarn\s+add`,
		),
	},
	{
		adds:    []string{LabelTypeScript},
		removes: []string{LabelJavaScript},
		signals: ci(
			`:\s*(string|number|boolean|any|void|unknown|never)`,
			`interface\s+\w+`,
			`type\s+\w+\s*=`,
			`as\s+const`,
			`<[A-Z][\w]*\s+[^>]*>`,
		),
	},
	{
		adds: []string{LabelReact},
		signals: append(ci(
			`useState|useEffect|useMemo|useCallback|useContext|useRef`,
			`className=`,
		),
			// Component tags must start upper-case, so this one is case-sensitive.
			regexp.MustCompile(`<[A-Z]\w+`),
			regexp.MustCompile(`(?i)</>`),
			regexp.MustCompile(`(?i)react`),
		),
		refine: &family{
			adds: []string{LabelNextJS},
			signals: ci(
				`NextResponse`,
				`getServerSideProps`,
				`getStaticProps`,
				`['"]use client['"]`,
				`next/[a-z]+`,
			),
		},
	},
	{
		adds: []string{LabelCSharp},
		signals: ci(
			`public\s+class\s+`,
			`private\s+void\s+`,
			`using\s+System`,
			`Console\.WriteLine`,
		),
	},
	{
		adds: []string{LabelUnity, LabelCSharp},
		signals: ci(
			`MonoBehaviour`,
			`\[SerializeField\]`,
			`GameObject`,
			`GetComponent`,
		),
	},
	{
		adds: []string{LabelCPP},
		signals: ci(
			`#include\s+`,
			`std::`,
			`cout\s*<<`,
			`::`,
			`nullptr`,
		),
	},
	{
		adds:    []string{LabelUnreal, LabelCPP},
		signals: ci(`UCLASS|UPROPERTY|UFUNCTION`),
	},
	{
		adds: []string{LabelSQL},
		signals: ci(
			`SELECT\s+.*\s+FROM`,
			`INSERT\s+INTO`,
			`UPDATE\s+.*\s+SET`,
			`DELETE\s+FROM`,
			`CREATE\s+TABLE`,
		),
	},
}

// intents are independent of the language tier and of each other.
var intents = []struct {
	label  string
	signal *regexp.Regexp
}{
	{LabelRole, regexp.MustCompile(`(?i)(you are|act as|role|persona|simulation)`)},
	{LabelOutput, regexp.MustCompile(`(?i)(json|markdown|xml|yaml|format|output|structure)`)},
	{LabelRules, regexp.MustCompile(`(?i)(do not|avoid|limit|constraint|never|must not|prohibit)`)},
	{LabelContext, regexp.MustCompile(`(?i)(context|project|background|tech stack|database|environment)`)},
}

// labelSet keeps first-insertion order.
type labelSet struct {
	order []string
	has   map[string]bool
}

func (s *labelSet) add(l string) {
	if s.has[l] {
		return
	}
	s.has[l] = true
	s.order = append(s.order, l)
}

func (s *labelSet) remove(l string) {
	if !s.has[l] {
		return
	}
	delete(s.has, l)
	for i, v := range s.order {
		if v == l {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (f *family) matches(text string) bool {
	for _, re := range f.signals {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (f *family) apply(text string, set *labelSet) {
	if !f.matches(text) {
		return
	}
	for _, l := range f.adds {
		set.add(l)
	}
	for _, l := range f.removes {
		set.remove(l)
	}
	if f.refine != nil {
		f.refine.apply(text, set)
	}
}

// Classify returns the labels detected in text, first-detected first.
// The result is never empty: text that matches nothing is labelled Logic.
// Callers should treat the result as a set.
func Classify(text string) []string {
	set := &labelSet{has: make(map[string]bool)}

	for i := range languages {
		languages[i].apply(text, set)
	}
	if len(set.order) > 0 {
		set.add(LabelCode)
	}

	for _, in := range intents {
		if in.signal.MatchString(text) {
			set.add(in.label)
		}
	}

	if len(set.order) == 0 {
		set.add(LabelLogic)
	}
	return set.order
}

package task

import "regexp"

// A task reference is the textual form users type to name another task:
//
//	"<description>" <"<context name>"; "<project name or (none)>">
//
// References are matched by exact names, scoped to one user.

var (
	specRe      = regexp.MustCompile(`"[^"]+" <"[^"]+"; "[^"]+">`)
	specPartsRe = regexp.MustCompile(`"([^"]+)" <"([^"]+)"; "([^"]+)">`)
)

// SpecRef is a decoded task reference.
type SpecRef struct {
	Description string
	ContextName string
	ProjectName string
}

// Specification renders the reference for a task with the given names. The
// project name must already be the "(none)" sentinel for project-less tasks.
func Specification(description, contextName, projectName string) string {
	return `"` + description + `" <"` + contextName + `"; "` + projectName + `">`
}

// ParseSpecStrings extracts every well-formed reference substring from free
// text, in order of appearance. Malformed fragments are skipped silently.
func ParseSpecStrings(text string) []string {
	return specRe.FindAllString(text, -1)
}

// ParseSpec decodes a single reference. ok is false when the string is not
// exactly one well-formed reference.
func ParseSpec(spec string) (SpecRef, bool) {
	ms := specPartsRe.FindAllStringSubmatch(spec, -1)
	if len(ms) != 1 {
		return SpecRef{}, false
	}
	m := ms[0]
	return SpecRef{Description: m[1], ContextName: m[2], ProjectName: m[3]}, true
}

package plugin

import (
	"regexp"
	"strconv"

	"github.com/dshills/hookline/internal/hook"
)

// Extension is the file extension of hook files.
const Extension = ".lua"

var filenamePattern = regexp.MustCompile(`^(\w+)(?:-(\w+))?(?:-(\d+))?\.lua$`)

// FileSpec is what a hook file name declares.
type FileSpec struct {
	Name     string
	Phase    hook.Phase
	Priority int
}

// ParseFilename parses a base file name such as "save-pre-10.lua".
// It reports false for names that do not follow the convention.
func ParseFilename(base string) (FileSpec, bool) {
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return FileSpec{}, false
	}

	spec := FileSpec{Name: m[1], Phase: hook.PhaseMain}
	if p, err := hook.ParsePhase(m[2]); err == nil {
		spec.Phase = p
	}
	if m[3] != "" {
		// The pattern admits only digits, so the sole failure is overflow,
		// where ParseInt yields the largest int.
		n, _ := strconv.ParseInt(m[3], 10, strconv.IntSize)
		spec.Priority = int(n)
	}
	return spec, true
}

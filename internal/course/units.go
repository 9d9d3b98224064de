package course

import (
	"fmt"
	"strings"
)

// Slugify lowers a label to a stable identity fragment: lowercase, runs of
// non-alphanumerics collapsed to single dashes, trimmed. Keys derived from it
// survive reordering, so a checkpoint written last week still matches.
func Slugify(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	dash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// RoadmapUnitKey identifies the single roadmap unit of a course.
func RoadmapUnitKey(courseID string) string {
	return "roadmap_" + courseID
}

// LessonUnitKey identifies one lesson unit. moduleNum is 1-based.
func LessonUnitKey(moduleNum int, lessonTitle string) string {
	return fmt.Sprintf("lesson_%02d_%s", moduleNum, Slugify(lessonTitle))
}

// AssessmentUnitKey identifies one module's assessment unit. moduleNum is
// 1-based.
func AssessmentUnitKey(moduleNum int, moduleTitle string) string {
	return fmt.Sprintf("assessment_%02d_%s", moduleNum, Slugify(moduleTitle))
}

// ModuleGroupKey names the checkpoint group for one module of a course.
func ModuleGroupKey(courseID string, moduleNum int) string {
	return fmt.Sprintf("%s/module-%02d", courseID, moduleNum)
}

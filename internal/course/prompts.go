package course

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSourceExcerpt bounds how much course text goes into one prompt. Long
// sources get the head of the text; the roadmap stage sees the broadest cut.
const maxSourceExcerpt = 6000

const systemPrompt = `You are a curriculum writer for an online learning platform.
Respond with a single JSON value and nothing else: no prose before or after,
no markdown fences. Stay strictly inside the requested schema.`

// RoadmapPrompt asks for the course outline.
func RoadmapPrompt(src Source) (system, user string) {
	user = fmt.Sprintf(`Design a course roadmap for %q based on the source material below.

Return JSON with this shape:
{"title": string, "description": string, "modules": [{"title": string, "summary": string, "lessons": [string]}]}

Use 3 to 6 modules with 2 to 5 lessons each. Lesson entries are titles only.

SOURCE MATERIAL:
%s`, src.Title, excerpt(src.Text, maxSourceExcerpt))
	return systemPrompt, user
}

// LessonPrompt asks for one lesson of one module.
func LessonPrompt(src Source, module ModulePlan, lessonTitle string) (system, user string) {
	user = fmt.Sprintf(`Write the lesson %q for the module %q of the course %q.
Module summary: %s

Return JSON with this shape:
{"title": string, "objectives": [string], "body": string, "key_points": [string]}

The body is 400 to 800 words of markdown without headings. Objectives and
key points carry 2 to 4 entries each.

SOURCE MATERIAL:
%s`, lessonTitle, module.Title, src.Title, module.Summary, excerpt(src.Text, maxSourceExcerpt))
	return systemPrompt, user
}

// AssessmentPrompt asks for one module's quiz.
func AssessmentPrompt(src Source, module ModulePlan) (system, user string) {
	user = fmt.Sprintf(`Write a quiz for the module %q of the course %q.
The module covers these lessons: %s.

Return JSON with this shape:
{"title": string, "questions": [{"prompt": string, "choices": [string], "answer": int, "rationale": string}]}

Use 4 to 6 multiple-choice questions with 4 choices each; "answer" is the
zero-based index of the correct choice.

SOURCE MATERIAL:
%s`, module.Title, src.Title, strings.Join(module.Lessons, ", "), excerpt(src.Text, maxSourceExcerpt))
	return systemPrompt, user
}

// excerpt truncates s to at most max bytes without splitting a rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package question

import (
	"fmt"
	"strings"
)

// CheckAnswer compares answers case-insensitively after trimming.
func CheckAnswer(userAnswer, correctAnswer string) bool {
	return strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(correctAnswer))
}

// Explanation is the feedback shown after an attempt.
func Explanation(t Type, correctAnswer, topic, subject string) string {
	switch t {
	case TypeTrueFalse:
		return fmt.Sprintf("The statement is %s. Review '%s' in %s.", correctAnswer, topic, subject)
	case TypeFillBlank:
		return fmt.Sprintf("The correct answer is '%s'.", correctAnswer)
	case TypeMCQ:
		return "Correct: " + correctAnswer
	case TypeCode:
		return "The output is: " + correctAnswer
	case TypeComplexity:
		return "The correct complexity is " + correctAnswer
	default:
		return "Answer: " + correctAnswer
	}
}

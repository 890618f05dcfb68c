package evaluation

import "testing"

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		approach ApproachVerdict
		answer   AnswerVerdict
	}{
		{
			name:     "plain sentence",
			text:     "Nice work.\nThe student's solution approach is CORRECT and the final answer is MATCHES the reference answer.",
			approach: ApproachCorrect,
			answer:   AnswerMatches,
		},
		{
			name:     "bracketed keywords",
			text:     "The student's solution approach is [PARTIALLY CORRECT] and the final answer is [DOES NOT MATCH] the reference answer.",
			approach: ApproachPartiallyCorrect,
			answer:   AnswerDoesNotMatch,
		},
		{
			name:     "bold and lower case",
			text:     "the student's solution approach is **incorrect**, and the final answer is **does not match** the reference answer",
			approach: ApproachIncorrect,
			answer:   AnswerDoesNotMatch,
		},
		{
			name: "last sentence wins",
			text: "If the solution approach is CORRECT and the final answer is MATCHES you pass.\n" +
				"The student's solution approach is INCORRECT and the final answer is DOES NOT MATCH the reference answer.",
			approach: ApproachIncorrect,
			answer:   AnswerDoesNotMatch,
		},
		{
			name:     "no closing sentence",
			text:     "The work looks fine to me.",
			approach: ApproachUnknown,
			answer:   AnswerUnknown,
		},
		{
			name:     "empty",
			approach: ApproachUnknown,
			answer:   AnswerUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ParseVerdict(tc.text)
			if v.Approach != tc.approach || v.Answer != tc.answer {
				t.Fatalf("got %q/%q, want %q/%q", v.Approach, v.Answer, tc.approach, tc.answer)
			}
			if v.Text != tc.text {
				t.Fatalf("feedback text must be kept verbatim")
			}
			if v.Parsed() != (tc.approach != ApproachUnknown) {
				t.Fatalf("Parsed() = %v", v.Parsed())
			}
		})
	}
}

func TestScores(t *testing.T) {
	if ApproachScore(ApproachCorrect) != 1 || ApproachScore(ApproachPartiallyCorrect) != 0.5 ||
		ApproachScore(ApproachIncorrect) != 0 || ApproachScore(ApproachUnknown) != 0 {
		t.Fatalf("unexpected approach scores")
	}
	if AnswerScore(AnswerMatches) != 1 || AnswerScore(AnswerDoesNotMatch) != 0 || AnswerScore(AnswerUnknown) != 0 {
		t.Fatalf("unexpected answer scores")
	}
}

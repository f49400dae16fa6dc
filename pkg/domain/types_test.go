package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuizQuestionDecodesWholeFloatIndex(t *testing.T) {
	cases := map[string]int{
		`{"question":"Q?","options":["a","b","c","d"],"correctAnswer":2}`:    2,
		`{"question":"Q?","options":["a","b","c","d"],"correctAnswer":2.0}`:  2,
		`{"question":"Q?","options":["a","b","c","d"],"correctAnswer":3e0}`:  3,
		`{"question":"Q?","options":["a","b","c","d"],"correctAnswer":"1"}`:  1,
		`{"question":"Q?","options":["a","b","c","d"]}`:                      -1,
		`{"question":"Q?","options":["a","b","c","d"],"correctAnswer":-0.0}`: 0,
	}
	for raw, want := range cases {
		var q QuizQuestion
		require.NoError(t, json.Unmarshal([]byte(raw), &q), raw)
		assert.Equal(t, want, q.CorrectAnswer, raw)
		assert.Equal(t, "Q?", q.Question)
		assert.Len(t, q.Options, 4)
	}
}

func TestQuizQuestionRejectsFractionalIndex(t *testing.T) {
	for _, raw := range []string{
		`{"question":"Q?","options":["a"],"correctAnswer":1.5}`,
		`{"question":"Q?","options":["a"],"correctAnswer":"two"}`,
		`{"question":"Q?","options":["a"],"correctAnswer":1e12}`,
	} {
		var q QuizQuestion
		assert.Error(t, json.Unmarshal([]byte(raw), &q), raw)
	}
}

func TestQuizQuestionMarshalKeepsIntegerIndex(t *testing.T) {
	raw, err := json.Marshal(QuizQuestion{Question: "Q?", Options: []string{"a", "b"}, CorrectAnswer: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":"Q?","options":["a","b"],"correctAnswer":1}`, string(raw))
}

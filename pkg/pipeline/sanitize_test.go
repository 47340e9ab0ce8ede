package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "Plain", input: "sore left knee", want: "sore left knee"},
		{name: "Keeps Whitespace", input: "line1\n\tline2\r\n", want: "line1\n\tline2\r\n"},
		{name: "Strips ANSI And NUL", input: "knee\x1b[31m pain\x00", want: "knee[31m pain"},
		{name: "Invalid UTF-8", input: "bad \xff byte", wantErr: pipeline.ErrInvalidUTF8},
		{name: "Too Large", input: strings.Repeat("a", pipeline.DefaultMaxTextSize+1), wantErr: pipeline.ErrTextTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.SanitizeText(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeText_EnvOverride(t *testing.T) {
	t.Setenv(pipeline.EnvMaxTextSize, "8")
	_, err := pipeline.SanitizeText("123456789")
	assert.ErrorIs(t, err, pipeline.ErrTextTooLarge)
}

func TestMachine_SanitizesFreeText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.machine

	in := validInputs()
	in.HasPain = true
	in.PainDetails = "knee\x07"
	require.NoError(t, m.SetInputs(ctx, in))
	assert.Equal(t, "knee", m.Session().Inputs.PainDetails)

	t.Setenv(pipeline.EnvMaxTextSize, "16")
	err := m.SubmitFeedback(ctx, domain.SessionFeedback{
		Notes:     "fine",
		Exercises: []domain.ExerciseFeedback{{ExerciseID: "squat", Notes: strings.Repeat("x", 17)}},
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"exercises[0].notes"}, ve.Fields)
	assert.Nil(t, m.Session().Feedback)
}

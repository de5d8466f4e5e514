package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    TaskStatus
		wantErr bool
	}{
		{"DONE", StatusDone, false},
		{"in_progress", StatusInProgress, false},
		{"  Ready_To_Develop ", StatusReadyToDevelop, false},
		{"TODO", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("urgent")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)

	_, err = ParsePriority("critical")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTaskUpdateEmpty(t *testing.T) {
	assert.True(t, TaskUpdate{}.Empty())

	title := "Renamed"
	assert.False(t, TaskUpdate{Title: &title}.Empty())
}

func TestSummaries(t *testing.T) {
	task := Task{ID: 42, ProjectID: 7, Title: "Fix bug", Status: StatusDone, CreatedAt: time.Now()}
	assert.Equal(t, TaskSummary{ID: 42, Title: "Fix bug", Status: StatusDone, ProjectID: 7}, task.Summary())

	project := Project{ID: 7, Name: "Website", OwnerID: "u1"}
	assert.Equal(t, ProjectSummary{ID: 7, Name: "Website"}, project.Summary())
}

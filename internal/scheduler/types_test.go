package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerValidate(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{"valid interval", Trigger{Interval: 5 * time.Minute}, false},
		{"valid calendar", Trigger{Calendar: &CalendarSpec{Hour: 3, Minute: 30}}, false},
		{"calendar with weekdays", Trigger{Calendar: &CalendarSpec{Hour: 9, Minute: 0, Weekdays: []time.Weekday{time.Monday, time.Friday}}}, false},
		{"neither set", Trigger{}, true},
		{"both set", Trigger{Interval: time.Minute, Calendar: &CalendarSpec{Hour: 1}}, true},
		{"sub-second interval", Trigger{Interval: 100 * time.Millisecond}, true},
		{"hour out of range", Trigger{Calendar: &CalendarSpec{Hour: 24}}, true},
		{"negative hour", Trigger{Calendar: &CalendarSpec{Hour: -1}}, true},
		{"minute out of range", Trigger{Calendar: &CalendarSpec{Hour: 0, Minute: 60}}, true},
		{"invalid weekday", Trigger{Calendar: &CalendarSpec{Hour: 0, Weekdays: []time.Weekday{time.Weekday(7)}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTriggerCronSpec(t *testing.T) {
	t.Run("every day", func(t *testing.T) {
		tr := Trigger{Calendar: &CalendarSpec{Hour: 3, Minute: 30}}
		assert.Equal(t, "30 3 * * *", tr.cronSpec())
	})

	t.Run("restricted weekdays", func(t *testing.T) {
		tr := Trigger{Calendar: &CalendarSpec{Hour: 9, Minute: 0, Weekdays: []time.Weekday{time.Monday, time.Wednesday}}}
		assert.Equal(t, "0 9 * * 1,3", tr.cronSpec())
	})
}

func TestJobApplyDefaults(t *testing.T) {
	job := Job{ID: "j1"}
	job.applyDefaults()

	assert.Equal(t, 1, job.MaxInstances)
	assert.Equal(t, DefaultMisfireGrace, job.MisfireGrace)
	assert.Equal(t, "j1", job.Name)

	explicit := Job{ID: "j2", Name: "custom", MaxInstances: 3, MisfireGrace: 5 * time.Minute}
	explicit.applyDefaults()

	require.Equal(t, 3, explicit.MaxInstances)
	require.Equal(t, 5*time.Minute, explicit.MisfireGrace)
	require.Equal(t, "custom", explicit.Name)
}

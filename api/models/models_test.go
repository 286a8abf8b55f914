package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverridesOnlySetFields(t *testing.T) {
	defaults := PrintOptions{Timelapse: Bool(true), UseAMS: Bool(false)}
	merged := defaults.Merge(PrintOptions{UseAMS: Bool(true), FlowCali: Bool(false)})

	assert.Equal(t, map[string]bool{
		"timelapse": true,
		"use_ams":   true,
		"flow_cali": false,
	}, merged.Map())

	// the receiver is left alone
	assert.False(t, *defaults.UseAMS)
	assert.Nil(t, defaults.FlowCali)
}

func TestOptionsGetSet(t *testing.T) {
	var o PrintOptions
	for _, name := range OptionNames {
		assert.Nil(t, o.Get(name), name)
		o.Set(name, true)
		require.NotNil(t, o.Get(name), name)
		assert.True(t, *o.Get(name), name)
	}
	assert.Len(t, o.Map(), len(OptionNames))

	o.Set("unknown", true)
	assert.Nil(t, o.Get("unknown"))
}

func TestEmptyOptionsMap(t *testing.T) {
	assert.Empty(t, PrintOptions{}.Map())
}

func TestValidateStatusChange(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{StatusQueued, StatusUploading},
		{StatusUploading, StatusCompleted},
		{StatusUploading, StatusCommandSent},
		{StatusUploading, StatusUploadFailed},
		{StatusCommandSent, StatusPrinting},
		{StatusCommandSent, StatusFailed},
		{StatusPrinting, StatusCompleted},
		{StatusPrinting, StatusFailed},
		{StatusQueued, StatusFailed},
	}
	for _, tc := range allowed {
		assert.NoError(t, ValidateStatusChange(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	rejected := []struct{ from, to JobStatus }{
		{StatusQueued, StatusPrinting},
		{StatusUploading, StatusPrinting},
		{StatusCommandSent, StatusCompleted},
		{StatusPrinting, StatusCommandSent},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusPrinting},
		{StatusUploadFailed, StatusFailed},
	}
	for _, tc := range rejected {
		assert.Error(t, ValidateStatusChange(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestJobStatusReporting(t *testing.T) {
	assert.Equal(t, StatusFailed, StatusUploadFailed.Reported())
	assert.Equal(t, StatusPrinting, StatusPrinting.Reported())

	assert.True(t, StatusUploadFailed.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusCommandSent.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
}

func TestCloneIsIndependent(t *testing.T) {
	job := &PrintJob{ID: "a", Files: []string{"x-1.3mf"}, CreatedAt: time.Now()}
	c := job.Clone()
	c.Files[0] = "changed"
	c.Status = StatusFailed

	assert.Equal(t, "x-1.3mf", job.Files[0])
	assert.Empty(t, job.Status)
}

package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_SavepointsDefaultsUnknown(t *testing.T) {
	s := New()
	assert.Equal(t, CapabilityUnknown, s.Savepoints())
}

func TestState_SetSavepoints(t *testing.T) {
	s := New()
	s.SetSavepoints(CapabilityNo)
	assert.Equal(t, CapabilityNo, s.Savepoints())
}

func TestState_DisallowedColumnResetPerPrepare(t *testing.T) {
	s := New()

	unlock := s.BeginPrepare()
	s.FlagDisallowedColumn("profile")
	assert.Equal(t, "profile", s.DisallowedColumn())
	unlock()

	unlock = s.BeginPrepare()
	defer unlock()
	assert.Equal(t, "", s.DisallowedColumn(), "flag must reset at the start of every prepare")
}

func TestState_IsolatedPerInstance(t *testing.T) {
	a := New()
	b := New()
	a.SetSavepoints(CapabilityYes)
	assert.Equal(t, CapabilityUnknown, b.Savepoints())
}

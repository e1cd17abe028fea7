package simenv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressforge/harness-go/pkg/cerrors"
)

func TestOfflineWindow(t *testing.T) {
	facade := New()
	facade.Install()
	defer facade.Restore()

	require.NoError(t, facade.CheckNetwork("example.com"), "no fault before the window opens")

	facade.SetOffline(100*time.Millisecond, OfflineFail)
	assert.True(t, facade.IsOffline())

	err := facade.CheckNetwork("example.com")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeConnectionFault, cerrors.GetErrorType(err))

	facade.ClearOffline()
	assert.False(t, facade.IsOffline())
	assert.NoError(t, facade.CheckNetwork("example.com"))
}

func TestOfflinePartialDoesNotFail(t *testing.T) {
	facade := New()
	facade.Install()
	defer facade.Restore()

	facade.SetOffline(time.Second, OfflinePartial)
	assert.True(t, facade.IsOffline())
	assert.NoError(t, facade.CheckNetwork("example.com"))
}

func TestRefcountedRestore(t *testing.T) {
	facade := New()
	facade.Install()
	facade.Install()
	facade.SetOffline(time.Minute, OfflineFail)

	facade.Restore()
	assert.True(t, facade.IsOffline(), "state survives while a reference remains")

	facade.Restore()
	assert.False(t, facade.IsOffline(), "last restore clears the state")
}

func TestSimulatedFreeSpace(t *testing.T) {
	facade := New()
	facade.Install()
	defer facade.Restore()

	facade.SetFreeSpace(5*1024*1024, time.Minute)
	free, err := facade.FreeSpace("/")
	require.NoError(t, err)
	assert.Equal(t, uint64(5*1024*1024), free)

	facade.ClearFreeSpace()
	free, err = facade.FreeSpace("/")
	require.NoError(t, err)
	assert.NotEqual(t, uint64(5*1024*1024), free)
}

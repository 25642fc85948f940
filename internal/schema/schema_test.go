package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T) *Catalogue {
	t.Helper()
	cat, err := Load("testdata/xml")
	require.NoError(t, err)
	return cat
}

func TestLoadResolvesClassedCommandByIDAndName(t *testing.T) {
	cat := loadTestdata(t)

	byID, ok := cat.ByID(0, 0, 4)
	require.True(t, ok)
	assert.Equal(t, "CurrentDate", byID.Name)
	assert.Equal(t, "common", byID.Project)
	assert.Equal(t, "Common", byID.Class)
	require.Len(t, byID.Args, 1)
	assert.Equal(t, String, byID.Args[0].Kind)
	assert.Equal(t, "date", byID.Args[0].Name)

	byName, ok := cat.ByName("common", "Common", "CurrentDate")
	require.True(t, ok)
	assert.Same(t, byID, byName)
}

func TestLoadAppliesClassBufferKindAsDefault(t *testing.T) {
	cat := loadTestdata(t)

	cmd, ok := cat.ByName("common", "SettingsState", "AllSettingsChanged")
	require.True(t, ok)
	assert.Equal(t, BufferAck, cmd.Buffer)
}

func TestLoadResolvesFlatFeatureWithClassIDZero(t *testing.T) {
	cat := loadTestdata(t)

	cmd, ok := cat.ByID(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, "piloting", cmd.Project)
	assert.Equal(t, "", cmd.Class)
	assert.Equal(t, "PCMD", cmd.Name)
	assert.Equal(t, BufferHighPrio, cmd.Buffer)
	assert.Equal(t, TimeoutPop, cmd.Timeout)

	require.Len(t, cmd.Args, 6)
	assert.Equal(t, U8, cmd.Args[0].Kind)
	assert.True(t, cmd.Args[0].Bitfield)
	assert.Equal(t, I8, cmd.Args[1].Kind)
	assert.Equal(t, I8, cmd.Args[2].Kind)
	assert.Equal(t, I8, cmd.Args[3].Kind)
	assert.Equal(t, I8, cmd.Args[4].Kind)
	assert.Equal(t, U32, cmd.Args[5].Kind)
	assert.Equal(t, "timestampAndSeqNum", cmd.Args[5].Name)
}

func TestLoadResolvesEnumArgWithInlineValues(t *testing.T) {
	cat := loadTestdata(t)

	cmd, ok := cat.ByName("piloting", "", "FlyingStateChanged")
	require.True(t, ok)
	require.Len(t, cmd.Args, 1)
	assert.Equal(t, Enum, cmd.Args[0].Kind)
	assert.Equal(t, []string{"landed", "takingoff", "hovering", "flying", "landing", "emergency"}, cmd.Args[0].EnumValues)
}

func TestLoadUnknownCommandMisses(t *testing.T) {
	cat := loadTestdata(t)

	_, ok := cat.ByID(0, 0, 99)
	assert.False(t, ok)

	_, ok = cat.ByName("common", "Common", "DoesNotExist")
	assert.False(t, ok)
}

func TestLoadRejectsMissingDirectory(t *testing.T) {
	_, err := Load("testdata/does-not-exist")
	assert.Error(t, err)
}

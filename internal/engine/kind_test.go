package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringNamesEveryKind(t *testing.T) {
	assert.Equal(t, "wal", KindWAL.String())
	assert.Equal(t, "lsm", KindLSM.String())
	assert.Equal(t, "sp", KindSP.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

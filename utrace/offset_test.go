package utrace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedOffset uint64

func (f fixedOffset) PieOffset(pid int) (uint64, error) {
	if pid < 0 {
		return 0, errors.New("no such process")
	}
	return uint64(f), nil
}

func TestRelocation(t *testing.T) {
	r, err := newRelocation(fixedOffset(0x555555554000), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0x555555555139, r.Runtime(0x1139))
	assert.EqualValues(t, 0x1139, r.Static(r.Runtime(0x1139)))

	r, err = newRelocation(NoPie{}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0x401000, r.Runtime(0x401000))

	_, err = newRelocation(fixedOffset(0), -1)
	assert.Error(t, err)
}

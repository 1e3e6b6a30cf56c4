package bininfo

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBinFile() *BinFile {
	return &BinFile{
		name: "loop",
		funcs: map[string]uint64{
			"_RoiStart":   0x1100,
			"_RoiEnd":     0x1140,
			"kernel":      0x1200,
			"kernel_init": 0x1280,
			"_Z4axpyPdS_": 0x1300,
			"axpy":        0x1300,
		},
		lines: []lineEntry{
			{addr: 0x1200, file: "/src/loop.c", line: 10},
			{addr: 0x1208, file: "/src/loop.c", line: 11},
			{addr: 0x1280, file: "/src/init.c", line: 3},
			{addr: 0x1290, file: "/src/util/loop.c", line: 11},
		},
	}
}

func TestFuncToPC(t *testing.T) {
	b := newBinFile()

	pc, err := b.FuncToPC("kernel")
	require.NoError(t, err)
	assert.EqualValues(t, 0x1200, pc)

	pc, err = b.FuncToPC("Start")
	require.NoError(t, err)
	assert.EqualValues(t, 0x1100, pc)

	// aliases of one address are a single match
	pc, err = b.FuncToPC("axp")
	require.NoError(t, err)
	assert.EqualValues(t, 0x1300, pc)

	_, err = b.FuncToPC("_Roi")
	var multiple *ErrMultipleMatches
	require.ErrorAs(t, err, &multiple)
	assert.Equal(t, []string{"_RoiEnd", "_RoiStart"}, multiple.Matches)

	_, err = b.FuncToPC("missing")
	require.ErrorAs(t, err, &multiple)
	assert.Empty(t, multiple.Matches)
	assert.EqualError(t, err, "missing: no matches")

	_, err = (&BinFile{}).FuncToPC("kernel")
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestLineForPC(t *testing.T) {
	b := newBinFile()

	file, line, err := b.LineForPC(0x1204)
	require.NoError(t, err)
	assert.Equal(t, "/src/loop.c", file)
	assert.Equal(t, 10, line)

	_, line, err = b.LineForPC(0x1208)
	require.NoError(t, err)
	assert.Equal(t, 11, line)

	_, _, err = b.LineForPC(0x1000)
	assert.Error(t, err)

	_, _, err = (&BinFile{}).LineForPC(0x1200)
	assert.ErrorIs(t, err, ErrNoDwarf)
}

func TestLineToPC(t *testing.T) {
	b := newBinFile()

	pc, err := b.LineToPC("/src/loop.c", 11)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1208, pc)

	pc, err = b.LineToPC("init.c", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1280, pc)

	_, err = b.LineToPC("loop.c", 11)
	var multiple *ErrMultipleMatches
	require.ErrorAs(t, err, &multiple)
	assert.Len(t, multiple.Matches, 2)

	_, err = b.LineToPC("loop.c", 99)
	assert.Error(t, err)
}

func TestInlined(t *testing.T) {
	b := newBinFile()
	_, err := b.Inlined("kernel")
	assert.ErrorIs(t, err, ErrNoDwarf)

	b.inlined = map[string][]InlinedFunc{"kernel": {{Low: 0x1400, High: 0x1410}}}
	copies, err := b.Inlined("kernel")
	require.NoError(t, err)
	assert.Len(t, copies, 1)
}

func TestPieOffsetNotPie(t *testing.T) {
	off, err := newBinFile().PieOffset(os.Getpid())
	require.NoError(t, err)
	assert.Zero(t, off)
}

func TestReadInvalid(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not an executable")), "x")
	assert.Error(t, err)
}

// buildFixture compiles the C program shared with the tracing tests.
func buildFixture(t *testing.T, pie bool) string {
	if runtime.GOOS != "linux" {
		t.Skip("ELF executables only")
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler")
	}

	out := filepath.Join(t.TempDir(), "loop")
	args := []string{"-O1", "-g", "-o", out, "../testdata/loop.c"}
	if pie {
		args = append(args, "-fPIE", "-pie")
	} else {
		args = append(args, "-no-pie")
	}
	msg, err := exec.Command(cc, args...).CombinedOutput()
	require.NoError(t, err, string(msg))
	return out
}

func TestOpenFixture(t *testing.T) {
	for _, pie := range []bool{false, true} {
		b, err := Open(buildFixture(t, pie))
		require.NoError(t, err)
		assert.Equal(t, pie, b.Pie())

		pc, err := b.FuncToPC("kernel")
		require.NoError(t, err)
		assert.NotZero(t, pc)

		file, line, err := b.LineForPC(pc)
		require.NoError(t, err)
		assert.Equal(t, "loop.c", filepath.Base(file))
		assert.GreaterOrEqual(t, line, 9)
		assert.LessOrEqual(t, line, 15)

		start, err := b.FuncToPC("_RoiStart")
		require.NoError(t, err)
		assert.NotEqual(t, pc, start)

		// s += b[i] inside the region
		loop, err := b.LineToPC("loop.c", 25)
		require.NoError(t, err)
		assert.NotZero(t, loop)
	}
}

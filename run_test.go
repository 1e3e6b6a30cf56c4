//go:build linux && amd64

package roofline

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tracing tests run a real C program under ptrace. They need a C compiler
// and permission to trace children, so they only run when
// ROOFLINE_PTRACE_TEST is set.

func buildTarget(t *testing.T, pie bool) string {
	if os.Getenv("ROOFLINE_PTRACE_TEST") == "" {
		t.Skip("set ROOFLINE_PTRACE_TEST to run tracing tests")
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler")
	}

	out := filepath.Join(t.TempDir(), "loop")
	args := []string{"-O1", "-g", "-o", out, "testdata/loop.c"}
	if pie {
		args = append(args, "-fPIE", "-pie")
	} else {
		args = append(args, "-no-pie")
	}
	cmd := exec.Command(cc, args...)
	msg, err := cmd.CombinedOutput()
	require.NoError(t, err, string(msg))
	return out
}

func checkLoop(t *testing.T, dir string, eng *Engine) {
	threads := eng.Reports().Threads()
	require.Len(t, threads, 1)
	points := threads[0].Points
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, "loop", p.Label)
	assert.EqualValues(t, 1000, p.Flops)
	// b[i] loads and c[i] stores; the marker calls are not counted
	assert.EqualValues(t, 8000, p.ReadBytes)
	assert.EqualValues(t, 8000, p.WriteBytes)
	assert.Equal(t, "loop.c", filepath.Base(p.Start.File))
	assert.Less(t, p.Start.Line, p.End.Line)

	_, err := os.Stat(filepath.Join(dir, ReportName(threads[0].Tid, false)))
	assert.NoError(t, err)
}

func TestRunMarkers(t *testing.T) {
	for _, pie := range []bool{false, true} {
		target := buildTarget(t, pie)
		dir := t.TempDir()
		eng, err := Run(target, nil, Config{OutputDir: dir})
		require.NoError(t, err)
		checkLoop(t, dir, eng)
	}
}

func TestRunTracedSeparate(t *testing.T) {
	target := buildTarget(t, false)
	dir := t.TempDir()
	eng, err := Run(target, nil, Config{OutputDir: dir, TraceFunc: "kernel", SeparateCalls: true})
	require.NoError(t, err)

	threads := eng.Reports().Threads()
	require.Len(t, threads, 1)
	points := threads[0].Points
	require.Len(t, points, 3)
	assert.Equal(t, []string{"kernel1", "kernel2", "kernel3"}, Labels(points))
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Flops, uint64(10))
		assert.Equal(t, points[0].Flops, p.Flops)
	}
}

func TestRunTracedUpToCall(t *testing.T) {
	target := buildTarget(t, false)
	eng, err := Run(target, nil, Config{OutputDir: t.TempDir(), TraceFunc: "kernel", SeparateCalls: true, UpToCall: 2})
	require.NoError(t, err)
	assert.Len(t, eng.Reports().Threads()[0].Points, 2)
}

func TestRunTiming(t *testing.T) {
	target := buildTarget(t, false)
	dir := t.TempDir()
	eng, err := Run(target, nil, Config{OutputDir: dir, Timing: true})
	require.NoError(t, err)

	p := eng.Reports().Threads()[0].Points[0]
	assert.Zero(t, p.Flops)
	assert.Greater(t, p.Elapsed(), 0.0)
	_, err = os.Stat(filepath.Join(dir, ReportName(eng.Reports().Threads()[0].Tid, true)))
	assert.NoError(t, err)
}

package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfscribe/internal/chunkplan"
	"pdfscribe/internal/config"
	"pdfscribe/internal/engine"
)

type probeOnlyEngine struct {
	out   *engine.ProbeOut
	err   error
	calls int

	samplePages int
}

func (e *probeOnlyEngine) Doctor(context.Context) (*engine.Diag, error) { return nil, nil }

func (e *probeOnlyEngine) Probe(_ context.Context, _ string, samplePages int) (*engine.ProbeOut, error) {
	e.calls++
	e.samplePages = samplePages
	return e.out, e.err
}

func (e *probeOnlyEngine) Split(context.Context, string, string, []chunkplan.PageRange) ([]engine.SplitChunk, error) {
	return nil, nil
}

func (e *probeOnlyEngine) ConvertLayout(context.Context, *engine.ConvertRequest) (*engine.ConvertResult, error) {
	return nil, nil
}

func (e *probeOnlyEngine) ConvertNativeText(context.Context, *engine.ConvertRequest) (*engine.ConvertResult, error) {
	return nil, nil
}

func writeTempPDF(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestProbeMapsEngineOutput(t *testing.T) {
	cfg := config.Default()
	eng := &probeOnlyEngine{out: &engine.ProbeOut{
		PageCount:       42,
		SampledPages:    12,
		AvgCharsPerPage: 1500,
		GarbageRatio:    0.01,
		WhitespaceRatio: 0.4,
	}}
	path := writeTempPDF(t, 1024)

	res, err := Probe(context.Background(), cfg, eng, path)
	require.NoError(t, err)

	assert.Equal(t, path, res.Input.Path)
	assert.Equal(t, int64(1024), res.Input.FileBytes)
	assert.Equal(t, 42, res.Input.PageCount)
	assert.Equal(t, 12, res.Sample.SampledPages)
	assert.Equal(t, 1500, res.Sample.AvgCharsPerPage)
	assert.InDelta(t, 0.01, res.Sample.GarbageRatio, 1e-9)
	assert.InDelta(t, 0.4, res.Sample.WhitespaceRatio, 1e-9)
	assert.Equal(t, cfg.Classification.SamplePages, eng.samplePages)
}

func TestProbeMissingInput(t *testing.T) {
	cfg := config.Default()
	eng := &probeOnlyEngine{}

	_, err := Probe(context.Background(), cfg, eng, filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.Zero(t, eng.calls)
}

func TestProbeFileSizeCeilingCheckedBeforeEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxInputFileBytes = 512
	eng := &probeOnlyEngine{out: &engine.ProbeOut{PageCount: 1}}
	path := writeTempPDF(t, 1024)

	_, err := Probe(context.Background(), cfg, eng, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_input_file_bytes")
	assert.Zero(t, eng.calls, "no subprocess is spent on an oversized file")
}

func TestProbePageCeiling(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxInputPages = 100
	eng := &probeOnlyEngine{out: &engine.ProbeOut{PageCount: 101}}
	path := writeTempPDF(t, 1024)

	_, err := Probe(context.Background(), cfg, eng, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_input_pages")
	assert.Equal(t, 1, eng.calls)
}

func TestProbeZeroPagesFatal(t *testing.T) {
	cfg := config.Default()
	eng := &probeOnlyEngine{out: &engine.ProbeOut{PageCount: 0}}
	path := writeTempPDF(t, 1024)

	_, err := Probe(context.Background(), cfg, eng, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero pages")
}

func TestProbeEngineFailure(t *testing.T) {
	cfg := config.Default()
	eng := &probeOnlyEngine{err: errors.New("python exploded")}
	path := writeTempPDF(t, 1024)

	_, err := Probe(context.Background(), cfg, eng, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine probe failed")
}

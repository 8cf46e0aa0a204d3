package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfscribe/internal/chunkplan"
	"pdfscribe/internal/config"
)

// stubScript drains stdin and prints a fixed JSON response, which is all
// the wire protocol requires.
func stubScript(response string) string {
	return "cat >/dev/null\nprintf '%s' '" + response + "'\n"
}

const defaultStub = `{"ok":true,"markdown":"","warnings":[],"meta":{}}`

// newStubEngine writes the four engine scripts as shell stubs and builds a
// PythonEngine that runs them with /bin/sh.
func newStubEngine(t *testing.T, overrides map[string]string) (*PythonEngine, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	scripts := map[string]string{
		scriptLayoutRunner: stubScript(defaultStub),
		scriptProbe:        stubScript(defaultStub),
		scriptSplit:        stubScript(defaultStub),
		scriptNativeText:   stubScript(defaultStub),
	}
	for name, body := range overrides {
		scripts[name] = body
	}
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755))
	}

	cfg := config.Default()
	cfg.Paths.ScriptsDir = dir
	cfg.Paths.ArtifactsDir = ""
	cfg.Security.PinScriptsDir = false
	cfg.Layout.PythonExe = "/bin/sh"
	cfg.Layout.ProbeTimeoutSeconds = 30
	cfg.Layout.SplitTimeoutSeconds = 30
	cfg.Layout.ChunkTimeoutSeconds = 30

	eng, err := NewPythonEngine(cfg, zerolog.Nop())
	require.NoError(t, err)
	return eng, cfg
}

func TestNewPythonEngineMissingScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptProbe), []byte("exit 0\n"), 0o755))

	cfg := config.Default()
	cfg.Paths.ScriptsDir = dir
	cfg.Security.PinScriptsDir = false

	_, err := NewPythonEngine(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingScript)
}

func TestProbeRoundTrip(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptProbe: stubScript(`{"page_count":120,"sampled_pages":12,"avg_chars_per_page":1500,"garbage_ratio":0.01,"whitespace_ratio":0.3}`),
	})

	out, err := eng.Probe(context.Background(), "input.pdf", 12)
	require.NoError(t, err)
	assert.Equal(t, 120, out.PageCount)
	assert.Equal(t, 12, out.SampledPages)
	assert.Equal(t, 1500, out.AvgCharsPerPage)
	assert.InDelta(t, 0.01, out.GarbageRatio, 1e-9)
}

func TestProbeApplicationError(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptProbe: stubScript(`{"page_count":0,"error":"encrypted pdf"}`),
	})

	_, err := eng.Probe(context.Background(), "input.pdf", 12)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted pdf")
}

func TestNonZeroExitIsHardFailure(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptProbe: "cat >/dev/null\necho 'traceback: boom' >&2\nexit 3\n",
	})

	_, err := eng.Probe(context.Background(), "input.pdf", 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExitStatus)

	// The captured error channel rides along for diagnostics.
	assert.Contains(t, err.Error(), "traceback: boom")
}

func TestMalformedResponse(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptProbe: stubScript(`this is not json`),
	})

	_, err := eng.Probe(context.Background(), "input.pdf", 12)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestTimeoutKillsProcessAndRetainsStderr(t *testing.T) {
	eng, cfg := newStubEngine(t, map[string]string{
		scriptProbe: "cat >/dev/null\necho 'still warming up' >&2\nexec sleep 30\n",
	})
	cfg.Layout.ProbeTimeoutSeconds = 1

	_, err := eng.Probe(context.Background(), "input.pdf", 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "still warming up")
}

// A child that floods stderr before answering must not deadlock against a
// full pipe buffer; the concurrent drains have to keep it moving.
func TestVerboseStderrDoesNotDeadlock(t *testing.T) {
	flood := "cat >/dev/null\n" +
		"i=0\nwhile [ $i -lt 8192 ]; do echo 'noise noise noise noise noise noise noise noise' >&2; i=$((i+1)); done\n" +
		"printf '%s' '{\"page_count\":2,\"sampled_pages\":2,\"avg_chars_per_page\":10,\"garbage_ratio\":0,\"whitespace_ratio\":0}'\n"
	eng, _ := newStubEngine(t, map[string]string{scriptProbe: flood})

	out, err := eng.Probe(context.Background(), "input.pdf", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out.PageCount)
}

func TestSplitFailure(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptSplit: stubScript(`{"ok":false,"error":"cannot split encrypted pdf"}`),
	})

	_, err := eng.Split(context.Background(), "input.pdf", t.TempDir(), []chunkplan.PageRange{{StartPage: 1, EndPage: 10}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot split encrypted pdf")
}

func TestSplitOutputs(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptSplit: stubScript(`{"ok":true,"outputs":[{"chunk_index":0,"start_page":1,"end_page":10,"path":"/tmp/chunk0.pdf"}]}`),
	})

	outputs, err := eng.Split(context.Background(), "input.pdf", t.TempDir(), []chunkplan.PageRange{{StartPage: 1, EndPage: 10}})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "/tmp/chunk0.pdf", outputs[0].Path)
	assert.Equal(t, 1, outputs[0].StartPage)
	assert.Equal(t, 10, outputs[0].EndPage)
}

func TestConvertReturnsOKFalseWithoutError(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptNativeText: stubScript(`{"ok":false,"markdown":"","warnings":["missing text backend: pypdf"],"meta":{}}`),
	})

	out, err := eng.ConvertNativeText(context.Background(), &ConvertRequest{InputPath: "input.pdf"})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Contains(t, out.Warnings[0], NativeTextMissingBackend)
}

func TestDoctor(t *testing.T) {
	eng, _ := newStubEngine(t, map[string]string{
		scriptLayoutRunner: stubScript(`{"python_exe":"/usr/bin/python3","python_version":"3.12.1","engine_version":"2.0.0","ok":true}`),
	})

	diag, err := eng.Doctor(context.Background())
	require.NoError(t, err)
	assert.True(t, diag.OK)
	assert.Equal(t, "3.12.1", diag.PythonVersion)
}

func TestContextCancellation(t *testing.T) {
	eng, cfg := newStubEngine(t, map[string]string{
		scriptProbe: "cat >/dev/null\nexec sleep 30\n",
	})
	cfg.Layout.ProbeTimeoutSeconds = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Probe(ctx, "input.pdf", 12)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolvePythonExe(t *testing.T) {
	assert.Equal(t, "python3", resolvePythonExe(""))
	assert.Equal(t, "python3", resolvePythonExe("auto"))
	assert.Equal(t, "python3", resolvePythonExe("AUTO"))
	assert.Equal(t, "/usr/bin/python3.12", resolvePythonExe("/usr/bin/python3.12"))
}

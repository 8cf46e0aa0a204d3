package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pdfscribe/internal/chunkplan"
	"pdfscribe/internal/config"
)

// Engine helper scripts expected under the scripts directory.
const (
	scriptLayoutRunner = "layout_runner.py"
	scriptProbe        = "pdf_probe.py"
	scriptSplit        = "pdf_split.py"
	scriptNativeText   = "pdf_text.py"
)

// NativeTextMissingBackend is the warning substring the native-text script
// emits when its extraction backend is not importable. The pipeline uses it
// to trigger the layout-engine fallback. A structured error code in the
// response contract would be sturdier; until the script protocol changes,
// the substring is the contract.
const NativeTextMissingBackend = "missing text backend"

// PythonEngine invokes the conversion engine as Python subprocesses, one
// process per capability call.
type PythonEngine struct {
	cfg        *config.Config
	scriptsDir string
	pythonExe  string
	log        zerolog.Logger
}

// NewPythonEngine validates the scripts directory and resolves the Python
// interpreter. With security.pin_scripts_dir enabled the directory must
// resolve inside the current working directory.
func NewPythonEngine(cfg *config.Config, log zerolog.Logger) (*PythonEngine, error) {
	scriptsDir := cfg.Paths.ScriptsDir

	if cfg.Security.PinScriptsDir {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		canon, err := filepath.Abs(scriptsDir)
		if err != nil {
			return nil, fmt.Errorf("resolving scripts_dir %s: %w", scriptsDir, err)
		}
		if canon != cwd && !strings.HasPrefix(canon, cwd+string(os.PathSeparator)) {
			return nil, fmt.Errorf("%w: %s", ErrScriptsDirUnpinned, canon)
		}
	}

	for _, script := range []string{scriptLayoutRunner, scriptProbe, scriptSplit, scriptNativeText} {
		p := filepath.Join(scriptsDir, script)
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingScript, p)
		}
	}

	return &PythonEngine{
		cfg:        cfg,
		scriptsDir: scriptsDir,
		pythonExe:  resolvePythonExe(cfg.Layout.PythonExe),
		log:        log,
	}, nil
}

// resolvePythonExe maps empty or "auto" to python3 and expands a leading
// tilde. Machine-specific overrides arrive via PDFSCRIBE_PYTHON, which the
// config layer has already applied by this point.
func resolvePythonExe(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "auto") {
		return "python3"
	}
	if rest, ok := strings.CutPrefix(raw, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return raw
}

func (e *PythonEngine) script(name string) string {
	return filepath.Join(e.scriptsDir, name)
}

func (e *PythonEngine) timeout(seconds int64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Doctor implements Engine.
func (e *PythonEngine) Doctor(ctx context.Context) (*Diag, error) {
	var diag Diag
	req := map[string]any{"cmd": "doctor"}
	if err := e.runJSON(ctx, "Doctor", scriptLayoutRunner, req, e.timeout(e.cfg.Layout.DoctorTimeoutSeconds), &diag); err != nil {
		return nil, err
	}
	return &diag, nil
}

// Probe implements Engine.
func (e *PythonEngine) Probe(ctx context.Context, inputPath string, samplePages int) (*ProbeOut, error) {
	req := map[string]any{
		"input_pdf":    inputPath,
		"sample_pages": samplePages,
	}
	var out ProbeOut
	if err := e.runJSON(ctx, "Probe", scriptProbe, req, e.timeout(e.cfg.Layout.ProbeTimeoutSeconds), &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, newCallError("Probe", scriptProbe, fmt.Errorf("probe error: %s", out.Error), "")
	}
	return &out, nil
}

// Split implements Engine.
func (e *PythonEngine) Split(ctx context.Context, inputPath, outDir string, ranges []chunkplan.PageRange) ([]SplitChunk, error) {
	req := map[string]any{
		"input_pdf": inputPath,
		"out_dir":   outDir,
		"chunks":    ranges,
	}
	var out splitOut
	if err := e.runJSON(ctx, "Split", scriptSplit, req, e.timeout(e.cfg.Layout.SplitTimeoutSeconds), &out); err != nil {
		return nil, err
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "split failed"
		}
		return nil, newCallError("Split", scriptSplit, fmt.Errorf("split error: %s", msg), "")
	}
	return out.Outputs, nil
}

// ConvertLayout implements Engine.
func (e *PythonEngine) ConvertLayout(ctx context.Context, req *ConvertRequest) (*ConvertResult, error) {
	return e.convert(ctx, "ConvertLayout", scriptLayoutRunner, req)
}

// ConvertNativeText implements Engine.
func (e *PythonEngine) ConvertNativeText(ctx context.Context, req *ConvertRequest) (*ConvertResult, error) {
	return e.convert(ctx, "ConvertNativeText", scriptNativeText, req)
}

// convertEnvelope is the wire request for both convert scripts.
type convertEnvelope struct {
	Cmd        string            `json:"cmd"`
	Req        *ConvertRequest   `json:"req"`
	NativeText nativeTextOptions `json:"native_text"`
	Offline    bool              `json:"offline_only"`
}

type nativeTextOptions struct {
	Backend            string `json:"backend"`
	NormalizeUnicode   bool   `json:"normalize_unicode"`
	CollapseWhitespace bool   `json:"collapse_whitespace"`
	FixHyphenation     bool   `json:"fix_hyphenation"`
}

func (e *PythonEngine) convert(ctx context.Context, op, script string, req *ConvertRequest) (*ConvertResult, error) {
	envelope := convertEnvelope{
		Cmd: "convert",
		Req: req,
		NativeText: nativeTextOptions{
			Backend:            e.cfg.NativeText.Backend,
			NormalizeUnicode:   e.cfg.NativeText.NormalizeUnicode,
			CollapseWhitespace: e.cfg.NativeText.CollapseWhitespace,
			FixHyphenation:     e.cfg.NativeText.FixHyphenation,
		},
		Offline: e.cfg.Global.OfflineOnly,
	}

	// chunk_timeout_seconds of zero disables the deadline for conversions.
	var out ConvertResult
	if err := e.runJSON(ctx, op, script, envelope, e.timeout(e.cfg.Layout.ChunkTimeoutSeconds), &out); err != nil {
		return nil, err
	}
	if !out.OK {
		e.log.Warn().
			Str("op", op).
			Int("chunk_index", req.ChunkIndex).
			Strs("warnings", out.Warnings).
			Msg("engine convert returned ok=false")
	}
	return &out, nil
}

// runJSON spawns the script, writes one JSON request to its stdin, and
// decodes one JSON response from its stdout.
//
// Stdout and stderr are drained on independent goroutines while a third
// waits for process exit; a child that floods either pipe therefore can
// never deadlock against a full buffer. On timeout the process is killed,
// the drains are joined, and the retained stderr rides along on the error.
func (e *PythonEngine) runJSON(ctx context.Context, op, scriptName string, req any, timeout time.Duration, out any) error {
	script := e.script(scriptName)

	payload, err := json.Marshal(req)
	if err != nil {
		return newCallError(op, scriptName, fmt.Errorf("encoding request: %w", err), "")
	}

	e.log.Debug().
		Str("op", op).
		Str("script", script).
		Dur("timeout", timeout).
		Msg("invoking engine subprocess")

	cmd := exec.Command(e.pythonExe, script)
	cmd.Env = os.Environ()
	for k, v := range e.cfg.Layout.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if e.cfg.Paths.ArtifactsDir != "" {
		cmd.Env = append(cmd.Env, "PDFSCRIBE_ARTIFACTS_DIR="+e.cfg.Paths.ArtifactsDir)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return newCallError(op, scriptName, fmt.Errorf("%w: %v", ErrSpawn, err), "")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return newCallError(op, scriptName, fmt.Errorf("%w: %v", ErrSpawn, err), "")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return newCallError(op, scriptName, fmt.Errorf("%w: %v", ErrSpawn, err), "")
	}

	if err := cmd.Start(); err != nil {
		return newCallError(op, scriptName, fmt.Errorf("%w: %v", ErrSpawn, err), "")
	}

	// The write may fail with a broken pipe if the child dies early; the
	// exit status carries the real failure in that case.
	go func() {
		_, _ = stdin.Write(payload)
		_ = stdin.Close()
	}()

	var outBuf, errBuf bytes.Buffer
	var drains sync.WaitGroup
	drains.Add(2)
	go func() {
		defer drains.Done()
		_, _ = io.Copy(&outBuf, stdout)
	}()
	go func() {
		defer drains.Done()
		_, _ = io.Copy(&errBuf, stderr)
	}()

	waitCh := make(chan error, 1)
	go func() {
		drains.Wait()
		waitCh <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timeoutCh:
		_ = cmd.Process.Kill()
		<-waitCh
		return newCallError(op, scriptName,
			fmt.Errorf("%w after %s", ErrTimeout, timeout),
			strings.TrimSpace(errBuf.String()))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitCh
		return newCallError(op, scriptName, ctx.Err(), strings.TrimSpace(errBuf.String()))
	}

	if waitErr != nil {
		return newCallError(op, scriptName,
			fmt.Errorf("%w: %v", ErrExitStatus, waitErr),
			strings.TrimSpace(errBuf.String()))
	}

	if e.cfg.Debug.KeepEngineStderr && errBuf.Len() > 0 {
		e.log.Debug().
			Str("op", op).
			Str("script", scriptName).
			Str("stderr", strings.TrimSpace(errBuf.String())).
			Msg("engine stderr")
	}

	if err := json.Unmarshal(outBuf.Bytes(), out); err != nil {
		return newCallError(op, scriptName,
			fmt.Errorf("%w: %v", ErrMalformedResponse, err),
			strings.TrimSpace(errBuf.String()))
	}
	return nil
}

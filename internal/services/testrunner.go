package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
)

const (
	TestModeSimulated = "simulated"
	TestModeLocal     = "local"
)

// TestConfig is what package.json says about how to run tests.
type TestConfig struct {
	Framework     string `json:"framework"` // vitest, jest, playwright, unknown
	Command       string `json:"command"`
	HasTestScript bool   `json:"has_test_script"`
}

// DetectTestFramework reads dependencies and scripts from package.json.
func DetectTestFramework(packageJSON string) TestConfig {
	unknown := TestConfig{Framework: "unknown"}
	if packageJSON == "" {
		return unknown
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
		Scripts         map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(packageJSON), &pkg); err != nil {
		logger.Warnf("[TestRunner] unreadable package.json: %v", err)
		return unknown
	}
	has := func(name string) bool {
		_, a := pkg.Dependencies[name]
		_, b := pkg.DevDependencies[name]
		return a || b
	}
	script := pkg.Scripts["test"]
	pick := func(framework, fallback string) TestConfig {
		cmd := script
		if cmd == "" {
			cmd = fallback
		}
		return TestConfig{Framework: framework, Command: cmd, HasTestScript: script != ""}
	}

	switch {
	case has("vitest"):
		return pick("vitest", "vitest run")
	case has("jest") || has("@jest/core"):
		return pick("jest", "jest")
	case has("@playwright/test"):
		return pick("playwright", "playwright test")
	case script != "":
		return TestConfig{Framework: "unknown", Command: script, HasTestScript: true}
	}
	return unknown
}

var (
	jestSummaryRe   = regexp.MustCompile(`(?i)Tests:\s+(\d+)\s+passed,\s+(\d+)\s+failed,\s+(\d+)\s+total`)
	passedFailedRe  = regexp.MustCompile(`(?i)(\d+)\s+passed,\s+(\d+)\s+failed`)
	testFilesPassRe = regexp.MustCompile(`(?i)Test Files\s+(\d+)\s+passed`)
	testFilesFailRe = regexp.MustCompile(`(?i)Test Files\s+(\d+)\s+failed`)
)

// ParseTestOutput extracts total/passed/failed from common runner summaries.
// Unrecognized output yields zeros.
func ParseTestOutput(output string) (total, passed, failed int) {
	if m := jestSummaryRe.FindStringSubmatch(output); m != nil {
		return atoi(m[3]), atoi(m[1]), atoi(m[2])
	}
	if m := passedFailedRe.FindStringSubmatch(output); m != nil {
		passed, failed = atoi(m[1]), atoi(m[2])
		return passed + failed, passed, failed
	}
	mp := testFilesPassRe.FindStringSubmatch(output)
	mf := testFilesFailRe.FindStringSubmatch(output)
	if mp != nil || mf != nil {
		if mp != nil {
			passed = atoi(mp[1])
		}
		if mf != nil {
			failed = atoi(mf[1])
		}
		return passed + failed, passed, failed
	}
	return 0, 0, 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

type TestRunRequest struct {
	Project     *models.Project
	Branch      string
	CommitSHA   string
	Token       string
	PackageJSON string // used by the simulated runner
}

type TestResult struct {
	Mode       string `json:"mode"`
	Framework  string `json:"framework"`
	Command    string `json:"command,omitempty"`
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
}

// Summary converts the result into review prompt input.
func (r *TestResult) Summary() *TestSummary {
	if r == nil {
		return nil
	}
	return &TestSummary{Total: r.Total, Passed: r.Passed, Failed: r.Failed}
}

type TestRunner interface {
	Run(ctx context.Context, req TestRunRequest) (*TestResult, error)
}

// NewTestRunner picks the runner for the configured mode.
func NewTestRunner(cfg config.TestsConfig) TestRunner {
	if cfg.Mode == TestModeLocal {
		return &LocalTestRunner{timeout: cfg.Timeout}
	}
	return SimulatedTestRunner{}
}

// SimulatedTestRunner executes nothing and reports whether a test script exists.
type SimulatedTestRunner struct{}

func (SimulatedTestRunner) Run(_ context.Context, req TestRunRequest) (*TestResult, error) {
	tc := DetectTestFramework(req.PackageJSON)
	out := "No tests found in repository"
	if tc.HasTestScript || tc.Command != "" {
		out = fmt.Sprintf("Test run simulated: %s tests detected (%s), not executed", tc.Framework, tc.Command)
	}
	return &TestResult{
		Mode:      TestModeSimulated,
		Framework: tc.Framework,
		Command:   tc.Command,
		Success:   true,
		Output:    out,
	}, nil
}

// LocalTestRunner clones the fix branch into a temp dir and runs its test command.
type LocalTestRunner struct {
	timeout time.Duration
}

const maxTestOutput = 64 * 1024

func (r *LocalTestRunner) Run(ctx context.Context, req TestRunRequest) (*TestResult, error) {
	dir, err := os.MkdirTemp("", "codemender-test-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &git.CloneOptions{
		URL:           req.Project.URL,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(req.Branch),
	}
	if auth := gitAuth(req.Token); auth != nil {
		opts.Auth = auth
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return nil, fmt.Errorf("clone %s for tests: %w", req.Branch, err)
	}

	pkg, _ := os.ReadFile(filepath.Join(dir, "package.json"))
	tc := DetectTestFramework(string(pkg))
	result := &TestResult{Mode: TestModeLocal, Framework: tc.Framework, Command: tc.Command}
	if tc.Command == "" {
		result.Success = true
		result.Output = "No tests found in repository"
		return result, nil
	}

	logger.Infof("[TestRunner] running %q on %s", tc.Command, req.Branch)
	start := time.Now()
	cmd := exec.CommandContext(ctx, "sh", "-c", tc.Command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true")
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()
	result.DurationMs = time.Since(start).Milliseconds()

	output := buf.String()
	result.Total, result.Passed, result.Failed = ParseTestOutput(output)
	if len(output) > maxTestOutput {
		output = output[len(output)-maxTestOutput:]
	}
	result.Output = output
	result.Success = runErr == nil && result.Failed == 0
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Error = fmt.Sprintf("tests timed out after %s", timeout)
		} else {
			result.Error = runErr.Error()
		}
	}
	return result, nil
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/mrsinham/ddsmlabel/internal/index"
	"github.com/mrsinham/ddsmlabel/internal/labels"
)

// binaryPath holds the path to the compiled binary (set once in TestMain)
var binaryPath string

// testContext holds state for a single scenario
type testContext struct {
	tmpDir   string
	exitCode int
	output   string
}

// buildBinary compiles the ddsmlabel binary once
func buildBinary() (string, error) {
	tmpFile, err := os.CreateTemp("", "ddsmlabel-test-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpFile.Close()

	_, thisFile, _, _ := runtime.Caller(0)
	cmd := exec.Command("go", "build", "-o", tmpFile.Name(), ".")
	cmd.Dir = filepath.Dir(thisFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build failed: %w\n%s", err, stderr.String())
	}

	return tmpFile.Name(), nil
}

// TestMain compiles the binary once before running all tests
func TestMain(m *testing.M) {
	var err error
	binaryPath, err = buildBinary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Remove(binaryPath)
	os.Exit(code)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tmpDir, err := os.MkdirTemp("", "ddsmlabel-e2e-*")
		if err != nil {
			return ctx, err
		}
		tc.tmpDir = tmpDir
		return ctx, nil
	})

	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.tmpDir != "" {
			os.RemoveAll(tc.tmpDir)
		}
		return ctx, nil
	})

	sc.Step(`^ddsmlabel is built$`, tc.ddsmlabelIsBuilt)
	sc.Step(`^a synthetic dataset in "([^"]*)" with (\d+) cases? per table$`, tc.aSyntheticDataset)
	sc.Step(`^a config file "([^"]*)" with:$`, tc.aConfigFileWith)
	sc.Step(`^an empty file "([^"]*)"$`, tc.anEmptyFile)
	sc.Step(`^the file "([^"]*)" is removed$`, tc.theFileIsRemoved)
	sc.Step(`^the first mask of "([^"]*)" is corrupted$`, tc.theFirstMaskIsCorrupted)
	sc.Step(`^I run ddsmlabel with "([^"]*)"$`, tc.iRunDdsmlabelWith)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^"([^"]*)" should exist$`, tc.shouldExist)
	sc.Step(`^"([^"]*)" should not exist$`, tc.shouldNotExist)
	sc.Step(`^"([^"]*)" should have (\d+) records$`, tc.shouldHaveRecords)
	sc.Step(`^"([^"]*)" should have (\d+) labels$`, tc.shouldHaveLabels)
	sc.Step(`^every label in "([^"]*)" should have (\d+) bounding box(?:es)?$`, tc.everyLabelShouldHaveBoxes)
}

func (tc *testContext) path(p string) string {
	return strings.ReplaceAll(p, "{tmpdir}", tc.tmpDir)
}

func (tc *testContext) ddsmlabelIsBuilt() error {
	if binaryPath == "" {
		return fmt.Errorf("binary not built")
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary does not exist at %s", binaryPath)
	}
	return nil
}

func (tc *testContext) aSyntheticDataset(dir string, cases int) error {
	args := fmt.Sprintf("synth %s --cases %d --width 160 --height 128 --seed 7 --speck --log-level error", dir, cases)
	if err := tc.iRunDdsmlabelWith(args); err != nil {
		return err
	}
	return tc.theExitCodeShouldBe(0)
}

func (tc *testContext) aConfigFileWith(path string, content *godog.DocString) error {
	return os.WriteFile(tc.path(path), []byte(tc.path(content.Content)), 0o644)
}

func (tc *testContext) anEmptyFile(path string) error {
	path = tc.path(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func (tc *testContext) theFileIsRemoved(path string) error {
	return os.Remove(tc.path(path))
}

func (tc *testContext) theFirstMaskIsCorrupted(table string) error {
	records, err := index.ReadTableFile(tc.path(table))
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.MaskPath != "" {
			return os.WriteFile(r.MaskPath, []byte("not a dicom file"), 0o644)
		}
	}
	return fmt.Errorf("no mask in %s", table)
}

func (tc *testContext) iRunDdsmlabelWith(args string) error {
	argList := splitArgs(tc.path(args))

	cmd := exec.Command(binaryPath, argList...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tc.output = output.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.exitCode = exitErr.ExitCode()
	} else if err != nil {
		return fmt.Errorf("failed to run command: %w", err)
	} else {
		tc.exitCode = 0
	}

	return nil
}

func (tc *testContext) theExitCodeShouldBe(expected int) error {
	if tc.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nOutput:\n%s", expected, tc.exitCode, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(tc.output, expected) {
		return fmt.Errorf("output does not contain %q\nOutput:\n%s", expected, tc.output)
	}
	return nil
}

func (tc *testContext) shouldExist(path string) error {
	path = tc.path(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	return nil
}

func (tc *testContext) shouldNotExist(path string) error {
	path = tc.path(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("path exists: %s", path)
	}
	return nil
}

func (tc *testContext) shouldHaveRecords(path string, count int) error {
	records, err := index.ReadTableFile(tc.path(path))
	if err != nil {
		return err
	}
	if len(records) != count {
		return fmt.Errorf("expected %d records, found %d", count, len(records))
	}
	return nil
}

func (tc *testContext) shouldHaveLabels(path string, count int) error {
	l, err := labels.ReadFile(tc.path(path))
	if err != nil {
		return err
	}
	if len(l) != count {
		return fmt.Errorf("expected %d labels, found %d\nOutput:\n%s", count, len(l), tc.output)
	}
	return nil
}

func (tc *testContext) everyLabelShouldHaveBoxes(path string, count int) error {
	l, err := labels.ReadFile(tc.path(path))
	if err != nil {
		return err
	}
	if len(l) == 0 {
		return fmt.Errorf("no labels in %s", path)
	}
	for image, entry := range l {
		if len(entry.BoundingRects) != count {
			return fmt.Errorf("%s: expected %d bounding boxes, found %v", image, count, entry.BoundingRects)
		}
	}
	return nil
}

// splitArgs splits a command line string into arguments
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/digito/cmd/digito/cmd"
	"github.com/MeKo-Tech/digito/internal/batch"
	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterBatchSteps registers batch processing steps.
func (testCtx *TestContext) RegisterBatchSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a directory with drawings of digits "([^"]*)"$`, testCtx.aDirectoryWithDrawings)
	sc.Step(`^the directory also contains a file "([^"]*)" with text "([^"]*)"$`, testCtx.theDirectoryAlsoContains)
	sc.Step(`^I run a batch over the directory as "([^"]*)"$`, testCtx.iRunABatch)
	sc.Step(`^the batch output has (\d+) lines$`, testCtx.theBatchOutputHasLines)
	sc.Step(`^the batch output contains "([^"]*)"$`, testCtx.theBatchOutputContains)
}

// RegisterCLISteps registers steps that drive the cobra command tree.
func (testCtx *TestContext) RegisterCLISteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "digito([^"]*)"$`, testCtx.iRunDigito)
	sc.Step(`^the command output contains "([^"]*)"$`, testCtx.theCommandOutputContains)
	sc.Step(`^the command fails$`, testCtx.theCommandFails)
	sc.Step(`^the command succeeds$`, testCtx.theCommandSucceeds)
	sc.Step(`^the file "([^"]*)" exists in the work directory$`, testCtx.theFileExists)
}

func (testCtx *TestContext) aDirectoryWithDrawings(list string) error {
	testCtx.InputDir = filepath.Join(testCtx.TempDir, "drawings")
	if err := os.MkdirAll(testCtx.InputDir, 0o750); err != nil {
		return err
	}
	for _, s := range strings.Split(list, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		cfg := testutil.DefaultDigitImageConfig()
		cfg.Text = strconv.Itoa(d)
		img, err := testutil.GenerateDigitImage(cfg)
		if err != nil {
			return err
		}
		path := filepath.Join(testCtx.InputDir, fmt.Sprintf("digit_%d.png", d))
		if err := imageio.SaveImage(path, img); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theDirectoryAlsoContains(name, text string) error {
	return os.WriteFile(filepath.Join(testCtx.InputDir, name), []byte(text), 0o600)
}

func (testCtx *TestContext) iRunABatch(format string) error {
	pl, err := testCtx.pipeline()
	if err != nil {
		return err
	}
	cfg := &batch.Config{Workers: 2, Format: format, Locale: "en", ContinueOnError: true}
	res, err := batch.Process(context.Background(), pl, []string{testCtx.InputDir}, cfg)
	if err != nil {
		return err
	}
	testCtx.BatchOutput, err = res.FormatResults(format, "en")
	return err
}

func (testCtx *TestContext) theBatchOutputHasLines(n int) error {
	lines := strings.Split(strings.TrimRight(testCtx.BatchOutput, "\n"), "\n")
	if len(lines) != n {
		return fmt.Errorf("expected %d lines, got %d:\n%s", n, len(lines), testCtx.BatchOutput)
	}
	return nil
}

func (testCtx *TestContext) theBatchOutputContains(text string) error {
	if !strings.Contains(testCtx.BatchOutput, text) {
		return fmt.Errorf("batch output does not contain %q:\n%s", text, testCtx.BatchOutput)
	}
	return nil
}

// iRunDigito executes the command tree in-process. "{tmp}" in the arguments
// is replaced by the scenario's temp directory.
func (testCtx *TestContext) iRunDigito(args string) error {
	args = strings.ReplaceAll(args, "{tmp}", testCtx.TempDir)
	root := cmd.GetRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(strings.Fields(args))
	defer func() {
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs(nil)
	}()
	testCtx.LastError = root.Execute()
	testCtx.LastOutput = buf.String()
	return nil
}

func (testCtx *TestContext) theCommandOutputContains(text string) error {
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q:\n%s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandFails() error {
	if testCtx.LastError == nil {
		return errors.New("expected the command to fail")
	}
	return nil
}

func (testCtx *TestContext) theCommandSucceeds() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command failed: %w\n%s", testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theFileExists(name string) error {
	if _, err := os.Stat(filepath.Join(testCtx.TempDir, name)); err != nil {
		return fmt.Errorf("file %s was not created: %w", name, err)
	}
	return nil
}

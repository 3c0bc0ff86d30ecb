package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterClassifySteps registers drawing, model and classification steps.
func (testCtx *TestContext) RegisterClassifySteps(sc *godog.ScenarioContext) {
	sc.Step(`^a blank (\d+)x(\d+) canvas$`, testCtx.aBlankCanvas)
	sc.Step(`^a (\d+)x(\d+) canvas with a stroke covering columns (\d+) to (\d+) and rows (\d+) to (\d+)$`,
		testCtx.aCanvasWithStroke)
	sc.Step(`^the model predicts digit (\d) with confidence ([0-9.]+)$`, testCtx.theModelPredicts)
	sc.Step(`^the model returns scores "([^"]*)"$`, testCtx.theModelReturnsScores)

	sc.Step(`^I classify the drawing$`, testCtx.iClassifyTheDrawing)
	sc.Step(`^I normalize the drawing$`, testCtx.iNormalizeTheDrawing)

	sc.Step(`^the predicted digit is (\d)$`, testCtx.thePredictedDigitIs)
	sc.Step(`^the confidence is ([0-9.]+)$`, testCtx.theConfidenceIs)
	sc.Step(`^the ranking starts with digits "([^"]*)"$`, testCtx.theRankingStartsWith)
	sc.Step(`^the ranking lists all 10 digits in descending probability$`, testCtx.theRankingIsComplete)
	sc.Step(`^the drawing is reported as (empty|not empty)$`, testCtx.theDrawingIsReportedAs)
	sc.Step(`^the model received a (\d+)-value input$`, testCtx.theModelReceivedInput)
	sc.Step(`^classification fails with a shape error$`, testCtx.classificationFailsWithShapeError)

	sc.Step(`^the feature vector has (\d+) values$`, testCtx.theFeatureVectorHasValues)
	sc.Step(`^every feature value is zero$`, testCtx.everyFeatureValueIsZero)
	sc.Step(`^every feature value is between 0 and 1$`, testCtx.everyFeatureValueIsInRange)
	sc.Step(`^the fragment is (\d+)x(\d+) pixels placed at row (\d+) column (\d+)$`, testCtx.theFragmentIs)
	sc.Step(`^the padded box spans rows (\d+) to (\d+) and columns (\d+) to (\d+)$`, testCtx.thePaddedBoxSpans)
}

func (testCtx *TestContext) aBlankCanvas(w, h int) error {
	testCtx.Drawing = testutil.CreateDrawing(w, h)
	return nil
}

func (testCtx *TestContext) aCanvasWithStroke(w, h, x0, x1, y0, y1 int) error {
	testCtx.Drawing = testutil.CreateDrawing(w, h, image.Rect(x0, y0, x1+1, y1+1))
	return nil
}

func (testCtx *TestContext) theModelPredicts(digit int, confidence float64) error {
	testCtx.Engine = testutil.NewOneHotEngine(digit, float32(confidence))
	return nil
}

func (testCtx *TestContext) theModelReturnsScores(list string) error {
	var probs []float32
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return fmt.Errorf("bad score %q: %w", f, err)
		}
		probs = append(probs, float32(v))
	}
	testCtx.Engine = &testutil.FixedEngine{Probs: probs}
	return nil
}

func (testCtx *TestContext) iClassifyTheDrawing() error {
	if testCtx.Drawing == nil {
		return errors.New("no drawing in this scenario")
	}
	pl, err := testCtx.pipeline()
	if err != nil {
		return err
	}
	testCtx.LastResult, testCtx.LastError = pl.ProcessImage(context.Background(), testCtx.Drawing)
	return nil
}

func (testCtx *TestContext) iNormalizeTheDrawing() error {
	n, err := preprocess.NewNormalizer(preprocess.DefaultConfig())
	if err != nil {
		return err
	}
	testCtx.LastVector, testCtx.LastTrace, testCtx.LastError = n.NormalizeImage(testCtx.Drawing)
	return testCtx.LastError
}

func (testCtx *TestContext) result() (*classify.Result, error) {
	if testCtx.LastError != nil {
		return nil, fmt.Errorf("classification failed: %w", testCtx.LastError)
	}
	if testCtx.LastResult == nil {
		return nil, errors.New("nothing was classified")
	}
	return &testCtx.LastResult.Result, nil
}

func (testCtx *TestContext) thePredictedDigitIs(digit int) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Digit != digit {
		return fmt.Errorf("expected digit %d, got %d", digit, res.Digit)
	}
	return nil
}

func (testCtx *TestContext) theConfidenceIs(want float64) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if math.Abs(res.Confidence-want) > 1e-6 {
		return fmt.Errorf("expected confidence %v, got %v", want, res.Confidence)
	}
	return nil
}

func (testCtx *TestContext) theRankingStartsWith(list string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	want := strings.Split(list, ",")
	if len(res.AllPredictions) < len(want) {
		return fmt.Errorf("ranking has only %d entries", len(res.AllPredictions))
	}
	for i, w := range want {
		d, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return err
		}
		if res.AllPredictions[i].Digit != d {
			return fmt.Errorf("rank %d: expected digit %d, got %d", i, d, res.AllPredictions[i].Digit)
		}
	}
	return nil
}

func (testCtx *TestContext) theRankingIsComplete() error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if len(res.AllPredictions) != classify.NumClasses {
		return fmt.Errorf("expected %d ranked digits, got %d", classify.NumClasses, len(res.AllPredictions))
	}
	seen := make(map[int]bool)
	for i, p := range res.AllPredictions {
		seen[p.Digit] = true
		if i > 0 && p.Probability > res.AllPredictions[i-1].Probability {
			return fmt.Errorf("ranking not descending at position %d", i)
		}
	}
	if len(seen) != classify.NumClasses {
		return errors.New("ranking repeats digits")
	}
	return nil
}

func (testCtx *TestContext) theDrawingIsReportedAs(state string) error {
	if _, err := testCtx.result(); err != nil {
		return err
	}
	want := state == "empty"
	if testCtx.LastResult.Empty != want {
		return fmt.Errorf("expected empty=%t, got %t", want, testCtx.LastResult.Empty)
	}
	return nil
}

func (testCtx *TestContext) theModelReceivedInput(n int) error {
	got := len(testCtx.Engine.LastInput())
	if got != n {
		return fmt.Errorf("expected model input of %d values, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) classificationFailsWithShapeError() error {
	var se *classify.ShapeError
	if !errors.As(testCtx.LastError, &se) {
		return fmt.Errorf("expected a shape error, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theFeatureVectorHasValues(n int) error {
	if len(testCtx.LastVector) != n {
		return fmt.Errorf("expected %d values, got %d", n, len(testCtx.LastVector))
	}
	return nil
}

func (testCtx *TestContext) everyFeatureValueIsZero() error {
	for i, v := range testCtx.LastVector {
		if v != 0 {
			return fmt.Errorf("value %d is %v", i, v)
		}
	}
	return nil
}

func (testCtx *TestContext) everyFeatureValueIsInRange() error {
	for i, v := range testCtx.LastVector {
		if v < 0 || v > 1 {
			return fmt.Errorf("value %d is %v", i, v)
		}
	}
	return nil
}

func (testCtx *TestContext) theFragmentIs(w, h, row, col int) error {
	tr := testCtx.LastTrace
	if tr.FragmentWidth != w || tr.FragmentHeight != h || tr.OffsetRow != row || tr.OffsetCol != col {
		return fmt.Errorf("expected %dx%d at (%d,%d), got %dx%d at (%d,%d)",
			w, h, row, col, tr.FragmentWidth, tr.FragmentHeight, tr.OffsetRow, tr.OffsetCol)
	}
	return nil
}

func (testCtx *TestContext) thePaddedBoxSpans(r0, r1, c0, c1 int) error {
	want := preprocess.BoundingBox{RowMin: r0, RowMax: r1, ColMin: c0, ColMax: c1}
	if testCtx.LastTrace.Padded != want {
		return fmt.Errorf("expected padded box %+v, got %+v", want, testCtx.LastTrace.Padded)
	}
	return nil
}

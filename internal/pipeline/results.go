package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ToJSON serializes a single result to pretty JSON.
func ToJSON(res *DigitResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONAll serializes labeled results to pretty JSON.
func ToJSONAll(results []LabeledResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CSVHeader is the first row written by ToCSV.
var CSVHeader = []string{"source", "digit", "confidence", "empty", "p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "error"}

// ToCSV exports one row per labeled result with the per-digit probabilities
// in digit order.
func ToCSV(results []LabeledResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return "", err
	}
	for _, lr := range results {
		row := make([]string, 0, len(CSVHeader))
		row = append(row, lr.Source)
		if lr.Result == nil {
			row = append(row, "", "", "")
			for range 10 {
				row = append(row, "")
			}
		} else {
			row = append(row,
				strconv.Itoa(lr.Result.Digit),
				strconv.FormatFloat(lr.Result.Confidence, 'f', 4, 64),
				strconv.FormatBool(lr.Result.Empty),
			)
			probs := make([]string, 10)
			for _, p := range lr.Result.AllPredictions {
				if p.Digit >= 0 && p.Digit < len(probs) {
					probs[p.Digit] = strconv.FormatFloat(p.Probability, 'f', 4, 64)
				}
			}
			row = append(row, probs...)
		}
		row = append(row, lr.Error)
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ToPlainText renders one human readable line per result. Numbers are
// formatted for the given BCP 47 locale; an empty or unknown locale falls
// back to English.
func ToPlainText(results []LabeledResult, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	var sb strings.Builder
	for _, lr := range results {
		switch {
		case lr.Result == nil:
			sb.WriteString(p.Sprintf("%s: error: %s\n", lr.Source, lr.Error))
		case lr.Result.Empty:
			sb.WriteString(p.Sprintf("%s: digit %d (%.1f%%, blank canvas)\n",
				lr.Source, lr.Result.Digit, lr.Result.Confidence*100))
		default:
			sb.WriteString(p.Sprintf("%s: digit %d (%.1f%%)\n",
				lr.Source, lr.Result.Digit, lr.Result.Confidence*100))
		}
	}
	return sb.String()
}

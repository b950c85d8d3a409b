package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"programme-qa/internal/usecase/guard"
)

// RecordedAnswer is one line of the validate input.
type RecordedAnswer struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Response string `json:"response"`

	// HasUsableDocs defaults to true when absent.
	HasUsableDocs *bool `json:"has_usable_docs,omitempty"`
}

type AnswerReport struct {
	Line   int           `json:"line"`
	ID     string        `json:"id,omitempty"`
	Valid  bool          `json:"valid"`
	Issues []guard.Issue `json:"issues"`
	Final  string        `json:"final,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type ValidationReport struct {
	Total     int            `json:"total"`
	Invalid   int            `json:"invalid"`
	Flagged   int            `json:"flagged"`
	Malformed int            `json:"malformed"`
	Results   []AnswerReport `json:"results"`
}

type validateOptions struct {
	input        string
	workers      int
	showFinal    bool
	failOnIssues bool
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Screen recorded answers with the batch validator",
		Long: `Run the hallucination and scope heuristics over recorded answers.

Input is JSON Lines, one {"id","question","response","has_usable_docs"} object
per line. The report is written to stdout as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := rootOpts.tables()
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if opts.input != "-" {
				f, err := os.Open(opts.input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			report, err := ValidateAnswers(in, guard.NewValidator(tables), opts.workers, opts.showFinal)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(report); err != nil {
				return err
			}
			if opts.failOnIssues && (report.Invalid > 0 || report.Malformed > 0) {
				return fmt.Errorf("%d invalid and %d malformed answers", report.Invalid, report.Malformed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "JSON Lines file of recorded answers (- for stdin)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", runtime.GOMAXPROCS(0), "concurrent validations")
	cmd.Flags().BoolVar(&opts.showFinal, "show-final", false, "include the text a client would receive")
	cmd.Flags().BoolVar(&opts.failOnIssues, "fail", false, "exit non-zero when any answer is invalid or malformed")

	return cmd
}

// ValidateAnswers reads recorded answers and validates them concurrently.
// Results keep input order.
func ValidateAnswers(r io.Reader, v guard.Validator, workers int, showFinal bool) (*ValidationReport, error) {
	var lines [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	results := make([]AnswerReport, len(lines))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, line := range lines {
		g.Go(func() error {
			results[i] = validateLine(i+1, line, v, showFinal)
			return nil
		})
	}
	_ = g.Wait()

	report := &ValidationReport{Results: make([]AnswerReport, 0, len(results))}
	for _, res := range results {
		if res.Line == 0 {
			// blank line
			continue
		}
		report.Total++
		switch {
		case res.Error != "":
			report.Malformed++
		case !res.Valid:
			report.Invalid++
		case len(res.Issues) > 0:
			report.Flagged++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func validateLine(n int, line []byte, v guard.Validator, showFinal bool) AnswerReport {
	if len(bytes.TrimSpace(line)) == 0 {
		return AnswerReport{}
	}
	var rec RecordedAnswer
	if err := json.Unmarshal(line, &rec); err != nil {
		return AnswerReport{Line: n, Issues: []guard.Issue{}, Error: "malformed record: " + err.Error()}
	}
	hasDocs := true
	if rec.HasUsableDocs != nil {
		hasDocs = *rec.HasUsableDocs
	}
	res := v.Validate(rec.Response, rec.Question, hasDocs)
	out := AnswerReport{Line: n, ID: rec.ID, Valid: res.Valid, Issues: res.Issues}
	if showFinal {
		out.Final = v.Apply(rec.Response, res)
	}
	return out
}

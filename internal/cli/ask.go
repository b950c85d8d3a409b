package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"programme-qa/internal/domain"
	"programme-qa/internal/infra/httpclient"
)

type askOptions struct {
	server  string
	ndocs   int
	session string
	timeout time.Duration
}

// Answer is what ask collected from one stream.
type Answer struct {
	Citations []domain.CitationEvent
	Content   string
	Errors    []string
	Done      bool
}

func NewAskCommand() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Stream an answer from a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			client := httpclient.NewPooledClient(0)
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			ans, err := Ask(ctx, client, opts.server, AskRequest{
				Q:         question,
				NDocs:     opts.ndocs,
				SessionID: opts.session,
				MessageID: uuid.NewString(),
			}, func(fragment string) {
				fmt.Fprint(out, fragment)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)

			if len(ans.Citations) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, c := range ans.Citations {
					fmt.Fprintf(out, "  [%d] %s (relevance %.2f) %s\n", i+1, c.Name, c.Relevance, c.Link)
				}
			}
			for _, msg := range ans.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "server error:", msg)
			}
			if !ans.Done {
				return errors.New("stream ended without a terminator")
			}
			if len(ans.Errors) > 0 {
				return errors.New("answer failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:8080", "answer service base URL")
	cmd.Flags().IntVarP(&opts.ndocs, "ndocs", "n", 5, "documents to retrieve")
	cmd.Flags().StringVar(&opts.session, "session", uuid.NewString(), "session id")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "overall request timeout")

	return cmd
}

// AskRequest is the body of POST /answer.
type AskRequest struct {
	Q         string `json:"q"`
	NDocs     int    `json:"ndocs,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type sseFrame struct {
	Choices []struct {
		Delta struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Ask posts a question and decodes the SSE stream. onContent receives each
// content fragment as it arrives.
func Ask(ctx context.Context, client *http.Client, server string, req AskRequest, onContent func(string)) (*Answer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/answer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post answer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	ans := &Answer{}
	var content strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			ans.Done = true
			break
		}
		var frame sseFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if frame.Error != nil {
			ans.Errors = append(ans.Errors, frame.Error.Message)
			continue
		}
		for _, choice := range frame.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				var c domain.CitationEvent
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &c); err == nil {
					ans.Citations = append(ans.Citations, c)
				}
			}
			if choice.Delta.Content != nil {
				content.WriteString(*choice.Delta.Content)
				if onContent != nil {
					onContent(*choice.Delta.Content)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	ans.Content = content.String()
	return ans, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/spf13/pflag"
)

func rootCommand(stdout, stderr io.Writer) *command {
	return &command{
		name:    "feedbacklink",
		summary: "Magic-link feedback client",
		stderr:  stderr,
		children: []*command{
			requestCommand(stdout, stderr),
			openCommand(stdout, stderr),
			submitCommand(stdout, stderr),
			listCommand(stdout, stderr),
		},
	}
}

func requestCommand(stdout, stderr io.Writer) *command {
	var (
		common commonFlags
		email  string
	)
	return &command{
		name:    "request",
		summary: "Ask the backend to email a magic link",
		stderr:  stderr,
		flags: func(fs *pflag.FlagSet) {
			common.register(fs)
			fs.StringVar(&email, "email", "", "address to send the link to")
		},
		run: func(ctx context.Context, _ []string) error {
			e, err := common.open(stdout, stderr)
			if err != nil {
				return err
			}
			defer e.close()

			flow := e.client.NewRequestFlow()
			defer flow.Close()
			st, err := flow.Request(ctx, email)
			if err != nil {
				e.logger.Debug("link request failed", "error", err)
			}
			if printErr := e.print(requestView{Status: st.Status.String(), Email: st.TargetEmail, Message: messageFor(st, err)}); printErr != nil {
				return printErr
			}
			if err != nil {
				return errors.New(goFeedback.UserMessage(err))
			}
			return nil
		},
	}
}

func openCommand(stdout, stderr io.Writer) *command {
	var (
		common   commonFlags
		link     string
		email    string
		token    string
		feedback string
	)
	return &command{
		name:    "open",
		summary: "Validate a magic link and optionally submit feedback through it",
		stderr:  stderr,
		flags: func(fs *pflag.FlagSet) {
			common.register(fs)
			fs.StringVar(&link, "link", "", "full magic link URL as received by email")
			fs.StringVar(&email, "email", "", "link email (instead of --link)")
			fs.StringVar(&token, "token", "", "link token (instead of --link)")
			fs.StringVar(&feedback, "feedback", "", "YAML feedback file to submit once authorized")
		},
		run: func(ctx context.Context, _ []string) error {
			mc, err := linkContext(link, email, token)
			if err != nil {
				return err
			}
			e, err := common.open(stdout, stderr)
			if err != nil {
				return err
			}
			defer e.close()

			session := e.client.NewSession()
			defer session.Close()

			st := session.Evaluate(ctx, mc)
			view := sessionView{Phase: st.Phase.String(), Email: st.Email, Message: st.Reason}
			if !st.CanSubmit() || feedback == "" {
				if err := e.print(view); err != nil {
					return err
				}
				if st.Phase == goFeedback.PhaseRejected {
					return errors.New(st.Reason)
				}
				return nil
			}

			data, err := readFeedback(feedback)
			if err != nil {
				return err
			}
			gate, err := session.Submitter()
			if err != nil {
				return err
			}
			ack, err := gate.Submit(ctx, goFeedback.NewFeedbackSubmission(data))
			if err != nil {
				e.logger.Debug("submission failed", "error", err)
				return errors.New(goFeedback.UserMessage(err))
			}
			view.Phase = session.State().Phase.String()
			view.Message = ack.Message
			view.SubmissionID = ack.SubmissionID
			return e.print(view)
		},
	}
}

func submitCommand(stdout, stderr io.Writer) *command {
	var (
		common   commonFlags
		captcha  string
		feedback string
	)
	return &command{
		name:    "submit",
		summary: "Submit feedback authorized by a captcha proof",
		stderr:  stderr,
		flags: func(fs *pflag.FlagSet) {
			common.register(fs)
			fs.StringVar(&captcha, "captcha", "", "captcha proof token")
			fs.StringVar(&feedback, "feedback", "", "YAML feedback file")
		},
		run: func(ctx context.Context, _ []string) error {
			data, err := readFeedback(feedback)
			if err != nil {
				return err
			}
			e, err := common.open(stdout, stderr)
			if err != nil {
				return err
			}
			defer e.close()

			gate, err := e.client.CaptchaSubmitter(captcha)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			ack, err := gate.Submit(ctx, goFeedback.NewFeedbackSubmission(data))
			if err != nil {
				e.logger.Debug("submission failed", "error", err)
				return errors.New(goFeedback.UserMessage(err))
			}
			return e.print(submitView{Message: ack.Message, SubmissionID: ack.SubmissionID})
		},
	}
}

func listCommand(stdout, stderr io.Writer) *command {
	var (
		common  commonFlags
		page    int
		size    int
		sortBy  string
		sortDir string
	)
	return &command{
		name:    "list",
		summary: "List stored feedback",
		stderr:  stderr,
		flags: func(fs *pflag.FlagSet) {
			common.register(fs)
			fs.IntVar(&page, "page", 1, "page number")
			fs.IntVar(&size, "size", 5, "page size (max 100)")
			fs.StringVar(&sortBy, "sort-by", "created_at", "created_at, rating, first_name or last_name")
			fs.StringVar(&sortDir, "sort-dir", "desc", "asc or desc")
		},
		run: func(ctx context.Context, _ []string) error {
			q, err := goFeedback.ListQuery{
				Page:          page,
				Size:          size,
				SortBy:        sortBy,
				SortDirection: goFeedback.SortDirection(strings.ToLower(sortDir)),
			}.Normalize()
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			e, err := common.open(stdout, stderr)
			if err != nil {
				return err
			}
			defer e.close()

			result, err := e.client.ListFeedback(ctx, q)
			if err != nil {
				e.logger.Debug("listing failed", "error", err)
				return errors.New(goFeedback.MessageListUnavailable)
			}
			if e.json {
				return e.print(result)
			}
			tw := tabwriter.NewWriter(e.out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tRATING\tCREATED")
			for _, r := range result.Items {
				fmt.Fprintf(tw, "%d\t%s %s\t%s\t%.0f\t%s\n", r.ID, r.FirstName, r.LastName, r.Email, r.Rating, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(e.out, "page %d/%d, %d total\n", result.Page, result.Pages, result.Total)
			return err
		},
	}
}

// linkContext takes the pair from a full URL or from explicit flags.
func linkContext(link, email, token string) (goFeedback.MagicLinkContext, error) {
	if link == "" {
		return goFeedback.MagicLinkContext{Email: email, Token: token}, nil
	}
	if email != "" || token != "" {
		return goFeedback.MagicLinkContext{}, fmt.Errorf("%w: --link cannot be combined with --email/--token", errUsage)
	}
	u, err := url.Parse(link)
	if err != nil {
		return goFeedback.MagicLinkContext{}, fmt.Errorf("%w: --link: %v", errUsage, err)
	}
	return goFeedback.ContextFromQuery(u.Query()), nil
}

func messageFor(st goFeedback.RequestLinkState, err error) string {
	if st.Message != "" {
		return st.Message
	}
	return goFeedback.UserMessage(err)
}

type requestView struct {
	Status  string `json:"status"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionView struct {
	Phase        string `json:"phase"`
	Email        string `json:"email,omitempty"`
	Message      string `json:"message,omitempty"`
	SubmissionID string `json:"submission_id,omitempty"`
}

type submitView struct {
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id"`
}

func (e *env) print(v any) error {
	if e.json {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	switch t := v.(type) {
	case requestView:
		_, err := fmt.Fprintf(e.out, "%s: %s\n", t.Status, t.Message)
		return err
	case sessionView:
		line := t.Phase
		if t.Message != "" {
			line += ": " + t.Message
		}
		if t.SubmissionID != "" {
			line += " (" + t.SubmissionID + ")"
		}
		_, err := fmt.Fprintln(e.out, line)
		return err
	case submitView:
		_, err := fmt.Fprintf(e.out, "%s (%s)\n", t.Message, t.SubmissionID)
		return err
	default:
		_, err := fmt.Fprintf(e.out, "%+v\n", v)
		return err
	}
}

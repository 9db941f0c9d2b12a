package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smhs/intake/internal/domain/intake"
)

const safetyWarning = `IMPORTANT: you indicated an immediate safety concern.
If the student is in danger right now, call 911 or the 988 Suicide & Crisis Lifeline.
Submitting this form does not alert anyone immediately.`

// formFlags are shared by the commands that take a form.
type formFlags struct {
	file      string
	sets      []string
	fromDraft bool
}

func (f *formFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "form file (YAML or JSON)")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "set a field, e.g. --set student_information.grade=9th")
	cmd.Flags().BoolVar(&f.fromDraft, "draft", false, "start from the saved draft")
}

// load builds a draft from the saved draft and/or a file, then applies --set.
// With no source at all an empty draft is returned when allowEmpty is set.
func (f *formFlags) load(a *app, allowEmpty bool) (*intake.Draft, error) {
	var d *intake.Draft
	switch {
	case f.file != "":
		var err error
		if d, err = readDraftFile(f.file); err != nil {
			return nil, err
		}
	case f.fromDraft:
		var err error
		if d, err = a.drafts.Load(); err != nil {
			return nil, err
		}
		if d == nil {
			return nil, errors.New("no saved draft")
		}
	case allowEmpty:
		d = &intake.Draft{}
	default:
		return nil, errors.New("a form is required: use -f FILE or --draft")
	}
	if err := applySets(d, f.sets); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) printFieldErrors(fe intake.FieldErrors) {
	a.printf("The form has %d problem(s):\n", len(fe))
	for _, p := range fe.Paths() {
		a.printf("  %s: %s\n", p, fe[p])
	}
}

// saveProgress keeps an unfinished form in the draft file and tells the user
// whether that worked.
func (a *app) saveProgress(d *intake.Draft) {
	if err := a.drafts.Save(d); err != nil {
		a.logger.Warn().Err(err).Msg("could not save draft")
		a.printf("Progress could not be saved: %v\n", err)
		return
	}
	a.printf("Progress saved. Resume with `intake submit --draft --interactive`.\n")
}

func validateCmd(a *app) *cobra.Command {
	var ff formFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a form without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ff.load(a, false)
			if err != nil {
				return err
			}
			res := a.intake.Validate(d)
			if res.SafetyWarning {
				a.printf("%s\n\n", safetyWarning)
			}
			if !res.Valid() {
				a.printFieldErrors(res.Errors)
				return &intake.ValidationError{Fields: res.Errors}
			}
			a.printf("Form is valid.\n")
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func submitCmd(a *app) *cobra.Command {
	var (
		ff          formFlags
		front, back string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an intake form",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := ff.load(a, interactive)
			if err != nil {
				return err
			}
			if interactive {
				if err := fillInteractive(ctx, a.prompt, d); err != nil {
					if errors.Is(err, ErrAborted) {
						a.saveProgress(d)
					}
					return err
				}
			}

			var fs, bs intake.CaptureSource
			if front != "" {
				fs = intake.FileCapture{Path: front, Limits: a.intake.Limits()}
			}
			if back != "" {
				bs = intake.FileCapture{Path: back, Limits: a.intake.Limits()}
			}
			if err := intake.CaptureCards(ctx, d, fs, bs); err != nil {
				return err
			}

			res := a.intake.Validate(d)
			if res.SafetyWarning {
				a.printf("%s\n\n", safetyWarning)
			}

			sub := intake.NewSubmitter(a.intake)
			resp, err := sub.Submit(ctx, d)
			var verr *intake.ValidationError
			switch {
			case errors.As(err, &verr):
				a.printFieldErrors(verr.Fields)
				if interactive {
					a.saveProgress(d)
				}
				return err
			case err != nil:
				if interactive || ff.fromDraft {
					a.saveProgress(d)
				}
				return err
			}

			if ff.fromDraft || interactive {
				if err := a.drafts.Clear(); err != nil {
					a.logger.Warn().Err(err).Msg("could not remove saved draft")
				}
			}
			a.printf("%s\nSubmission ID: %s\nStatus: %s\n", resp.Message, resp.StudentUUID, resp.Status)
			a.printf("Keep this ID to check the status later: intake status %s\n", resp.StudentUUID)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&front, "card-front", "", "image of the front of the insurance card")
	cmd.Flags().StringVar(&back, "card-back", "", "image of the back of the insurance card")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "answer the form questions in the terminal")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <submission-id>",
		Short: "Check the status of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := intake.NewStatusChecker(a.intake)
			res := checker.Check(cmd.Context(), args[0])
			switch res.Outcome {
			case intake.OutcomeFound:
				r := res.Record
				a.printf("Submission %s\nStatus: %s\nSubmitted: %s\n", r.StudentUUID, r.Status, r.SubmittedDate.Format("2006-01-02 15:04"))
				if r.ProcessedDate != nil && !r.ProcessedDate.IsZero() {
					a.printf("Processed: %s\n", r.ProcessedDate.Format("2006-01-02 15:04"))
				}
				return nil
			case intake.OutcomeNotFound:
				a.printf("%s\n", res.Message)
				return nil
			}
			if res.Err != nil {
				return res.Err
			}
			return errors.New(res.Message)
		},
	}
}

func detailsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "details <submission-id>",
		Short: "Show a full submission for editing (staff only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession("admin", "staff"); err != nil {
				return err
			}
			d, err := a.intake.LoadForEdit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return a.printJSON(d)
			}
			out, err := yaml.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode form: %w", err)
			}
			_, err = a.out.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	return cmd
}

func updateCmd(a *app) *cobra.Command {
	var ff formFlags
	cmd := &cobra.Command{
		Use:   "update <submission-id>",
		Short: "Replace a submission with an edited form (staff only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession("admin", "staff"); err != nil {
				return err
			}
			d, err := ff.load(a, false)
			if err != nil {
				return err
			}
			resp, err := a.intake.Update(cmd.Context(), args[0], d)
			var verr *intake.ValidationError
			if errors.As(err, &verr) {
				a.printFieldErrors(verr.Fields)
				return err
			}
			if err != nil {
				return err
			}
			a.printf("%s\n", resp.Message)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

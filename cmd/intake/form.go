package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"gopkg.in/yaml.v3"

	"github.com/smhs/intake/internal/domain/intake"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted")

// readDraftFile loads a form from YAML or JSON. JSON is chosen by the .json
// extension; anything else is read as YAML, which also accepts JSON.
func readDraftFile(path string) (*intake.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file: %w", err)
	}
	var d intake.Draft
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &d, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &d, nil
}

// applySets applies "path=value" assignments. Repeating a multi-select path
// adds to it; a comma-separated value sets several entries at once.
func applySets(d *intake.Draft, sets []string) error {
	multi := map[string][]string{}
	var order []string
	for _, s := range sets {
		path, value, ok := strings.Cut(s, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return fmt.Errorf("--set %q: expected path=value", s)
		}
		if intake.IsMulti(path) {
			if _, seen := multi[path]; !seen {
				order = append(order, path)
			}
			multi[path] = append(multi[path], strings.Split(value, ",")...)
			continue
		}
		if err := d.Set(path, value); err != nil {
			return fmt.Errorf("--set %q: %w", s, err)
		}
	}
	for _, path := range order {
		if err := d.Set(path, multi[path]...); err != nil {
			return err
		}
	}
	return nil
}

// prompter asks one question at a time.
type prompter interface {
	Input(ctx context.Context, msg, def string) (string, error)
	Password(ctx context.Context, msg string) (string, error)
	Select(ctx context.Context, msg string, options []string, def string) (string, error)
	Confirm(ctx context.Context, msg string, def bool) (bool, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(ctx context.Context, msg, def string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	err := survey.AskOne(&survey.Input{Message: msg, Default: def}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Password(ctx context.Context, msg string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	err := survey.AskOne(&survey.Password{Message: msg}, &out, survey.WithValidator(survey.Required))
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Select(ctx context.Context, msg string, options []string, def string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := &survey.Select{Message: msg, Options: options}
	for _, o := range options {
		if o == def {
			prompt.Default = def
		}
	}
	var out string
	err := survey.AskOne(prompt, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Confirm(ctx context.Context, msg string, def bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var out bool
	err := survey.AskOne(&survey.Confirm{Message: msg, Default: def}, &out)
	return out, translateSurveyErr(err)
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

// choices lists the allowed answers for enumerated fields.
var choices = map[string][]string{
	"service_request_type":                {string(intake.RequestStartNow), string(intake.RequestOptInFuture)},
	"insurance_information.has_insurance": {string(intake.Yes), string(intake.No)},
	"service_needs.severity_of_concern":   {string(intake.SeverityMild), string(intake.SeverityModerate), string(intake.SeveritySevere)},
	"immediate_safety_concern":            {string(intake.Yes), string(intake.No)},
}

// fillInteractive walks every field in form order, skipping fields that the
// answers so far make inactive. Current values are offered as defaults.
func fillInteractive(ctx context.Context, p prompter, d *intake.Draft) error {
	for _, path := range intake.FieldPaths() {
		if !intake.Resolve(d).Includes(path) {
			continue
		}
		cur, err := d.Get(path)
		if err != nil {
			return err
		}
		label := promptLabel(path)

		switch {
		case path == "authorization_consent":
			ok, err := p.Confirm(ctx, "I authorize the school to share this information with the services team", bool(d.AuthorizationConsent))
			if err != nil {
				return err
			}
			d.AuthorizationConsent = intake.Consent(ok)
			continue
		case choices[path] != nil:
			def := ""
			if len(cur) > 0 {
				def = cur[0]
			}
			ans, err := p.Select(ctx, label, choices[path], def)
			if err != nil {
				return err
			}
			if err := d.Set(path, ans); err != nil {
				return err
			}
			continue
		}

		if intake.IsMulti(path) {
			label += " (comma separated)"
		}
		ans, err := p.Input(ctx, label, strings.Join(cur, ", "))
		if err != nil {
			return err
		}
		vals := []string{ans}
		if intake.IsMulti(path) {
			vals = strings.Split(ans, ",")
		}
		if err := d.Set(path, vals...); err != nil {
			return err
		}
	}
	return nil
}

func promptLabel(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	words := strings.Split(path, "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ")
}

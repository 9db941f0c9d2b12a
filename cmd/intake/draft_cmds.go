package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func draftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage the locally saved form",
	}

	var ff formFlags
	save := &cobra.Command{
		Use:   "save",
		Short: "Save a form (or --set edits to the saved one) for later",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ff.file == "" && !ff.fromDraft {
				existing, err := a.drafts.Load()
				if err != nil {
					return err
				}
				ff.fromDraft = existing != nil
			}
			d, err := ff.load(a, true)
			if err != nil {
				return err
			}
			if err := a.drafts.Save(d); err != nil {
				return err
			}
			res := a.intake.Validate(d)
			a.printf("Draft saved to %s", a.cfg.DraftFile)
			if !a.sealer.Enabled() {
				a.printf(" (not encrypted)")
			}
			a.printf(". %d field(s) still need attention.\n", len(res.Errors))
			return nil
		},
	}
	ff.register(save)

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved form and what is still missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.drafts.Load()
			if err != nil {
				return err
			}
			if d == nil {
				a.printf("No saved draft.\n")
				return nil
			}
			out, err := yaml.Marshal(d)
			if err != nil {
				return err
			}
			if _, err := a.out.Write(out); err != nil {
				return err
			}
			if res := a.intake.Validate(d); !res.Valid() {
				a.printf("\n")
				a.printFieldErrors(res.Errors)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved form",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.drafts.Clear(); err != nil {
				return err
			}
			a.printf("Draft cleared.\n")
			return nil
		},
	}

	cmd.AddCommand(save, show, clearCmd)
	return cmd
}

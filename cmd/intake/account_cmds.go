package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smhs/intake/internal/domain/account"
)

// ask returns value, or prompts for it when it is empty.
func (a *app) ask(ctx context.Context, value, msg string, secret bool) (string, error) {
	if value != "" {
		return value, nil
	}
	if secret {
		return a.prompt.Password(ctx, msg)
	}
	return a.prompt.Input(ctx, msg, "")
}

func (a *app) printInputError(err error) {
	var inErr *account.InputError
	if errors.As(err, &inErr) {
		for k, v := range inErr.Fields {
			a.printf("  %s: %s\n", k, v)
		}
	}
}

func signupCmd(a *app) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account; a verification code is emailed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if email, err = a.ask(ctx, email, "Email", false); err != nil {
				return err
			}
			if name, err = a.ask(ctx, name, "Full name", false); err != nil {
				return err
			}
			if password, err = a.ask(ctx, password, "Password (8+ characters)", true); err != nil {
				return err
			}
			out, err := a.accounts.Signup(ctx, account.SignupRequest{Email: email, Password: password, FullName: name})
			if err != nil {
				a.printInputError(err)
				return err
			}
			a.printf("%s\nThen run: intake verify-otp --email %s\n", out.Message, strings.ToLower(strings.TrimSpace(email)))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func verifyOTPCmd(a *app) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "verify-otp",
		Short: "Verify a new account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if email, err = a.ask(ctx, email, "Email", false); err != nil {
				return err
			}
			if code, err = a.ask(ctx, code, "6-digit code", false); err != nil {
				return err
			}
			tok, err := a.accounts.VerifyOTP(ctx, account.VerifyOTPRequest{Email: email, OTP: code})
			if err != nil {
				a.printInputError(err)
				return err
			}
			return a.signIn(ctx, tok)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if email, err = a.ask(ctx, email, "Email", false); err != nil {
				return err
			}
			if password, err = a.ask(ctx, password, "Password", true); err != nil {
				return err
			}
			tok, err := a.accounts.Login(ctx, account.LoginRequest{Email: email, Password: password})
			if err != nil {
				a.printInputError(err)
				return err
			}
			return a.signIn(ctx, tok)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) signIn(ctx context.Context, tok *account.TokenResponse) error {
	p, err := a.accounts.SignIn(ctx, a.session, tok)
	if err != nil {
		return err
	}
	a.printf("Signed in as %s (%s).\n", p.FullName, p.Role)
	return nil
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(); err != nil {
				return err
			}
			a.printf("Signed out.\n")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			p := a.session.Profile()
			if refresh || p == nil {
				gen := a.session.Generation()
				fresh, err := a.accounts.Me(cmd.Context())
				if err != nil {
					return err
				}
				a.session.ApplyProfile(gen, fresh)
				p = fresh
			}
			a.printf("%s <%s>\nRole: %s\n", p.FullName, p.Email, p.Role)
			if exp := a.session.ExpiresAt(); !exp.IsZero() {
				a.printf("Session expires: %s\n", exp.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the server")
	return cmd
}

func forgotPasswordCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a password reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if email, err = a.ask(ctx, email, "Email", false); err != nil {
				return err
			}
			out, err := a.accounts.ForgotPassword(ctx, account.ForgotPasswordRequest{Email: email})
			if err != nil {
				a.printInputError(err)
				return err
			}
			a.printf("%s\n", out.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func resetPasswordCmd(a *app) *cobra.Command {
	var email, code, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if email, err = a.ask(ctx, email, "Email", false); err != nil {
				return err
			}
			if code, err = a.ask(ctx, code, "6-digit code", false); err != nil {
				return err
			}
			if password, err = a.ask(ctx, password, "New password (8+ characters)", true); err != nil {
				return err
			}
			out, err := a.accounts.ResetPassword(ctx, account.ResetPasswordRequest{Email: email, OTP: code, NewPassword: password})
			if err != nil {
				a.printInputError(err)
				return err
			}
			a.printf("%s\n", out.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "reset code")
	cmd.Flags().StringVar(&password, "password", "", "new password (prompted when omitted)")
	return cmd
}

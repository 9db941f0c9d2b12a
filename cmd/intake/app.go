package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/smhs/intake/internal/config"
	"github.com/smhs/intake/internal/domain/account"
	"github.com/smhs/intake/internal/domain/admin"
	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/hipaa"
	"github.com/smhs/intake/internal/platform/session"
)

// app holds what the commands share. It is built once per invocation, after
// flags are parsed.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	prompt prompter

	sealer   *hipaa.Sealer
	api      *apiclient.Client
	session  *session.Session
	drafts   *draftStore
	intake   *intake.Service
	accounts *account.Service
	admin    *admin.Service

	stopRefresh context.CancelFunc
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

// setup wires the services from a.cfg. Fields already set are kept, which
// lets tests swap in their own writer, prompter or config.
func (a *app) setup() error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.prompt == nil {
		a.prompt = surveyPrompter{}
	}
	a.logger = newLogger(a.cfg, a.errOut)

	sealer, err := hipaa.NewSealerFromHex(a.cfg.StorageEncryptionKey, a.logger)
	if err != nil {
		return err
	}
	a.sealer = sealer

	a.session = session.New(session.NewFileStore(a.cfg.SessionFile, sealer), session.WithLogger(a.logger))
	if err := a.session.Init(); err != nil {
		a.logger.Warn().Err(err).Msg("stored session could not be loaded; signing out")
		_ = a.session.Logout()
	}

	a.api, err = apiclient.New(a.cfg.APIBaseURL,
		apiclient.WithTimeout(a.cfg.RequestTimeout),
		apiclient.WithLogger(a.logger),
		apiclient.WithTokenSource(a.session),
	)
	if err != nil {
		return err
	}

	v, err := intake.NewValidator()
	if err != nil {
		return err
	}
	a.intake = intake.NewService(intake.NewHTTPBackend(a.api), v, a.limits(), a.logger)
	a.accounts = account.NewService(a.api, a.logger)
	a.admin = admin.NewService(admin.NewHTTPBackend(a.api), a.logger)
	a.drafts = newDraftStore(a.cfg.DraftFile, sealer)
	return nil
}

func (a *app) limits() intake.ImageLimits {
	return intake.ImageLimits{MaxBytes: a.cfg.CardImageMaxBytes, MaxDimension: a.cfg.CardImageMaxDimension}
}

// startRefresh keeps the signed-in profile current while a command runs.
func (a *app) startRefresh(ctx context.Context) {
	if !a.session.Authenticated() || a.cfg.RefreshInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.stopRefresh = cancel
	go session.NewRefresher(a.session, a.accounts, a.cfg.RefreshInterval, a.logger).Run(ctx)
}

func (a *app) close() {
	if a.stopRefresh != nil {
		a.stopRefresh()
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// requireSession fails early when a command needs a signed-in user.
func (a *app) requireSession(roles ...string) error {
	if !a.session.Authenticated() {
		return fmt.Errorf("not signed in; run `intake login` first")
	}
	if len(roles) > 0 && !a.session.HasRole(roles...) {
		return fmt.Errorf("this command requires one of the roles: %s", strings.Join(roles, ", "))
	}
	return nil
}

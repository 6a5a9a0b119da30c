package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// Ledger is the write and lookup surface the commands drive.
type Ledger interface {
	CreateUser(ctx context.Context, username string) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	AddIncome(ctx context.Context, userID, amountText, source, dateText string) (core.Income, error)
	AddExpense(ctx context.Context, userID, amountText, category, dateText string) (core.Expense, error)
	RemoveIncome(ctx context.Context, id string) error
	RemoveExpense(ctx context.Context, id string) error
	RemoveBudget(ctx context.Context, id string) error
	ListIncomeFor(ctx context.Context, userID string) ([]core.Income, error)
	ListExpenseFor(ctx context.Context, userID string) ([]core.Expense, error)
	SetBudget(ctx context.Context, userID, category, amountText, periodText string) (core.Budget, error)
	ListBudgetsFor(ctx context.Context, userID string) ([]core.Budget, error)
}

// Summaries is the read-only aggregation surface.
type Summaries interface {
	Summarize(ctx context.Context, userID string, w core.Window) (core.Summary, error)
	BudgetStatus(ctx context.Context, userID string, now time.Time) ([]core.BudgetStatus, error)
}

// App is the ledgerctl command tree. Services are opened from the
// environment on first use unless WithServices supplied them.
type App struct {
	root    *cobra.Command
	out     io.Writer
	ledger  Ledger
	summary Summaries
	cleanup func() error
	now     func() time.Time
}

func NewApp(version string, out io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	app := &App{out: out, now: time.Now}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Manage users, income, expenses and budgets from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.open(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(
		app.usersCommand(),
		app.incomeCommand(),
		app.expenseCommand(),
		app.budgetCommand(),
		app.summaryCommand(),
		app.journalCommand(),
	)
	app.root = root
	return app
}

// WithServices bypasses backend initialization.
func (a *App) WithServices(l Ledger, s Summaries) *App {
	a.ledger = l
	a.summary = s
	return a
}

// WithClock fixes the time used for default windows and budget periods.
func (a *App) WithClock(now func() time.Time) *App {
	a.now = now
	return a
}

// Execute runs the command line args (os.Args[1:] when nil).
func (a *App) Execute(ctx context.Context, args []string) error {
	if args != nil {
		a.root.SetArgs(args)
	}
	err := a.root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *App) open(ctx context.Context) error {
	if a.ledger != nil {
		return nil
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Diagnostics go to stderr at warn and above so command output stays clean.
	logger := log.New(log.Config{
		Level:     log.ParseLevel("warn"),
		Component: log.ComponentCLI,
		Handler:   log.NewHandler(os.Stderr, "warn", cfg.LogFormat),
	})
	log.SetDefault(logger)

	bc, err := backend.FromConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.Open(ctx, bc, logger.Logger)
	if err != nil {
		return err
	}

	svcCfg := services.Config{
		StoreTimeout:  cfg.StoreTimeout,
		UserCacheSize: cfg.UserCacheSize,
		UserCacheTTL:  cfg.UserCacheTTL,
	}
	ledgerSvc := services.NewLedgerService(res.Store, res.Publisher(), svcCfg)
	a.ledger = ledgerSvc
	a.summary = services.NewSummaryService(res.Store, ledgerSvc, svcCfg)
	a.cleanup = res.Close
	return nil
}

func (a *App) close() error {
	if a.cleanup == nil {
		return nil
	}
	err := a.cleanup()
	a.cleanup = nil
	return err
}

func (a *App) success(format string, args ...any) {
	fmt.Fprint(a.out, pterm.Success.Sprintfln(format, args...))
}

func (a *App) table(header []string, rows [][]string) error {
	if len(rows) == 0 {
		fmt.Fprint(a.out, pterm.Info.Sprintln("No records"))
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	rendered, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, rendered)
	return nil
}

// parseWindow defaults to month-to-date; end is optional.
func parseWindow(start, end string, now time.Time) (core.Window, error) {
	w := core.MonthToDate(now)
	if start != "" {
		d, err := core.ParseDate(start)
		if err != nil {
			return core.Window{}, err
		}
		w.Start = d
	}
	if end != "" {
		d, err := core.ParseDate(end)
		if err != nil {
			return core.Window{}, err
		}
		w.End = d
	}
	return w, w.Validate()
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"ledger/internal/core"
	"ledger/internal/export"
)

func (a *App) usersCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Create and list users"}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <username>",
		Short: "Register a new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.ledger.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.success("Created user %s (%s)", u.Username, u.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.ledger.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{u.ID, u.Username, u.CreatedAt.UTC().Format(core.DateLayout)})
			}
			return a.table([]string{"ID", "Username", "Created"}, rows)
		},
	})
	return cmd
}

func (a *App) incomeCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "income", Short: "Record, list and remove income"}

	var userID, amount, source, date string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record income for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := a.ledger.AddIncome(cmd.Context(), userID, amount, source, date)
			if err != nil {
				return err
			}
			a.success("Recorded income %s from %s on %s (%s)", in.Amount, in.Source, in.Date, in.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&userID, "user", "u", "", "user id")
	add.Flags().StringVarP(&amount, "amount", "a", "", "amount, e.g. 1500.00")
	add.Flags().StringVarP(&source, "source", "s", "", "where the money came from")
	add.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default: today)")

	cmd.AddCommand(add, a.listRecordsCommand("income"), a.removeCommand("income"))
	return cmd
}

func (a *App) expenseCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "expense", Short: "Record, list and remove expenses"}

	var userID, amount, category, date string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an expense for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.ledger.AddExpense(cmd.Context(), userID, amount, category, date)
			if err != nil {
				return err
			}
			a.success("Recorded expense %s in %s on %s (%s)", e.Amount, e.Category, e.Date, e.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&userID, "user", "u", "", "user id")
	add.Flags().StringVarP(&amount, "amount", "a", "", "amount, e.g. 12.50")
	add.Flags().StringVarP(&category, "category", "c", "", "expense category")
	add.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default: today)")

	cmd.AddCommand(add, a.listRecordsCommand("expense"), a.removeCommand("expense"))
	return cmd
}

func (a *App) listRecordsCommand(kind string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's " + kind + " records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("user", userID); err != nil {
				return err
			}
			var rows [][]string
			header := []string{"ID", "Date", "Amount", "Category"}
			if kind == "income" {
				header[3] = "Source"
				list, err := a.ledger.ListIncomeFor(cmd.Context(), userID)
				if err != nil {
					return err
				}
				for _, in := range list {
					rows = append(rows, []string{in.ID, in.Date.String(), in.Amount.String(), in.Source})
				}
			} else {
				list, err := a.ledger.ListExpenseFor(cmd.Context(), userID)
				if err != nil {
					return err
				}
				for _, e := range list {
					rows = append(rows, []string{e.ID, e.Date.String(), e.Amount.String(), e.Category})
				}
			}
			return a.table(header, rows)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	return cmd
}

func (a *App) removeCommand(kind string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a " + kind + " record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch kind {
			case "income":
				err = a.ledger.RemoveIncome(cmd.Context(), args[0])
			case "expense":
				err = a.ledger.RemoveExpense(cmd.Context(), args[0])
			case "budget":
				err = a.ledger.RemoveBudget(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			a.success("Removed %s %s", kind, args[0])
			return nil
		},
	}
}

func (a *App) budgetCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "budget", Short: "Set, list, remove and check budgets"}

	var userID, category, amount, period string
	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace the budget for a category and period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.ledger.SetBudget(cmd.Context(), userID, category, amount, period)
			if err != nil {
				return err
			}
			a.success("Budget for %s set to %s %s (%s)", b.Category, b.Amount, b.Period, b.ID)
			return nil
		},
	}
	set.Flags().StringVarP(&userID, "user", "u", "", "user id")
	set.Flags().StringVarP(&category, "category", "c", "", "expense category")
	set.Flags().StringVarP(&amount, "amount", "a", "", "limit for the period")
	set.Flags().StringVarP(&period, "period", "p", string(core.Monthly), "weekly, monthly or yearly")

	var listUser string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("user", listUser); err != nil {
				return err
			}
			budgets, err := a.ledger.ListBudgetsFor(cmd.Context(), listUser)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(budgets))
			for _, b := range budgets {
				rows = append(rows, []string{b.ID, b.Category, string(b.Period), b.Amount.String()})
			}
			return a.table([]string{"ID", "Category", "Period", "Limit"}, rows)
		},
	}
	list.Flags().StringVarP(&listUser, "user", "u", "", "user id")

	var statusUser string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show spend against each budget for its current period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("user", statusUser); err != nil {
				return err
			}
			statuses, err := a.summary.BudgetStatus(cmd.Context(), statusUser, a.now())
			if err != nil {
				return err
			}
			return a.table(budgetStatusHeader, budgetStatusRows(statuses))
		},
	}
	status.Flags().StringVarP(&statusUser, "user", "u", "", "user id")

	cmd.AddCommand(set, list, a.removeCommand("budget"), status)
	return cmd
}

var budgetStatusHeader = []string{"Category", "Period", "Since", "Limit", "Spent", "Remaining", "Status"}

func budgetStatusRows(statuses []core.BudgetStatus) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		state := "ok"
		if st.Over {
			state = "OVER"
		}
		rows = append(rows, []string{
			st.Budget.Category,
			string(st.Budget.Period),
			st.Window.Start.String(),
			st.Budget.Amount.String(),
			st.Spent.String(),
			st.Remaining.String(),
			state,
		})
	}
	return rows
}

func (a *App) summaryCommand() *cobra.Command {
	var userID, start, end, formats, dir string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show income, expenses and savings for a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("user", userID); err != nil {
				return err
			}
			ctx := cmd.Context()
			now := a.now()

			win, err := parseWindow(start, end, now)
			if err != nil {
				return err
			}
			fmtList, err := export.ParseFormats(formats)
			if err != nil {
				return err
			}
			user, err := a.ledger.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			sum, err := a.summary.Summarize(ctx, user.ID, win)
			if err != nil {
				return err
			}
			statuses, err := a.summary.BudgetStatus(ctx, user.ID, now)
			if err != nil {
				return err
			}

			a.printSummary(user, sum)
			if len(statuses) > 0 {
				if err := a.table(budgetStatusHeader, budgetStatusRows(statuses)); err != nil {
					return err
				}
			}

			report := export.Report{
				UserID:      user.ID,
				Username:    user.Username,
				Summary:     sum,
				Budgets:     statuses,
				GeneratedAt: now,
			}
			for _, f := range fmtList {
				path, err := export.ToFile(report, f, "ledger_summary_"+user.Username, dir)
				if err != nil {
					return err
				}
				a.success("Saved %s report to %s", f, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringVar(&start, "start", "", "window start as YYYY-MM-DD (default: first of this month)")
	cmd.Flags().StringVar(&end, "end", "", "window end as YYYY-MM-DD (default: open-ended)")
	cmd.Flags().StringVarP(&formats, "export", "e", "", "also write reports: csv, json, pdf (comma-separated)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory for exported reports (default: current directory)")
	return cmd
}

func (a *App) printSummary(user core.User, sum core.Summary) {
	window := "since " + sum.Window.Start.String()
	if sum.Window.HasEnd() {
		window = sum.Window.Start.String() + " to " + sum.Window.End.String()
	}
	fmt.Fprint(a.out, pterm.DefaultSection.Sprintf("%s, %s", user.Username, window))

	totals := pterm.TableData{
		{"Income", sum.IncomeTotal.String()},
		{"Expenses", sum.ExpenseTotal.String()},
		{"Net savings", sum.NetSavings.String()},
	}
	if rendered, err := pterm.DefaultTable.WithData(totals).WithRightAlignment().Srender(); err == nil {
		fmt.Fprintln(a.out, rendered)
	}

	rows := make([][]string, 0, len(sum.ExpensesByCategory))
	for _, c := range sum.ExpensesByCategory {
		rows = append(rows, []string{c.Category, c.Amount.String()})
	}
	_ = a.table([]string{"Category", "Spent"}, rows)
}

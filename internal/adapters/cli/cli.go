// Package cli exposes operator commands over the ApplicationService.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"boutique-credit/internal/app"
	"boutique-credit/internal/core"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Output goes to out.
func NewRootCmd(svc app.ApplicationService, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "boutique",
		Short:         "Boutique credit - manage dettes, clients and stock from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(dettesCmd(svc))
	rootCmd.AddCommand(clientsCmd(svc))
	rootCmd.AddCommand(articlesCmd(svc))
	return rootCmd
}

// ── Dettes ───────────────────────────────────────────────────────────────────

func dettesCmd(svc app.ApplicationService) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dettes",
		Short: "Credit requests and dettes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List dettes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status *string
			if s, _ := cmd.Flags().GetString("status"); s != "" {
				status = &s
			}
			dettes, err := svc.ListDettes(cmd.Context(), status)
			if err != nil {
				return err
			}
			printDettes(cmd.OutOrStdout(), dettes)
			return nil
		},
	}
	list.Flags().StringP("status", "s", "", "Filter by status (IN_COURS, ACCEPTE, ANNULE)")

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List requests awaiting review, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			dettes, err := svc.ListPendingDemandes(cmd.Context())
			if err != nil {
				return err
			}
			printDettes(cmd.OutOrStdout(), dettes)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a dette with its lines and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := svc.GetDette(cmd.Context(), id)
			if err != nil {
				return err
			}
			payments, err := svc.ListPayments(cmd.Context(), id)
			if err != nil {
				return err
			}
			printDette(cmd.OutOrStdout(), d, payments)
			return nil
		},
	}

	cmd.AddCommand(list, pending, show,
		statusCmd("accept", "Accept a request and debit stock", core.StatusAccepte, svc),
		statusCmd("cancel", "Cancel a request", core.StatusAnnule, svc),
		relaunchCmd(svc),
		payCmd(svc),
		newDetteCmd("submit", "Submit a credit request (credit policy applies)", svc.SubmitDemande),
		newDetteCmd("create", "Record an accepted dette directly", svc.CreateDette),
	)
	return cmd
}

func statusCmd(use, short, status string, svc app.ApplicationService) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := svc.UpdateDetteStatus(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dette #%d is now %s.\n", d.ID, d.Status)
			return nil
		},
	}
}

func relaunchCmd(svc app.ApplicationService) *cobra.Command {
	return &cobra.Command{
		Use:   "relaunch [id]",
		Short: "Revive a cancelled request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := svc.RelaunchDette(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dette #%d is now %s.\n", d.ID, d.Status)
			return nil
		},
	}
}

func payCmd(svc app.ApplicationService) *cobra.Command {
	return &cobra.Command{
		Use:   "pay [id] [amount]",
		Short: "Register a payment against a dette",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			d, err := svc.RegisterPayment(cmd.Context(), id, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment of %s recorded on dette #%d. Remaining: %s\n",
				amount.StringFixed(2), d.ID, d.AmountDue.StringFixed(2))
			return nil
		},
	}
}

func newDetteCmd(use, short string, create func(ctx context.Context, req app.DetteRequest) (*core.Dette, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, _ := cmd.Flags().GetInt("client")
			raw, _ := cmd.Flags().GetStringSlice("line")
			lines, err := parseLines(raw)
			if err != nil {
				return err
			}
			d, err := create(cmd.Context(), app.DetteRequest{ClientID: clientID, Lines: lines})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dette #%d created (%s), total %s.\n", d.ID, d.Status, d.TotalAmount.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().IntP("client", "c", 0, "Client id")
	cmd.Flags().StringSliceP("line", "l", nil, "Line as ARTICLE_ID:QTY (repeatable)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

// ── Clients ──────────────────────────────────────────────────────────────────

func clientsCmd(svc app.ApplicationService) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Clients and debtors",
	}

	debtors := &cobra.Command{
		Use:   "debtors",
		Short: "List clients with outstanding dettes",
		RunE: func(cmd *cobra.Command, args []string) error {
			debtors, err := svc.ListDebtors(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-6s %-28s %-12s %14s %8s\n", "ID", "NAME", "PHONE", "DUE", "LATEST")
			fmt.Fprintln(w, strings.Repeat("-", 72))
			for _, d := range debtors {
				fmt.Fprintf(w, "%-6d %-28s %-12s %14s %8s\n", d.ClientID,
					truncate(d.FirstName+" "+d.LastName, 28), d.Phone, d.TotalDue.StringFixed(2),
					fmt.Sprintf("#%d", d.LatestDetteID))
			}
			return nil
		},
	}

	remind := &cobra.Command{
		Use:   "remind [id]",
		Short: "Send a payment reminder notification to a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := svc.SendReminder(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reminder sent (%s):\n  %s\n", res.Source, res.Notification.Message)
			return nil
		},
	}

	cmd.AddCommand(debtors, remind)
	return cmd
}

// ── Articles ─────────────────────────────────────────────────────────────────

func articlesCmd(svc app.ApplicationService) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Catalog and stock",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			inStock, _ := cmd.Flags().GetBool("in-stock")
			articles, err := svc.ListArticles(cmd.Context(), inStock)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-6s %-30s %12s %8s\n", "ID", "LABEL", "PRICE", "STOCK")
			fmt.Fprintln(w, strings.Repeat("-", 59))
			for _, a := range articles {
				fmt.Fprintf(w, "%-6d %-30s %12s %8d\n", a.ID, truncate(a.Label, 30), a.UnitPrice.StringFixed(2), a.StockQuantity)
			}
			return nil
		},
	}
	list.Flags().Bool("in-stock", false, "Only articles with stock > 0")

	restock := &cobra.Command{
		Use:   "restock [id] [qty]",
		Short: "Add quantity to an article's stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			a, err := svc.RestockArticle(cmd.Context(), id, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: stock is now %d.\n", a.Label, a.StockQuantity)
			return nil
		},
	}

	cmd.AddCommand(list, restock)
	return cmd
}

// ── Formatting ───────────────────────────────────────────────────────────────

func printDettes(w io.Writer, dettes []core.Dette) {
	fmt.Fprintf(w, "%-6s %-8s %-9s %14s %14s %14s  %s\n", "ID", "CLIENT", "STATUS", "TOTAL", "PAID", "DUE", "CREATED")
	fmt.Fprintln(w, strings.Repeat("-", 88))
	for _, d := range dettes {
		fmt.Fprintf(w, "%-6d %-8d %-9s %14s %14s %14s  %s\n", d.ID, d.ClientID, d.Status,
			d.TotalAmount.StringFixed(2), d.AmountPaid.StringFixed(2), d.AmountDue.StringFixed(2),
			d.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func printDette(w io.Writer, d *core.Dette, payments []core.Payment) {
	fmt.Fprintf(w, "Dette #%d  [%s]\n", d.ID, d.Status)
	if d.Client != nil {
		fmt.Fprintf(w, "Client   : %s %s (%s)\n", d.Client.FirstName, d.Client.LastName, d.Client.Phone)
	}
	fmt.Fprintf(w, "Total    : %s\nPaid     : %s\nDue      : %s\n",
		d.TotalAmount.StringFixed(2), d.AmountPaid.StringFixed(2), d.AmountDue.StringFixed(2))
	if d.CancelledAt != nil {
		fmt.Fprintf(w, "Cancelled: %s\n", d.CancelledAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, l := range d.Lines {
		fmt.Fprintf(w, "  %-28s %4d x %12s\n", truncate(l.ArticleLabel, 28), l.Quantity, l.UnitPrice.StringFixed(2))
	}
	if len(payments) > 0 {
		fmt.Fprintln(w, "Payments:")
		for _, p := range payments {
			fmt.Fprintf(w, "  %s  %12s\n", p.PaidAt.Format("2006-01-02 15:04"), p.Amount.StringFixed(2))
		}
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseLines reads ARTICLE_ID:QTY pairs.
func parseLines(raw []string) ([]app.DetteLineRequest, error) {
	lines := make([]app.DetteLineRequest, 0, len(raw))
	for _, r := range raw {
		idPart, qtyPart, ok := strings.Cut(r, ":")
		if !ok {
			return nil, fmt.Errorf("invalid line %q, expected ARTICLE_ID:QTY", r)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("invalid article id in %q", r)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyPart))
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q", r)
		}
		lines = append(lines, app.DetteLineRequest{ArticleID: id, Quantity: qty})
	}
	return lines, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

/**
 * @description
 * The condo-admin subcommands. Each command bootstraps the shared runtime,
 * resolves its targets by business code rather than UUID, and reports results
 * on stdout. Batch commands keep going after per-row failures and surface a
 * partial-batch exit code at the end.
 */

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/domain"
)

func requireCompany(cmd *cobra.Command) (string, error) {
	company, _ := cmd.Flags().GetString("company")
	if strings.TrimSpace(company) == "" {
		return "", &cliError{code: 1, msg: "--company is required"}
	}
	return company, nil
}

func openCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open-cycle",
		Short: "Open a new billing cycle with its fee structure frozen in",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("code")
			structureCode, _ := cmd.Flags().GetString("fee-structure")
			startStr, _ := cmd.Flags().GetString("start")
			endStr, _ := cmd.Flags().GetString("end")
			dueStr, _ := cmd.Flags().GetString("due")

			start, err := time.Parse("2006-01-02", startStr)
			if err != nil {
				return &cliError{code: 1, msg: fmt.Sprintf("invalid --start %q: use YYYY-MM-DD", startStr)}
			}
			end, err := time.Parse("2006-01-02", endStr)
			if err != nil {
				return &cliError{code: 1, msg: fmt.Sprintf("invalid --end %q: use YYYY-MM-DD", endStr)}
			}
			due, err := time.Parse("2006-01-02", dueStr)
			if err != nil {
				return &cliError{code: 1, msg: fmt.Sprintf("invalid --due %q: use YYYY-MM-DD", dueStr)}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			fs, err := rt.fees.GetByCode(ctx, company, structureCode)
			if err != nil {
				return err
			}

			c, err := rt.cycles.Open(ctx, app.OpenCycleInput{
				Company:        company,
				CycleCode:      code,
				StartDate:      start,
				EndDate:        end,
				DueDate:        due,
				FeeStructureID: fs.ID,
			})
			if err != nil {
				return err
			}
			fmt.Printf("opened cycle %s (%s) from %s to %s, due %s\n",
				c.CycleCode, c.ID, c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"), c.DueDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().String("code", "", "cycle code, e.g. 2026-03")
	cmd.Flags().String("fee-structure", "", "structure code of the active fee structure")
	cmd.Flags().String("start", "", "cycle start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "cycle end date (YYYY-MM-DD)")
	cmd.Flags().String("due", "", "payment due date (YYYY-MM-DD)")
	return cmd
}

func generateInvoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-invoices",
		Short: "Bill every eligible property account into a cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("cycle")
			asOfStr, _ := cmd.Flags().GetString("as-of")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			c, err := rt.cycles.GetByCode(ctx, company, code)
			if err != nil {
				return err
			}

			if dryRun {
				accounts, err := rt.repo.ListActivePropertyAccounts(ctx, company)
				if err != nil {
					return err
				}
				eligible := 0
				for _, pa := range accounts {
					if pa.AutoGenerateInvoices {
						eligible++
					}
				}
				fmt.Printf("dry run: %d auto-billed accounts eligible for cycle %s\n", eligible, c.CycleCode)
				return nil
			}

			res, err := rt.cycles.GenerateInvoices(ctx, c.ID, asOf)
			if err != nil {
				return err
			}
			fmt.Printf("cycle %s: %d invoices generated, %d skipped, %s credit applied\n",
				c.CycleCode, res.Generated, res.Skipped, res.CreditApplied)
			if len(res.Failures) > 0 {
				for _, f := range res.Failures {
					fmt.Fprintf(os.Stderr, "  failed %s: %v\n", f.PropertyRef, f.Err)
				}
				return &cliError{code: 2, msg: fmt.Sprintf("%d of %d properties failed", len(res.Failures), res.Generated+res.Skipped+len(res.Failures))}
			}
			return nil
		},
	}
	cmd.Flags().String("cycle", "", "cycle code")
	return cmd
}

// paymentRow is one line of a payment batch CSV:
// unit_ref,amount,method,posted_date,reference[,bank_amount]
type paymentRow struct {
	unitRef    string
	amount     decimal.Decimal
	method     domain.PaymentMethod
	postedDate time.Time
	reference  string
	bankAmount *decimal.Decimal
}

func parsePaymentRow(fields []string) (*paymentRow, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("expected at least 5 columns, got %d", len(fields))
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", fields[1])
	}
	method := domain.PaymentMethod(strings.TrimSpace(fields[2]))
	if !domain.ValidPaymentMethod(method) {
		return nil, fmt.Errorf("unknown payment method %q", fields[2])
	}
	posted, err := time.Parse("2006-01-02", strings.TrimSpace(fields[3]))
	if err != nil {
		return nil, fmt.Errorf("invalid posted date %q", fields[3])
	}
	row := &paymentRow{
		unitRef:    strings.TrimSpace(fields[0]),
		amount:     amount,
		method:     method,
		postedDate: posted,
		reference:  strings.TrimSpace(fields[4]),
	}
	if len(fields) > 5 && strings.TrimSpace(fields[5]) != "" {
		bank, err := decimal.NewFromString(strings.TrimSpace(fields[5]))
		if err != nil {
			return nil, fmt.Errorf("invalid bank amount %q", fields[5])
		}
		row.bankAmount = &bank
	}
	return row, nil
}

func processPaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process-payments",
		Short: "Record and allocate a CSV batch of payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("file")
			asOfStr, _ := cmd.Flags().GetString("as-of")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}

			f, err := os.Open(file)
			if err != nil {
				return &cliError{code: 1, msg: fmt.Sprintf("cannot open %s: %v", file, err)}
			}
			defer f.Close()

			reader := csv.NewReader(f)
			reader.FieldsPerRecord = -1

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			var processed, parked, failed, line int
			for {
				fields, err := reader.Read()
				if err == io.EOF {
					break
				}
				line++
				if err != nil {
					fmt.Fprintf(os.Stderr, "  line %d: %v\n", line, err)
					failed++
					continue
				}
				if line == 1 && strings.EqualFold(strings.TrimSpace(fields[0]), "unit_ref") {
					continue // header
				}

				row, err := parsePaymentRow(fields)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  line %d: %v\n", line, err)
					failed++
					continue
				}
				if dryRun {
					processed++
					continue
				}

				pa, err := rt.accounts.GetByRegistryRef(ctx, company, row.unitRef)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  line %d (%s): %v\n", line, row.unitRef, err)
					failed++
					continue
				}

				p, err := rt.payments.Record(ctx, app.RecordPaymentInput{
					Company:            company,
					PropertyAccountID:  pa.ID,
					Amount:             row.amount,
					Method:             row.method,
					BankReportedAmount: row.bankAmount,
					PostedDate:         row.postedDate,
					Reference:          row.reference,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "  line %d (%s): %v\n", line, row.unitRef, err)
					failed++
					continue
				}

				if _, err := rt.payments.Process(ctx, p.ID, asOf); err != nil {
					if domain.IsKind(err, domain.ErrReconciliation) {
						fmt.Fprintf(os.Stderr, "  line %d (%s): parked for reconciliation: %v\n", line, row.unitRef, err)
						parked++
						continue
					}
					fmt.Fprintf(os.Stderr, "  line %d (%s): %v\n", line, row.unitRef, err)
					failed++
					continue
				}
				processed++
			}

			label := "processed"
			if dryRun {
				label = "validated (dry run)"
			}
			fmt.Printf("%d payments %s, %d parked, %d failed\n", processed, label, parked, failed)
			if failed > 0 {
				if processed+parked > 0 {
					return &cliError{code: 2, msg: fmt.Sprintf("batch partially applied: %d rows failed", failed)}
				}
				return &cliError{code: 1, msg: "every row in the batch failed"}
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "CSV file: unit_ref,amount,method,posted_date,reference[,bank_amount]")
	return cmd
}

func runLateFeeSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-late-fee-sweep",
		Short: "Issue late-payment fines on every open cycle of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			asOfStr, _ := cmd.Flags().GetString("as-of")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			open, err := rt.repo.ListOpenCycles(ctx, company)
			if err != nil {
				return err
			}
			if dryRun {
				for _, c := range open {
					fmt.Printf("would sweep cycle %s (due %s)\n", c.CycleCode, c.DueDate.Format("2006-01-02"))
				}
				fmt.Printf("dry run: %d open cycles\n", len(open))
				return nil
			}

			var issued, failedCycles int
			for _, c := range open {
				n, err := rt.cycles.ProcessLateFees(ctx, c.ID, asOf, "condo-admin")
				if err != nil {
					fmt.Fprintf(os.Stderr, "  cycle %s: %v\n", c.CycleCode, err)
					failedCycles++
					continue
				}
				issued += n
			}
			fmt.Printf("%d late fees issued across %d cycles\n", issued, len(open)-failedCycles)
			if failedCycles > 0 {
				return &cliError{code: 2, msg: fmt.Sprintf("%d of %d cycles failed", failedCycles, len(open))}
			}
			return nil
		},
	}
	return cmd
}

func closeCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close-cycle",
		Short: "Close a billing cycle past its end date",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("cycle")
			asOfStr, _ := cmd.Flags().GetString("as-of")

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			c, err := rt.cycles.GetByCode(ctx, company, code)
			if err != nil {
				return err
			}
			closed, err := rt.cycles.Close(ctx, c.ID, asOf, "condo-admin")
			if err != nil {
				return err
			}

			rate := "n/a"
			if closed.Aggregates.FinalCollectionRate != nil {
				rate = closed.Aggregates.FinalCollectionRate.StringFixed(2) + "%"
			}
			fmt.Printf("closed cycle %s: collected %s of %s (%s)\n",
				closed.CycleCode, closed.Aggregates.TotalCollected, closed.Aggregates.TotalBilled, rate)
			return nil
		},
	}
	cmd.Flags().String("cycle", "", "cycle code")
	return cmd
}

func exportCycleReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-cycle-report",
		Short: "Write a cycle's collection summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireCompany(cmd)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("cycle")
			out, _ := cmd.Flags().GetString("out")
			asOfStr, _ := cmd.Flags().GetString("as-of")

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return &cliError{code: 1, msg: err.Error()}
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			c, err := rt.cycles.GetByCode(ctx, company, code)
			if err != nil {
				return err
			}
			summary, err := rt.cycles.Summary(ctx, c.ID, asOf)
			if err != nil {
				return err
			}

			dst := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return &cliError{code: 1, msg: fmt.Sprintf("cannot create %s: %v", out, err)}
				}
				defer f.Close()
				dst = f
			}
			enc := json.NewEncoder(dst)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().String("cycle", "", "cycle code")
	cmd.Flags().String("out", "", "output file, defaults to stdout")
	return cmd
}

/**
 * @description
 * condo-admin is the operator CLI for the finance service. It drives the
 * billing workflow end to end against the shared database: opening cycles,
 * generating invoices, ingesting payment batches, sweeping late fees, closing
 * cycles, and exporting cycle reports.
 *
 * Exit codes:
 *   0  success
 *   1  validation failure
 *   2  batch partially applied
 *   3  state conflict
 *   4  dependency missing or unreachable
 *
 * @dependencies
 * - github.com/spf13/cobra: Command parsing.
 * - github.com/joho/godotenv: For loading .env files during local development.
 */

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/habitora/finance-service/internal/domain"
)

// cliError pins an explicit exit code onto a command failure.
type cliError struct {
	code int
	msg  string
}

func (e *cliError) Error() string { return e.msg }

func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch domain.KindOf(err) {
	case domain.ErrStateMachine, domain.ErrCycleImmutable, domain.ErrReconciliation:
		return 3
	case domain.ErrLinkIntegrity, domain.ErrDependency:
		return 4
	}
	return 1
}

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "condo-admin",
		Short:         "Condominium finance administration CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("company", "", "company the command operates on")
	rootCmd.PersistentFlags().String("as-of", "", "evaluation date (YYYY-MM-DD or RFC 3339), defaults to now")
	rootCmd.PersistentFlags().Bool("dry-run", false, "report what would happen without writing")

	rootCmd.AddCommand(
		openCycleCmd(),
		generateInvoicesCmd(),
		processPaymentsCmd(),
		runLateFeeSweepCmd(),
		closeCycleCmd(),
		exportCycleReportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

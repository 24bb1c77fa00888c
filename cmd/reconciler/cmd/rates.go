package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"timesheet-reconciliation-service/internal/currency"
	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/internal/sources"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

// Flags for the rates command
var (
	ratesFile   string
	ratesBase   string
	ratesFrom   string
	ratesTo     string
	ratesAsOf   string
	ratesAmount string
)

// ratesCmd prints exchange rates resolved through the base currency
var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Look up exchange rates from an FX table",
	Long: `Rates loads an exchange rate table and prints the rate between two
currencies, crossing through the base currency when neither side is the base.
Without --from and --to every currency in the table is listed.

Examples:
  reconciler rates --fx-file fx_rates.xlsx
  reconciler rates --fx-file fx_rates.xlsx --from USD --to EUR
  reconciler rates --fx-file fx_rates.csv --from USD --to ZAR --amount 1250.40 --as-of 2024-03-31`,
	RunE: runRates,
}

func init() {
	rootCmd.AddCommand(ratesCmd)

	ratesCmd.Flags().StringVar(&ratesFile, "fx-file", "", "exchange rate table (.xlsx sheet ExchangeRates or .csv) (required)")
	ratesCmd.Flags().StringVar(&ratesBase, "base-currency", models.DefaultBaseCurrency, "currency the table rates are expressed in")
	ratesCmd.Flags().StringVar(&ratesFrom, "from", "", "source currency")
	ratesCmd.Flags().StringVar(&ratesTo, "to", "", "target currency (default: base currency)")
	ratesCmd.Flags().StringVar(&ratesAsOf, "as-of", "", "use the latest rate on or before this date (YYYY-MM-DD)")
	ratesCmd.Flags().StringVar(&ratesAmount, "amount", "", "convert this amount instead of printing the rate")

	ratesCmd.MarkFlagRequired("fx-file")
}

func runRates(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(ratesFile, "exchange rate file"); err != nil {
		return err
	}

	entries, err := sources.NewRateSheetReader().ReadRates(cmd.Context(), ratesFile)
	if err != nil {
		return err
	}

	normalizer, err := buildNormalizer(entries, ratesBase, ratesAsOf)
	if err != nil {
		return err
	}

	return printRates(cmd.OutOrStdout(), normalizer, ratesFrom, ratesTo, ratesAmount)
}

func buildNormalizer(entries []models.RateEntry, base, asOf string) (*currency.Normalizer, error) {
	table, err := currency.NewTable(strings.ToUpper(base), entries)
	if err != nil {
		return nil, err
	}

	if asOf != "" {
		date, err := time.Parse(models.DateLayout, asOf)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidFormat, "as-of", asOf, err).
				WithSuggestion("Use YYYY-MM-DD")
		}
		if table, err = table.AsOf(date); err != nil {
			return nil, err
		}
	}

	return currency.NewNormalizer(table).WithLogger(logger.GetGlobalLogger()), nil
}

func printRates(w io.Writer, normalizer *currency.Normalizer, from, to, amount string) error {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if to == "" {
		to = normalizer.Base()
	}

	if from == "" {
		for _, code := range normalizer.Currencies() {
			rate, err := normalizer.Rate(code, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "1 %s = %s %s\n", code, rate.String(), to)
		}
		return nil
	}

	if amount == "" {
		rate, err := normalizer.Rate(from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "1 %s = %s %s\n", from, rate.String(), to)
		return nil
	}

	value, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidAmount, "amount", amount, err)
	}
	converted, err := normalizer.Convert(value, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s = %s %s\n", value.String(), from, converted.StringFixed(2), to)
	return nil
}

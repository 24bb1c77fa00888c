package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"timesheet-reconciliation-service/internal/mapping"
	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

var (
	rulesPath     string
	rulesInitPath string
	rulesForce    bool
)

// rulesCmd groups commands working on mapping rule files
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and create mapping rule files",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a rules file and report problems",
	Long: `Validate loads a mapping workbook or YAML rules file with the same checks a
reconciliation run applies: required columns, duplicate rule ids, ambiguous
composite keys and missing client extraction rules.

Examples:
  reconciler rules validate --rules mapping_config.xlsx
  reconciler rules validate --rules rules.yaml`,
	RunE: runRulesValidate,
}

var rulesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter mapping workbook",
	Long: `Init writes a mapping workbook with the FieldMappings, CompositeKeys,
ClientExtraction, Multimatcher and Instructions sheets filled with a working
default rule set.

Examples:
  reconciler rules init --output mapping_config.xlsx`,
	RunE: runRulesInit,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesInitCmd)

	rulesValidateCmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "mapping rules workbook (.xlsx) or YAML file (required)")
	rulesValidateCmd.MarkFlagRequired("rules")

	rulesInitCmd.Flags().StringVarP(&rulesInitPath, "output", "o", "mapping_config.xlsx", "path of the workbook to create")
	rulesInitCmd.Flags().BoolVar(&rulesForce, "force", false, "overwrite an existing file")
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(rulesPath, "rules file"); err != nil {
		return err
	}

	return validateRules(cmd.Context(), rulesPath, cmd.OutOrStdout())
}

func validateRules(ctx context.Context, path string, w io.Writer) error {
	opLog := logger.NewOperationLogger("validate_rules", logger.GetGlobalLogger()).
		WithField("rules", path)

	store, err := mapping.Open(path)
	if err != nil {
		opLog.Error(err, "Unsupported rules file")
		return err
	}

	rs, err := store.Load(ctx)
	if err != nil {
		opLog.Error(err, "Rules failed to load")
		return err
	}

	if err := mapping.ValidateRuleSet(rs); err != nil {
		opLog.Error(err, "Rule set is not usable")
		return err
	}

	counts := rs.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Rules file %s is valid\n", store.Source())
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %d\n", strings.ReplaceAll(name, "_", " "), counts[name])
	}

	opLog.Success("Rules validated")
	return nil
}

func runRulesInit(cmd *cobra.Command, args []string) error {
	if ext := strings.ToLower(filepath.Ext(rulesInitPath)); ext != ".xlsx" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", rulesInitPath, nil).
			WithSuggestion("The starter rules are written as an .xlsx workbook")
	}

	if _, err := os.Stat(rulesInitPath); err == nil && !rulesForce {
		return errors.FileError(errors.CodeFilePermission, rulesInitPath, os.ErrExist).
			WithSuggestion("Pass --force to overwrite the existing file")
	}

	if err := mapping.WriteWorkbook(rulesInitPath, mapping.DefaultSheets()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote starter rules to %s\n", rulesInitPath)
	return nil
}

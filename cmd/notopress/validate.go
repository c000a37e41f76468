package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jomei/notionapi"
	"github.com/spf13/cobra"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/notion"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and Notion connectivity",
	Long: `Validate checks that the configuration file is valid and that
notopress can connect to Notion and read the configured database.

This command performs the following checks:
1. Config file exists and is valid YAML
2. All required config fields are present and consistent
3. NOTION_TOKEN environment variable is set
4. Notion API is accessible (validates token)
5. The source database can be queried
6. The content root exists and is writable
7. The store directory exists or can be created`,
	RunE: runValidate,
}

// ValidationResult holds the result of a single validation check.
type ValidationResult struct {
	Check   string
	Passed  bool
	Message string
}

// errFirstPage stops a query after its first response.
var errFirstPage = errors.New("first page read")

// runValidate performs all validation checks and reports results.
func runValidate(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(nil, verbose)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	var results []ValidationResult
	var hasErrors bool

	logger.Debug("checking config file", "path", configPath)
	if _, err := os.Stat(configPath); err != nil {
		results = append(results, ValidationResult{
			Check:   "Config file exists",
			Passed:  false,
			Message: fmt.Sprintf("cannot access config file: %v", err),
		})
		printResults(cmd.OutOrStdout(), results)
		return fmt.Errorf("validation failed")
	}
	results = append(results, ValidationResult{Check: "Config file exists", Passed: true})

	logger.Debug("loading configuration")
	cfg, err := config.Load(configPath)
	if err != nil {
		results = append(results, ValidationResult{
			Check:   "Config file valid",
			Passed:  false,
			Message: err.Error(),
		})
		printResults(cmd.OutOrStdout(), results)
		return fmt.Errorf("validation failed")
	}
	results = append(results, ValidationResult{Check: "Config file valid", Passed: true})

	// Already enforced by config.Load; listed so the report is complete.
	results = append(results, ValidationResult{Check: "NOTION_TOKEN set", Passed: cfg.NotionToken != ""})

	client := notion.NewClient(cfg.NotionToken, logger, notion.WithRetryPolicy(cfg.RetryPolicy()))

	logger.Debug("testing Notion API connectivity")
	user, err := client.GetCurrentUser(ctx)
	if err != nil {
		results = append(results, ValidationResult{
			Check:   "Notion API accessible",
			Passed:  false,
			Message: fmt.Sprintf("failed to connect: %v", err),
		})
		hasErrors = true
	} else {
		results = append(results, ValidationResult{
			Check:   "Notion API accessible",
			Passed:  true,
			Message: fmt.Sprintf("connected as %q", user.Name),
		})

		databaseID, _ := cfg.DatabaseID()
		logger.Debug("querying source database", "database_id", databaseID)
		r := checkDatabase(ctx, client, databaseID, queryParams(cfg.Source))
		results = append(results, r)
		if !r.Passed {
			hasErrors = true
		}
	}

	logger.Debug("checking content root", "path", cfg.Output.ContentRoot)
	ok, msg := checkContentRoot(cfg.Output.ContentRoot)
	results = append(results, ValidationResult{Check: "Content root writable", Passed: ok, Message: msg})
	if !ok {
		hasErrors = true
	}

	logger.Debug("checking store path", "path", cfg.Store.Path)
	ok, msg = checkStorePath(cfg.Store.Driver, cfg.Store.Path)
	results = append(results, ValidationResult{Check: "Store path valid", Passed: ok, Message: msg})
	if !ok {
		hasErrors = true
	}

	printResults(cmd.OutOrStdout(), results)

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nAll checks passed!")
	return nil
}

// pageQuerier is the part of notion.Client used to probe the database.
type pageQuerier interface {
	EachPage(ctx context.Context, databaseID string, params notion.QueryParams, fn func([]notionapi.Page) error) error
}

// checkDatabase reads one page of query results.
func checkDatabase(ctx context.Context, client pageQuerier, databaseID string, params notion.QueryParams) ValidationResult {
	var count int
	err := client.EachPage(ctx, databaseID, params, func(pages []notionapi.Page) error {
		count = len(pages)
		return errFirstPage
	})
	if err != nil && !errors.Is(err, errFirstPage) {
		return ValidationResult{
			Check:   "Source database readable",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return ValidationResult{
		Check:   "Source database readable",
		Passed:  true,
		Message: fmt.Sprintf("first page returned %d page(s)", count),
	}
}

// checkContentRoot verifies the content root exists and is writable.
func checkContentRoot(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("directory does not exist: %s", path)
		}
		return false, fmt.Sprintf("cannot access: %v", err)
	}

	if !info.IsDir() {
		return false, fmt.Sprintf("not a directory: %s", path)
	}

	f, err := os.CreateTemp(path, ".notopress_write_test-*")
	if err != nil {
		return false, fmt.Sprintf("directory not writable: %v", err)
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	return true, ""
}

// checkStorePath verifies the store location exists or can be created.
// The json driver stores into path itself; sqlite into its parent.
func checkStorePath(driver, path string) (bool, string) {
	dir := path
	if driver == "sqlite" {
		dir = filepath.Dir(path)
	}

	if dir == "." {
		return true, ""
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return false, fmt.Sprintf("cannot create directory %s: %v", dir, err)
			}
			return true, fmt.Sprintf("created directory: %s", dir)
		}
		return false, fmt.Sprintf("cannot access directory: %v", err)
	}

	if !info.IsDir() {
		return false, fmt.Sprintf("not a directory: %s", dir)
	}

	return true, ""
}

// printResults outputs all validation results in a formatted way.
func printResults(w io.Writer, results []ValidationResult) {
	_, _ = fmt.Fprintln(w, "\nValidation Results:")
	_, _ = fmt.Fprintln(w, "-------------------")

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}

		if r.Message != "" {
			_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", status, r.Check, r.Message)
		} else {
			_, _ = fmt.Fprintf(w, "[%s] %s\n", status, r.Check)
		}
	}
}

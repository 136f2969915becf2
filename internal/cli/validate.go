package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atvault/lexhost/internal/lexicon"
)

// ValidationResult holds validation results for one document.
type ValidationResult struct {
	File  string `json:"file"`
	ID    string `json:"id,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Validate lexicon documents without installing them",
		Long: `Validate lexicon JSON documents against the supported grammar.

Accepts files or directories; directories are scanned for *.json.
Exits non-zero when any document is invalid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := collectJSONFiles(paths)
	if err != nil {
		formatter.Error("E_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load documents", err)
	}
	formatter.VerboseLog("Validating %d document(s)", len(files))

	results := make([]ValidationResult, 0, len(files))
	failed := 0
	for _, file := range files {
		res := validateFile(file)
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	if formatter.Format == "json" {
		if failed > 0 {
			formatter.Error("E_VALIDATE", fmt.Sprintf("%d of %d document(s) invalid", failed, len(files)), results)
		} else {
			formatter.Success(results)
		}
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "ok    %s (%s)\n", res.File, res.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "fail  %s: %s\n", res.File, res.Error)
			}
		}
	}

	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d invalid document(s)", failed), nil)
	}
	return nil
}

func validateFile(path string) ValidationResult {
	res := ValidationResult{File: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.Error = fmt.Sprintf("not a JSON object: %v", err)
		return res
	}
	if id, ok := doc["id"].(string); ok {
		res.ID = id
	}
	if err := lexicon.Validate(doc); err != nil {
		var verr *lexicon.ValidationError
		if errors.As(err, &verr) {
			res.Error = verr.Error()
		} else {
			res.Error = err.Error()
		}
		return res
	}
	res.Valid = true
	return res
}

// collectJSONFiles expands files and directories into a list of JSON
// documents to validate.
func collectJSONFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(p, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JSON documents found in %v", paths)
	}
	return files, nil
}

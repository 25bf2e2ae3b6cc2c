package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdb/engram/internal/engine"
)

var importCmd = &cobra.Command{
	Use:   "import [file.jsonl]",
	Short: "Bulk-import memories from a JSONL file",
	Long: "Reads one JSON object per line ({\"content\": ..., \"category\": ..., " +
		"\"importance\": ...}) and stores each through the integrator. " +
		"Failures are reported per line without aborting the import.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	var inputs []engine.StoreInput
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var in engine.StoreInput
		if err := json.Unmarshal(raw, &in); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: invalid json: %v\n", line, err)
			continue
		}
		inputs = append(inputs, in)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to import")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer eng.Stop()

	results, err := eng.BulkStore(context.Background(), inputs)
	if err != nil {
		return err
	}

	stored, failed := 0, 0
	for _, br := range results {
		if br.Err != "" {
			failed++
			fmt.Fprintf(os.Stderr, "item %d: %s\n", br.Index+1, br.Err)
			continue
		}
		stored++
	}
	fmt.Printf("imported %d memories (%d failed)\n", stored, failed)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/slidecast/internal/generate"
	"github.com/ivlev/slidecast/internal/timeline"
)

var breakdownOut string

var generateCmd = &cobra.Command{
	Use:   "generate [scene-id...]",
	Short: "Generate scene visuals from their prompts",
	Long: `Generate visuals for every scene that is not ready yet, or only for the listed
scene IDs. Scenes are generated one after another, waiting generate_interval
between requests. A scene that fails is marked "error" and the rest continue.
Needs OPEN_ROUTER_API_KEY.`,
	RunE: runGenerate,
}

var breakdownCmd = &cobra.Command{
	Use:   "breakdown <story.txt>",
	Short: "Split a story into prompt and script files for 'slidecast new'",
	Args:  cobra.ExactArgs(1),
	RunE:  runBreakdown,
}

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Check that the configured API key is accepted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := generate.NewOpenRouterClient(cfg).ValidateCredential(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return generate.ErrCredential
		}
		fmt.Println("[+++] API key is valid")
		return nil
	},
}

func init() {
	breakdownCmd.Flags().StringVarP(&breakdownOut, "out", "o", "input", "Directory for prompts.txt and scripts.txt")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var ids []int
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("scene id %q: %w", a, err)
		}
		ids = append(ids, id)
	}

	tl, path, err := loadProject()
	if err != nil {
		return err
	}
	tl.OnStatusChange(func(id int, st timeline.Status) {
		if err := tl.Save(path); err != nil {
			fmt.Printf("[!] Could not save project: %v\n", err)
		}
	})

	batch := generate.NewBatch(generate.NewOpenRouterClient(cfg), tl, cfg.GenerateInterval)
	report, err := batch.Run(cmd.Context(), ids...)
	if errors.Is(err, generate.ErrCredential) {
		return fmt.Errorf("%w: set OPEN_ROUTER_API_KEY in the environment or .env", err)
	}
	printScenes(tl)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		fmt.Printf("[!] %d scenes failed; run 'slidecast generate' again to retry them\n", report.Failed)
	}
	return nil
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	beats, err := generate.NewOpenRouterClient(cfg).BreakdownStory(cmd.Context(), string(data))
	if err != nil {
		return err
	}
	prompts, scripts := generate.Split(beats)

	if err := os.MkdirAll(breakdownOut, 0755); err != nil {
		return err
	}
	promptsPath := filepath.Join(breakdownOut, "prompts.txt")
	scriptsPath := filepath.Join(breakdownOut, "scripts.txt")
	if err := os.WriteFile(promptsPath, []byte(strings.Join(prompts, "\n")+"\n"), 0644); err != nil {
		return err
	}
	if err := os.WriteFile(scriptsPath, []byte(strings.Join(scripts, "\n")+"\n"), 0644); err != nil {
		return err
	}

	fmt.Printf("[+++] %d scenes written to %s and %s\n", len(beats), promptsPath, scriptsPath)
	return nil
}

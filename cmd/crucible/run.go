package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/render"
	"github.com/michaelbrown/crucible/internal/sandbox"
)

var (
	sourceFile string
	imageOut   string
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Execute a snippet and print the result",
	Long: `Execute a single snippet in the sandbox and print its output.

The snippet comes from the argument, from --file, or from stdin.

Examples:
  crucible run 'print(6 * 7)'
  crucible run --file snippet.star
  echo '1 + 1' | crucible run
  crucible run --privileged --image-out plot.png 'c = canvas.new(64, 64)'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&sourceFile, "file", "f", "", "Read the snippet from a file")
	runCmd.Flags().StringVarP(&imageOut, "image-out", "o", "", "Write the image artifact to this path")
	rootCmd.AddCommand(runCmd)
}

func readSource(args []string) (string, error) {
	switch {
	case sourceFile != "":
		data, err := os.ReadFile(sourceFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", sourceFile, err)
		}
		return string(data), nil
	case len(args) == 1:
		return args[0], nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
}

func resolveBudget(policy sandbox.Policy) (time.Duration, error) {
	if budgetFlag != "" {
		d, err := time.ParseDuration(budgetFlag)
		if err != nil {
			return 0, fmt.Errorf("parsing --budget: %w", err)
		}
		return d, nil
	}
	if privilegedFlag {
		return policy.PrivilegedBudget, nil
	}
	return 0, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	source, err := readSource(args)
	if err != nil {
		return err
	}

	budget, err := resolveBudget(policy)
	if err != nil {
		return err
	}

	runner := sandbox.NewRunner(policy, nil)
	res, err := runner.Execute(context.Background(), sandbox.Request{
		Source: source,
		Budget: budget,
	})
	if err != nil {
		return err
	}

	if res.Failed() {
		fmt.Fprintf(os.Stderr, "%s\n", render.Error(res.Err))
	}
	if res.Text != "" {
		fmt.Print(res.Text)
		if res.Text[len(res.Text)-1] != '\n' {
			fmt.Println()
		}
	}
	fmt.Fprintf(os.Stderr, "(%s)\n", render.Duration(res.Duration))

	if len(res.Image) > 0 {
		out := imageOut
		if out == "" {
			out = "crucible.png"
		}
		if err := os.WriteFile(out, res.Image, 0o644); err != nil {
			return fmt.Errorf("writing image: %w", err)
		}
		fmt.Fprintf(os.Stderr, "image written to %s\n", out)
	}

	if res.Failed() {
		os.Exit(1)
	}
	return nil
}

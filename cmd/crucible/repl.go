package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/render"
	"github.com/michaelbrown/crucible/internal/sandbox"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively execute snippets",
	Long: `Start an interactive loop that executes each line in the sandbox.

Every submission runs in a fresh context; nothing persists between lines.
End a line with a backslash to continue it on the next line.`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	budget, err := resolveBudget(policy)
	if err != nil {
		return err
	}

	runner := sandbox.NewRunner(policy, nil)

	fmt.Println("Crucible - sandboxed snippet REPL")
	fmt.Printf("Budget: %s per run\n", policy.Budget(budget))
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36m>>>\033[0m ",
		HistoryFile:     "/tmp/crucible_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	imageCount := 0

	for {
		input, err := readSnippet(rl)
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleReplCommand(input) {
				continue
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), policy.MaxBudget+time.Second)
		res, err := runner.Execute(ctx, sandbox.Request{Source: input, Budget: budget})
		cancel()
		if err != nil {
			fmt.Printf("\033[31merror: %s\033[0m\n", err)
			continue
		}

		if res.Failed() {
			fmt.Printf("\033[31m%s\033[0m\n", render.Error(res.Err))
		}
		if res.Text != "" {
			fmt.Print(res.Text)
			if !strings.HasSuffix(res.Text, "\n") {
				fmt.Println()
			}
		}
		if len(res.Image) > 0 {
			imageCount++
			path := fmt.Sprintf("crucible-%d.png", imageCount)
			if err := os.WriteFile(path, res.Image, 0o644); err != nil {
				fmt.Printf("\033[31mwriting image: %s\033[0m\n", err)
			} else {
				fmt.Printf("\033[90mimage written to %s\033[0m\n", path)
			}
		}
		fmt.Printf("\033[90m(%s)\033[0m\n", render.Duration(res.Duration))
	}
}

// readSnippet reads one submission, joining backslash-continued lines.
func readSnippet(rl *readline.Instance) (string, error) {
	var lines []string
	for {
		line, err := rl.Readline()
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(line, "\\") {
			lines = append(lines, strings.TrimSuffix(line, "\\"))
			rl.SetPrompt("\033[36m...\033[0m ")
			continue
		}
		lines = append(lines, line)
		rl.SetPrompt("\033[36m>>>\033[0m ")
		return strings.Join(lines, "\n"), nil
	}
}

func handleReplCommand(input string) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}

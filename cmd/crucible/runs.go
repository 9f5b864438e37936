package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/crucible/internal/artifact"
	"github.com/michaelbrown/crucible/internal/config"
	"github.com/michaelbrown/crucible/internal/render"
	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/storage"
	"github.com/michaelbrown/crucible/internal/storage/sqlite"
)

var (
	statusFilter string
	limitFlag    int
	forceFlag    bool
	imageOutFlag string
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"history"},
	Short:   "Manage recorded runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's source and output",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsImageCmd = &cobra.Command{
	Use:   "image <run-id>",
	Short: "Export a run's image artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsImage,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsImageCmd)

	runsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (completed, failed, timed_out)")
	runsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max runs to show")

	runsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")

	runsImageCmd.Flags().StringVarP(&imageOutFlag, "output", "o", "", "Output file (default: <run-id>.png)")
}

func openStore() (*config.Config, storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := storage.RunListOptions{
		Status: storage.RunStatus(statusFilter),
		Limit:  limitFlag,
	}

	runs, err := store.ListRuns(context.Background(), opts)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-10s %-11s %-12s %-6s %-40s %s\n", "ID", "STATUS", "DURATION", "IMAGE", "SOURCE", "WHEN")
	fmt.Println(strings.Repeat("─", 100))

	for _, r := range runs {
		src := strings.Join(strings.Fields(r.Source), " ")
		if len(src) > 38 {
			src = src[:38] + ".."
		}

		img := ""
		if r.HasImage() {
			img = "yes"
		}

		fmt.Printf("%-10s %-11s %-12s %-6s %-40s %s\n",
			r.ID[:8], r.Status, render.Duration(r.Duration), img, src, timeAgo(r.CreatedAt))
	}

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Duration: %s\n", render.Duration(run.Duration))
	fmt.Printf("Created:  %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.HasImage() {
		fmt.Printf("Image:    %d bytes\n", run.ImageSize)
	}

	fmt.Println("\nSource:")
	fmt.Println(strings.Repeat("─", 60))
	fmt.Println(run.Source)

	if run.ErrorKind != "" {
		fmt.Println("\nError:")
		fmt.Println(strings.Repeat("─", 60))
		fmt.Println(render.Error(&sandbox.Failure{Kind: run.ErrorKind, Args: run.ErrorArgs}))
	}

	if run.Text != "" {
		fmt.Println("\nOutput:")
		fmt.Println(strings.Repeat("─", 60))
		fmt.Println(strings.TrimRight(run.Text, "\n"))
	}

	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete run %s? [y/N] ", run.ID[:8])
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if run.HasImage() {
		artifacts, err := artifact.NewStore(cfg.Storage.ArtifactsDir)
		if err == nil {
			artifacts.Remove(run.ID)
		}
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", run.ID[:8])
	return nil
}

func runRunsImage(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !run.HasImage() {
		return fmt.Errorf("run %s has no image", run.ID[:8])
	}

	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactsDir)
	if err != nil {
		return err
	}
	f, err := artifacts.Open(run.ID)
	if err != nil {
		return err
	}
	defer f.Close()

	out := imageOutFlag
	if out == "" {
		out = run.ID[:8] + ".png"
	}
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", out)
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/maxfraieho/membridge/internal/config"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the local database snapshot to the object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		engine, project, err := buildEngine(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 120*time.Second)
		defer cancel()

		outcome, err := engine.Push(ctx, project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "push failed: %v\n", err)
			os.Exit(1)
		}

		printJSON, _ := cmd.Flags().GetBool("json")
		if printJSON {
			_ = json.NewEncoder(os.Stdout).Encode(outcome)
		} else {
			fmt.Printf("push: %s — %s\n", outcome.Kind, outcome.Detail)
		}
		os.Exit(outcome.ExitCode())
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the object store's current snapshot over the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		engine, project, err := buildEngine(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 120*time.Second)
		defer cancel()

		outcome, err := engine.Pull(ctx, project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pull failed: %v\n", err)
			os.Exit(1)
		}

		printJSON, _ := cmd.Flags().GetBool("json")
		if printJSON {
			_ = json.NewEncoder(os.Stdout).Encode(outcome)
		} else {
			fmt.Printf("pull: %s — %s\n", outcome.Kind, outcome.Detail)
		}
		os.Exit(outcome.ExitCode())
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report local DB integrity and lock/lease state, with no side effects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		engine, project, err := buildEngine(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		report, err := engine.Doctor(ctx, project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "doctor failed: %v\n", err)
			os.Exit(1)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)

		if !report.IntegrityOK {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{pushCmd, pullCmd} {
		syncFlags(cmd)
		cmd.Flags().Bool("json", false, "Print machine-readable JSON output")
	}
	syncFlags(doctorCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/contentcal/internal/models"
)

// --- Generation ---

func newGenerateCommand() *cobra.Command {
	var req models.GenerationRequest
	var withProgress bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one calendar generation in the foreground and print the calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, err := a.service.Run(ctx, req)
			if err != nil {
				return err
			}
			if withProgress || snap.Calendar == nil {
				printJSON(snap)
			}
			if snap.Calendar == nil {
				return fmt.Errorf("session %s ended %s without a calendar", snap.SessionID, snap.Status)
			}
			printJSON(snap.Calendar)
			return nil
		},
	}

	cmd.Flags().IntVar(&req.UserID, "user", 0, "User id (required)")
	cmd.Flags().IntVar(&req.StrategyID, "strategy", 0, "Strategy id (required)")
	cmd.Flags().StringVar(&req.CalendarType, "type", models.CalendarMonthly, "Calendar type: weekly, monthly, quarterly")
	cmd.Flags().StringVar(&req.Industry, "industry", "", "Industry override")
	cmd.Flags().StringVar(&req.BusinessSize, "size", "medium", "Business size: small, medium, large")
	cmd.Flags().BoolVar(&withProgress, "progress", false, "Also print the final progress snapshot")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}

// --- Health ---

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that every step is registered and the store is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			h := a.service.Health()
			printJSON(h)
			if !h.Healthy {
				return fmt.Errorf("unhealthy")
			}
			return nil
		},
	}
}

// --- Strategy records ---

func newStrategyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage saved content strategies",
	}
	cmd.AddCommand(newStrategyAddCommand())
	cmd.AddCommand(newStrategyShowCommand())
	return cmd
}

func newStrategyAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <strategy.json>",
		Short: "Store a strategy from a JSON file and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec models.StrategyRecord
			if err := readJSONFile(args[0], &rec); err != nil {
				return err
			}
			if rec.UserID <= 0 {
				return fmt.Errorf("strategy needs a positive user_id")
			}

			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := db.AddStrategy(cmd.Context(), rec)
			if err != nil {
				return err
			}
			printJSON(map[string]int{"id": id})
			return nil
		},
	}
}

func newStrategyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <strategy_id>",
		Short: "Print a stored strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid strategy id %q", args[0])
			}
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.GetStrategy(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}
}

// --- Onboarding profiles ---

func newOnboardingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "Manage onboarding profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <profile.json>",
		Short: "Store or replace a user's onboarding profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p models.OnboardingProfile
			if err := readJSONFile(args[0], &p); err != nil {
				return err
			}
			if p.UserID <= 0 {
				return fmt.Errorf("profile needs a positive user_id")
			}

			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SaveOnboarding(cmd.Context(), p); err != nil {
				return err
			}
			printJSON(map[string]any{"user_id": p.UserID, "saved": true})
			return nil
		},
	})
	return cmd
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

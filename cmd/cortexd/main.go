// Package main implements the cortexd CLI: the cognitive orchestration
// engine driven from the command line.
//
// The transport layer that normally fronts the engine is deployed
// separately; this binary wires the full cognitive pipeline over a local
// rule-based runtime and worker so requests can be processed one-shot.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	userID     string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cortexd",
	Short: "Cognitive orchestration engine",
	Long: `cortexd turns user requests into validated, risk-assessed execution
plans, dispatches them to worker agents, and learns from every cycle.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(statsCmd)
}

// serveCmd boots the engine and blocks until SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cognitive engine and wait for shutdown",
	RunE:  runServe,
}

// processCmd runs one message through the full pipeline.
var processCmd = &cobra.Command{
	Use:   "process [message]",
	Short: "Process one request through the cognitive pipeline",
	Long: `Process one request: build an understanding, plan it, execute the plan
against the local worker, and print the full result as JSON.

Examples:
  cortexd process "I want to research skin care routines"
  cortexd process --user alice "schedule a daily summary at 9am"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

// statsCmd prints the engine counter snapshot after a warm-up request.
var statsCmd = &cobra.Command{
	Use:   "stats [message]",
	Short: "Process a request and print engine statistics",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStats,
}

func init() {
	processCmd.Flags().StringVar(&userID, "user", "local", "user id to process as")
	statsCmd.Flags().StringVar(&userID, "user", "local", "user id to process as")
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	app.Logger.Info("cortexd ready", zap.String("version", version))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		app.Logger.Info("shutting down", zap.String("signal", s.String()))
	case <-cmd.Context().Done():
	}
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	result, err := app.ProcessOnce(cmd.Context(), userID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runStats(cmd *cobra.Command, args []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	if _, err := app.ProcessOnce(cmd.Context(), userID, strings.Join(args, " ")); err != nil {
		return err
	}
	return printJSON(app.Engine.GetStats())
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

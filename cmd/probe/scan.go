package main

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"handleprobe/internal/config"
	"handleprobe/internal/export"
	"handleprobe/internal/service"
	"handleprobe/internal/stats"
	"handleprobe/internal/tui"
)

var (
	flagCategory  string
	flagSites     []string
	flagQuery     string
	flagMaxSites  int
	flagTimeout   time.Duration
	flagOutput    string
	flagBackup    []string
	flagSort      string
	flagFoundOnly bool
)

func init() {
	scanCmd.Flags().StringVar(&flagCategory, "category", "", "Only check sites in this category")
	scanCmd.Flags().StringSliceVar(&flagSites, "site", nil, "Only check these sites (repeatable)")
	scanCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "Only check sites matching this search")
	scanCmd.Flags().IntVarP(&flagMaxSites, "max-sites", "m", 0, "Cap on sites checked (0 keeps the configured cap)")
	scanCmd.Flags().DurationVarP(&flagTimeout, "timeout", "t", 0, "Per-request timeout")
	scanCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Export found accounts to a .json, .csv or .xlsx file")
	scanCmd.Flags().StringSliceVar(&flagBackup, "backup", nil, "Backup egress endpoint (socks5://, http://, relay+https://)")
	scanCmd.Flags().StringVar(&flagSort, "sort", "found", "Result order: found, name, latency or dispatch")
	scanCmd.Flags().BoolVar(&flagFoundOnly, "found-only", false, "Only list found accounts")

	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <handle>",
	Short: "Check a handle across the site registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func applyScanFlags(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("max-sites") {
			cfg.Probe.MaxSites = flagMaxSites
		}
		if flagTimeout > 0 {
			cfg.Fetch.Timeout = flagTimeout
		}
		if len(flagBackup) > 0 {
			cfg.Backup.Endpoints = flagBackup
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	useTUI := isTerminal()

	a, cleanup, err := setup(ctx, useTUI, applyScanFlags(cmd))
	if err != nil {
		return err
	}
	defer cleanup()
	svc := a.Service

	id, err := svc.CreateSession()
	if err != nil {
		return err
	}
	defer svc.CloseSession(id)

	search, err := svc.Search(ctx, id, service.SearchInput{
		Handle: args[0],
		Selection: service.Selection{
			Category: flagCategory,
			Sites:    flagSites,
			Query:    flagQuery,
		},
	})
	if err != nil {
		return err
	}

	if useTUI {
		prog := tea.NewProgram(tui.NewProgress(search.Handle, search.Updates(), search.Cancel), tea.WithContext(ctx))
		final, err := prog.Run()
		if err != nil {
			search.Cancel()
			if !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
		}
		if m, ok := final.(tui.Progress); ok && m.Aborted {
			search.Cancel()
		}
	} else {
		go func() {
			select {
			case <-ctx.Done():
				search.Cancel()
			case <-search.Done():
			}
		}()
		for range search.Updates() {
		}
	}
	search.Wait()

	snap, err := svc.Snapshot(id, stats.ParseOrder(flagSort))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.RenderResults(snap, flagFoundOnly))
	if !snap.Done {
		return errors.New("scan interrupted")
	}

	if flagOutput != "" {
		doc, err := svc.Export(id, time.Now())
		if err != nil {
			return err
		}
		if err := export.WriteFile(flagOutput, doc); err != nil {
			return err
		}
		fmt.Fprintf(out, "Found accounts exported to %s\n", flagOutput)
	}
	return nil
}

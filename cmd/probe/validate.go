package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"handleprobe/internal/model"
	"handleprobe/internal/random"
	"handleprobe/internal/service"
	"handleprobe/internal/tui"
)

var flagWorkers int

func init() {
	validateCmd.Flags().StringVar(&flagCategory, "category", "", "Only validate sites in this category")
	validateCmd.Flags().StringSliceVar(&flagSites, "site", nil, "Only validate these sites (repeatable)")
	validateCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 10, "Sites validated concurrently")

	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check site rules against known accounts and an unlikely handle",
	Long: "For every site with known accounts, probe the first known account (expected found) " +
		"and a random handle nobody is likely to own (expected not found), and report sites " +
		"whose rules get either one wrong.",
	Args: cobra.NoArgs,
	RunE: runValidate,
}

type validation struct {
	site     string
	handle   string
	expected model.State
	got      model.CheckResult
	err      error
}

func (v validation) ok() bool {
	return v.err == nil && v.got.State == v.expected
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, cleanup, err := setup(ctx, false, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	sites, err := a.Sites.Select(service.Selection{Category: flagCategory, Sites: flagSites})
	if err != nil {
		return err
	}
	rng, err := random.New()
	if err != nil {
		return err
	}
	unlikely := fmt.Sprintf("hp%08x%08x", rng.Uint32(), rng.Uint32())

	jobs := make([]validation, 0, 2*len(sites))
	for _, s := range sites {
		if len(s.Known) == 0 {
			continue
		}
		jobs = append(jobs,
			validation{site: s.Name, handle: s.Known[0], expected: model.StateFound},
			validation{site: s.Name, handle: unlikely, expected: model.StateNotFound},
		)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sites with known accounts.")
		return nil
	}

	results := validateAll(ctx, a.Service, jobs, flagWorkers)
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([][]string, 0)
	failures := 0
	for _, v := range results {
		if v.ok() {
			continue
		}
		failures++
		got := string(v.got.State)
		if v.err != nil {
			got = v.err.Error()
		} else if v.got.ErrorDetail != "" {
			got += ": " + v.got.ErrorDetail
		}
		rows = append(rows, []string{v.site, v.handle, string(v.expected), got})
	}

	out := cmd.OutOrStdout()
	if failures == 0 {
		fmt.Fprintf(out, "All %d checks passed.\n", len(results))
		return nil
	}
	fmt.Fprint(out, tui.RenderTable([]string{"Site", "Handle", "Expected", "Got"}, rows))
	fmt.Fprintf(out, "%d of %d checks misclassified.\n", failures, len(results))
	return fmt.Errorf("%d site checks failed validation", failures)
}

func validateAll(ctx context.Context, svc *service.ProbeService, jobs []validation, workers int) []validation {
	if workers <= 0 {
		workers = 1
	}
	queue := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				v := &jobs[idx]
				v.got, v.err = svc.Check(ctx, v.site, v.handle)
			}
		}()
	}
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		queue <- i
	}
	close(queue)
	wg.Wait()

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].site < jobs[j].site })
	return jobs
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

type options struct {
	baseURL      string
	totalPlayers int
	rate         int
	concurrency  int
	pullPercent  int
	startBalance int64
	duration     time.Duration
}

type stats struct {
	scores        atomic.Int64
	pulls         atomic.Int64
	insufficient  atomic.Int64
	errors        atomic.Int64
	totalDuration atomic.Int64
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "loadgen",
		Short:        "Drive concurrent score submissions and gacha pulls against the gameplay API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().IntVar(&opts.totalPlayers, "players", 200, "number of players to provision")
	cmd.Flags().IntVar(&opts.rate, "rate", 100, "requests per second")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 16, "concurrent in-flight requests")
	cmd.Flags().IntVar(&opts.pullPercent, "pull-percent", 10, "share of requests that are gacha pulls")
	cmd.Flags().Int64Var(&opts.startBalance, "balance", 1000, "starting currency per player")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "duration to run (0 = until interrupted)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.totalPlayers <= 0 || opts.rate <= 0 || opts.concurrency <= 0 {
		return fmt.Errorf("players, rate and concurrency must be positive")
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(opts.baseURL, "/")

	fmt.Printf("Provisioning %d players against %s...\n", opts.totalPlayers, base)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i := 0; i < opts.totalPlayers; i++ {
		name := getPlayerName(i)
		g.Go(func() error {
			body := map[string]any{"displayName": name, "currencyBalance": opts.startBalance}
			status, err := send(gctx, client, http.MethodPut, base+"/players/"+name, body)
			if err != nil {
				return err
			}
			if status != http.StatusOK && status != http.StatusCreated {
				return fmt.Errorf("provisioning %s: status %d", name, status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("Provisioned %d players\n", opts.totalPlayers)

	var st stats
	jobs := make(chan int)

	workers, wctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.concurrency; w++ {
		workers.Go(func() error {
			for playerIdx := range jobs {
				fire(wctx, client, base, playerIdx, opts.pullPercent, &st)
			}
			return nil
		})
	}

	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			// 70% of traffic goes to the top 20 players to create movement
			var playerIdx int
			if rand.Intn(100) < 70 || opts.totalPlayers <= 20 {
				playerIdx = rand.Intn(min(20, opts.totalPlayers))
			} else {
				playerIdx = rand.Intn(opts.totalPlayers-20) + 20
			}
			select {
			case jobs <- playerIdx:
			case <-ctx.Done():
				break loop
			}
		case <-statsTicker.C:
			printStats(&st)
		}
	}

	close(jobs)
	_ = workers.Wait()
	fmt.Println()
	printStats(&st)
	return nil
}

func fire(ctx context.Context, client *http.Client, base string, playerIdx, pullPercent int, st *stats) {
	name := getPlayerName(playerIdx)
	start := time.Now()
	defer func() { st.totalDuration.Add(int64(time.Since(start))) }()

	if rand.Intn(100) < pullPercent {
		status, err := send(ctx, client, http.MethodPost, base+"/gacha-pull", map[string]any{"userId": name})
		switch {
		case err != nil:
			if ctx.Err() == nil {
				st.errors.Add(1)
			}
		case status == http.StatusOK:
			st.pulls.Add(1)
		case status == http.StatusBadRequest:
			st.insufficient.Add(1)
		default:
			st.errors.Add(1)
		}
		return
	}

	body := map[string]any{
		"userId":      name,
		"score":       rand.Intn(600) + 200,
		"sessionData": map[string]any{"displayName": name},
	}
	status, err := send(ctx, client, http.MethodPost, base+"/score", body)
	if err != nil || status != http.StatusOK {
		if ctx.Err() == nil {
			st.errors.Add(1)
		}
		return
	}
	st.scores.Add(1)
}

func send(ctx context.Context, client *http.Client, method, url string, body any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func printStats(st *stats) {
	scores, pulls := st.scores.Load(), st.pulls.Load()
	requests := scores + pulls + st.insufficient.Load() + st.errors.Load()
	var avg time.Duration
	if requests > 0 {
		avg = time.Duration(st.totalDuration.Load() / requests)
	}
	fmt.Printf("[%s] Scores: %d | Pulls: %d | Insufficient: %d | Errors: %d | Avg latency: %s\n",
		time.Now().Format("15:04:05"),
		scores,
		pulls,
		st.insufficient.Load(),
		st.errors.Load(),
		avg,
	)
}

package cli

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"linkvault-server/pkg/models"

	"github.com/spf13/cobra"
)

// StressConfig holds configuration for a limit check run
type StressConfig struct {
	BaseURL       string        // Server base URL
	Mode          string        // "text" (view limit) or "file" (download limit)
	Limit         int           // Views or downloads allowed on the link
	Requests      int           // Total accesses to fire at the link
	Concurrency   int           // Maximum in-flight accesses
	Timeout       time.Duration // Per-request timeout
	TLSSkipVerify bool          // Skip TLS certificate verification
}

// StressResult summarizes one run
type StressResult struct {
	LinkID        string
	Delivered     int64
	StatusCounts  map[int]int64
	NetworkErrors int64
	Duration      time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	P95Latency    time.Duration
}

// NewStressCommand fires concurrent accesses at a freshly uploaded link and
// fails unless exactly the allowed number of them were served
func NewStressCommand() *cobra.Command {
	cfg := StressConfig{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Check view/download limits under concurrent access against a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🚀 Limit check against %s (%s, limit %d, %d requests, concurrency %d)\n",
				cfg.BaseURL, cfg.Mode, cfg.Limit, cfg.Requests, cfg.Concurrency)

			result, err := RunStress(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printStressResult(out, result)

			if result.Delivered != int64(cfg.Limit) {
				return fmt.Errorf("limit violated: %d accesses served, expected %d", result.Delivered, cfg.Limit)
			}
			fmt.Fprintln(out, "✅ Limit held")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8081", "Server base URL")
	cmd.Flags().StringVar(&cfg.Mode, "mode", "text", "Content to upload: text (view limit) or file (download limit)")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 5, "Views or downloads allowed")
	cmd.Flags().IntVar(&cfg.Requests, "requests", 200, "Total accesses to send")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 50, "Maximum concurrent accesses")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Per-request timeout")
	cmd.Flags().BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", false, "Skip TLS certificate verification")
	return cmd
}

// RunStress uploads one limited link and hammers it
func RunStress(ctx context.Context, cfg StressConfig) (*StressResult, error) {
	if cfg.Limit < 1 || cfg.Requests < 1 || cfg.Concurrency < 1 {
		return nil, fmt.Errorf("limit, requests and concurrency must be positive")
	}
	if cfg.Mode != "text" && cfg.Mode != "file" {
		return nil, fmt.Errorf("invalid mode %q: must be text or file", cfg.Mode)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	transport := &http.Transport{
		MaxIdleConns:        cfg.Concurrency,
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{Timeout: cfg.Timeout, Transport: transport}

	if err := waitForServer(ctx, client, base); err != nil {
		return nil, err
	}

	id, accessPath, err := uploadLimited(ctx, client, base, cfg)
	if err != nil {
		return nil, err
	}

	result := &StressResult{LinkID: id, StatusCounts: make(map[int]int64)}
	latencies := make([]time.Duration, 0, cfg.Requests)
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, cfg.Concurrency)

	start := time.Now()
	for i := 0; i < cfg.Requests; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case semaphore <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			reqStart := time.Now()
			status, err := access(ctx, client, base+accessPath)
			elapsed := time.Since(reqStart)

			if err != nil {
				atomic.AddInt64(&result.NetworkErrors, 1)
				return
			}
			if status == http.StatusOK {
				atomic.AddInt64(&result.Delivered, 1)
			}
			mu.Lock()
			result.StatusCounts[status]++
			latencies = append(latencies, elapsed)
			mu.Unlock()
		}()
	}
	wg.Wait()
	result.Duration = time.Since(start)

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		result.MinLatency = latencies[0]
		result.MaxLatency = latencies[len(latencies)-1]
		result.P95Latency = latencies[(len(latencies)*95)/100]
		if result.P95Latency == 0 {
			result.P95Latency = result.MaxLatency
		}
	}
	return result, nil
}

// waitForServer polls /health until the server answers
func waitForServer(ctx context.Context, client *http.Client, base string) error {
	const maxAttempts = 30
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if i < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	return fmt.Errorf("server not ready after %d attempts", maxAttempts)
}

// uploadLimited creates the link under test and returns its id and access path
func uploadLimited(ctx context.Context, client *http.Client, base string, cfg StressConfig) (string, string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	accessPath := "/content/"

	if cfg.Mode == "text" {
		form.WriteField("text", fmt.Sprintf("limit check %s", time.Now().UTC().Format(time.RFC3339Nano)))
		form.WriteField("maxViews", fmt.Sprint(cfg.Limit))
	} else {
		part, err := form.CreateFormFile("file", "limit-check.pdf")
		if err != nil {
			return "", "", err
		}
		part.Write([]byte("%PDF-1.4\n"))
		part.Write(bytes.Repeat([]byte("% linkvault limit check\n"), 64))
		form.WriteField("maxDownloads", fmt.Sprint(cfg.Limit))
		accessPath = "/content/download/"
	}
	if err := form.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/content/upload", &body)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("upload failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var envelope struct {
		Data models.UploadResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if envelope.Data.ID == "" {
		return "", "", fmt.Errorf("upload response carried no link id")
	}
	return envelope.Data.ID, accessPath + envelope.Data.ID, nil
}

// access performs one access and drains the body so a download completes
func access(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

func printStressResult(out io.Writer, r *StressResult) {
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Link:           %s\n", r.LinkID)
	fmt.Fprintf(out, "Served:         %d\n", r.Delivered)

	codes := make([]int, 0, len(r.StatusCounts))
	for code := range r.StatusCounts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "HTTP %d:       %d\n", code, r.StatusCounts[code])
	}
	if r.NetworkErrors > 0 {
		fmt.Fprintf(out, "Network errors: %d\n", r.NetworkErrors)
	}
	fmt.Fprintf(out, "Duration:       %v\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Latency:        min %v / p95 %v / max %v\n",
		r.MinLatency.Round(time.Microsecond), r.P95Latency.Round(time.Microsecond), r.MaxLatency.Round(time.Microsecond))
	fmt.Fprintln(out, strings.Repeat("=", 50))
}

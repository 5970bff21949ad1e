package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/adapters/llm"
	"github.com/codecouncil-ai/codecouncil/internal/adapters/state"
	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

// CheckStatus grades one doctor check.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is one verdict in the doctor report.
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
}

// Doctor runs the environment checks in a fixed order.
type Doctor struct {
	cfg    *config.Config
	logger *logging.Logger

	client    *http.Client
	openStore func(path string) (core.RunStore, error)
	collect   func() SystemInfo
}

func NewDoctor(cfg *config.Config, logger *logging.Logger) *Doctor {
	return &Doctor{
		cfg:       cfg,
		logger:    logger.WithComponent("doctor"),
		client:    &http.Client{Timeout: 5 * time.Second},
		openStore: state.NewRunStore,
		collect:   CollectSystem,
	}
}

// Run executes every check and returns the verdicts in display order.
// Failures do not stop later checks.
func (d *Doctor) Run(ctx context.Context) []Check {
	checks := []Check{
		d.checkConfig(),
		d.checkProvider(),
	}
	if probe := d.checkReachability(ctx); probe != nil {
		checks = append(checks, *probe)
	}
	checks = append(checks,
		d.checkStore(ctx),
		d.checkResources(),
		d.checkRuntime(),
	)
	for _, c := range checks {
		if c.Status != CheckOK {
			d.logger.Warn("doctor check not clean", "check", c.Name, "status", string(c.Status), "detail", c.Detail)
		}
	}
	return checks
}

// Healthy reports whether no check failed. Warnings do not count.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == CheckFail {
			return false
		}
	}
	return true
}

func (d *Doctor) checkConfig() Check {
	check := Check{Name: "configuration"}
	if err := config.ValidateConfig(d.cfg); err != nil {
		check.Status = CheckFail
		check.Detail = err.Error()
		return check
	}
	check.Status = CheckOK
	check.Detail = fmt.Sprintf("%d agents, provider %s", len(d.cfg.Agents.Enabled), providerName(d.cfg.Upstream))
	return check
}

func (d *Doctor) checkProvider() Check {
	check := Check{Name: "provider credentials"}
	provider := providerName(d.cfg.Upstream)
	if provider == "fake" {
		check.Status = CheckOK
		check.Detail = "fake provider runs offline, no credentials needed"
		return check
	}
	keyEnv := llm.KeyEnv(d.cfg.Upstream)
	if keyEnv == "" {
		check.Status = CheckFail
		check.Detail = fmt.Sprintf("unknown provider %q", provider)
		return check
	}
	if os.Getenv(keyEnv) == "" {
		check.Status = CheckFail
		check.Detail = fmt.Sprintf("%s is not set; export the %s API key", keyEnv, provider)
		return check
	}
	check.Status = CheckOK
	check.Detail = fmt.Sprintf("%s key found in %s", provider, keyEnv)
	return check
}

// checkReachability probes the provider endpoint. Any HTTP reply counts as
// reachable, auth failures included. Returns nil for the fake provider.
func (d *Doctor) checkReachability(ctx context.Context) *Check {
	endpoint := llm.Endpoint(d.cfg.Upstream)
	if endpoint == "" || providerName(d.cfg.Upstream) == "fake" {
		return nil
	}
	check := &Check{Name: "provider reachability"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		check.Status = CheckFail
		check.Detail = fmt.Sprintf("bad endpoint %s: %v", endpoint, err)
		return check
	}
	resp, err := d.client.Do(req)
	if err != nil {
		check.Status = CheckWarn
		check.Detail = fmt.Sprintf("%s unreachable: %v; analysis calls will fail until this resolves", endpoint, err)
		return check
	}
	defer resp.Body.Close()
	check.Status = CheckOK
	check.Detail = fmt.Sprintf("%s reachable (HTTP %d)", endpoint, resp.StatusCode)
	return check
}

func (d *Doctor) checkStore(ctx context.Context) Check {
	check := Check{Name: "run history"}
	store, err := d.openStore(d.cfg.Store.Path)
	if err != nil {
		check.Status = CheckFail
		check.Detail = fmt.Sprintf("opening %s: %v", d.cfg.Store.Path, err)
		return check
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		check.Status = CheckFail
		check.Detail = fmt.Sprintf("reading %s: %v", d.cfg.Store.Path, err)
		return check
	}
	check.Status = CheckOK
	check.Detail = fmt.Sprintf("%s holds %d stored runs", d.cfg.Store.Path, len(runs))
	return check
}

func (d *Doctor) checkResources() Check {
	check := Check{Name: "host resources"}
	info := d.collect()

	var warnings []string
	if info.MemAvailableMB > 0 && info.MemAvailableMB < 512 {
		warnings = append(warnings, fmt.Sprintf("only %.0f MB memory available", info.MemAvailableMB))
	}
	if info.DiskTotalGB > 0 && info.DiskFreeGB < 1 {
		warnings = append(warnings, fmt.Sprintf("only %.1f GB disk free", info.DiskFreeGB))
	}
	if info.CPUThreads > 0 && info.LoadAvg1 > float64(2*info.CPUThreads) {
		warnings = append(warnings, fmt.Sprintf("load average %.1f on %d threads", info.LoadAvg1, info.CPUThreads))
	}
	if len(warnings) > 0 {
		check.Status = CheckWarn
		check.Detail = strings.Join(warnings, "; ")
		return check
	}

	detail := fmt.Sprintf("%d threads, %.0f/%.0f MB memory free, %.1f GB disk free",
		info.CPUThreads, info.MemAvailableMB, info.MemTotalMB, info.DiskFreeGB)
	if len(info.GPUs) > 0 {
		detail += ", GPU: " + strings.Join(info.GPUs, ", ")
	}
	check.Status = CheckOK
	check.Detail = detail
	return check
}

func (d *Doctor) checkRuntime() Check {
	return Check{
		Name:   "runtime",
		Status: CheckOK,
		Detail: fmt.Sprintf("%s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

func providerName(cfg config.UpstreamConfig) string {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		return "anthropic"
	}
	return provider
}

package assets

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Result partitions the required asset list into reachable and missing files.
// Both slices keep the order of the required list.
type Result struct {
	Present []string
	Missing []string
}

// Has reports whether name was found.
func (r Result) Has(name string) bool {
	for _, p := range r.Present {
		if p == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	return Result{
		Present: append([]string(nil), r.Present...),
		Missing: append([]string(nil), r.Missing...),
	}
}

// Checker issues existence probes against an asset base path
type Checker struct {
	client *http.Client
	logger *utils.Logger
}

// NewChecker creates a checker. A nil client selects the platform default.
func NewChecker(client *http.Client, logger *utils.Logger) *Checker {
	if client == nil {
		client = NewClient()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Checker{client: client, logger: logger}
}

// Check probes every required asset concurrently and returns once all probes
// have settled. Probe failures are reported as missing, never as errors.
func (c *Checker) Check(ctx context.Context, basePath string, required []string) Result {
	names := dedupe(required)
	base := ResolveBase(basePath)
	found := make([]bool, len(names))

	start := time.Now()
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			found[i] = c.exists(ctx, AssetURL(base, name))
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Present: []string{}, Missing: []string{}}
	for i, name := range names {
		if found[i] {
			res.Present = append(res.Present, name)
		} else {
			res.Missing = append(res.Missing, name)
		}
	}

	c.logger.Info("Asset check complete",
		utils.String("base", base),
		utils.Int("present", len(res.Present)),
		utils.Int("missing", len(res.Missing)),
		utils.Duration("elapsed", time.Since(start)),
	)
	if len(res.Missing) > 0 {
		c.logger.Warn("Runtime assets missing", utils.Strings("files", res.Missing))
	}
	return res
}

func (c *Checker) exists(ctx context.Context, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		c.logger.Debug("Asset probe rejected", utils.String("url", target), utils.Err(err))
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Asset probe failed", utils.String("url", target), utils.Err(err))
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.logger.Debug("Asset probe", utils.String("url", target), utils.Int("status", resp.StatusCode))
	return ok
}

// AssetURL joins a base path and an asset file name.
func AssetURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}

package launch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/continuity/internal/health"
	"github.com/danielpatrickdp/continuity/internal/logging"
)

// #region types

// Status is the outcome of one launch.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED" // non-zero exit
	StatusError   Status = "ERROR"  // could not run, or timed out
)

// Result is one service's launch record.
type Result struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Command   string    `json:"command"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Health is the validation verdict for one descriptor.
type Health string

const (
	HealthOperational Health = "OPERATIONAL"
	HealthDegraded    Health = "DEGRADED"
	HealthUnchecked   Health = "UNCHECKED"
)

// Validation is one descriptor's probe result.
type Validation struct {
	Name   string        `json:"name"`
	Health Health        `json:"health"`
	Probe  health.Status `json:"probe,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Timeout      time.Duration // per launch; zero means DefaultTimeout
	Parallelism  int           // remainder launches in flight; <1 means 1
	ProbeTimeout time.Duration
	Logger       *zap.Logger
}

const (
	DefaultTimeout      = 60 * time.Second
	DefaultProbeTimeout = 5 * time.Second
	waitDelay           = 2 * time.Second
)

// #endregion types

// #region coordinator

// Coordinator runs launches. It keeps no state between calls.
type Coordinator struct {
	timeout      time.Duration
	parallelism  int
	probeTimeout time.Duration
	log          *zap.Logger
}

// NewCoordinator applies defaults to opts.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		timeout:      opts.Timeout,
		parallelism:  opts.Parallelism,
		probeTimeout: opts.ProbeTimeout,
		log:          logging.OrNop(opts.Logger).Named("launch"),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.parallelism < 1 {
		c.parallelism = 1
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	return c
}

// DeployAll launches every priority name present in descs one at a time,
// each fully awaited, then the remaining names in sorted order with up to
// Parallelism in flight. One service's failure never stops the others.
func (c *Coordinator) DeployAll(ctx context.Context, descs map[string]Descriptor, priority []string) map[string]Result {
	results := make(map[string]Result, len(descs))
	done := make(map[string]bool, len(priority))

	for _, name := range priority {
		d, ok := descs[name]
		if !ok {
			c.log.Warn("priority service not described", zap.String("service", name))
			continue
		}
		if done[name] {
			continue
		}
		done[name] = true
		results[name] = c.launch(ctx, name, d)
	}

	rest := make([]string, 0, len(descs))
	for name := range descs {
		if !done[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)
	for _, name := range rest {
		d := descs[name]
		g.Go(func() error {
			r := c.launch(ctx, name, d)
			mu.Lock()
			results[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// PriorityReady reports whether every priority name launched successfully.
func PriorityReady(results map[string]Result, priority []string) bool {
	for _, name := range priority {
		if r, ok := results[name]; !ok || r.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// #endregion coordinator

// #region launch

func (c *Coordinator) launch(ctx context.Context, name string, d Descriptor) Result {
	res := Result{Name: name, Command: d.Command, StartedAt: time.Now()}
	finish := func(status Status, output, errMsg string) Result {
		res.Status = status
		res.Output = output
		res.Error = errMsg
		res.Timestamp = time.Now()
		fields := []zap.Field{zap.String("service", name), zap.String("status", string(status))}
		if status == StatusSuccess {
			c.log.Info("service launched", fields...)
		} else {
			c.log.Warn("service launch failed", append(fields, zap.String("error", errMsg))...)
		}
		return res
	}

	if d.Command == "" {
		return finish(StatusError, "", "empty command")
	}

	lctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(lctx, d.Command, d.Args...)
	cmd.Env = append(os.Environ(), envPairs(d.Env)...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && lctx.Err() != nil {
		if errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return finish(StatusError, stdout.String(), fmt.Sprintf("timed out after %s", c.timeout))
		}
		return finish(StatusError, stdout.String(), lctx.Err().Error())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return finish(StatusSuccess, stdout.String(), "")
	case errors.As(err, &exitErr):
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = exitErr.Error()
		}
		return finish(StatusFailed, stdout.String(), msg)
	default:
		return finish(StatusError, "", err.Error())
	}
}

// #endregion launch

// #region validate

// Validate probes every descriptor that declares a HealthAddr. Descriptors
// without one are UNCHECKED.
func (c *Coordinator) Validate(ctx context.Context, descs map[string]Descriptor) map[string]Validation {
	out := make(map[string]Validation, len(descs))
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)

	for name, d := range descs {
		g.Go(func() error {
			v := c.probe(ctx, name, d)
			mu.Lock()
			out[name] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Coordinator) probe(ctx context.Context, name string, d Descriptor) Validation {
	v := Validation{Name: name, Health: HealthUnchecked}
	if d.HealthAddr == "" {
		return v
	}
	pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	status, err := health.Probe(pctx, d.HealthAddr, d.HealthService)
	v.Probe = status
	if err != nil {
		v.Health = HealthDegraded
		v.Error = err.Error()
	} else if status == health.StatusServing {
		v.Health = HealthOperational
	} else {
		v.Health = HealthDegraded
	}
	c.log.Debug("service probed", zap.String("service", name), zap.String("health", string(v.Health)))
	return v
}

// #endregion validate

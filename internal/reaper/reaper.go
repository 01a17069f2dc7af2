// Package reaper implements the periodic sweep that reclaims containers
// past their time-to-live, in a terminal state, unreachable, or idle past
// a configured threshold.
package reaper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/codespacesh/workshop-hub/internal/audit"
	"github.com/codespacesh/workshop-hub/internal/platform"
)

// Config holds the reaper's tunable parameters.
type Config struct {
	WorkshopName        string
	Namespace           string
	IdleThresholdSeconds int64
	SweepInterval       time.Duration
	HealthProbeTimeout  time.Duration
}

// Reaper periodically sweeps managed pods and deletes the ones that have
// expired, failed, gone unreachable, or sat idle too long.
type Reaper struct {
	platform  platform.Platform
	cfg       Config
	client    *http.Client
	now       func() time.Time
	healthURL func(pod *corev1.Pod) string
	auditLog  *audit.Log
}

// New creates a Reaper over the given platform client. auditLog may be nil,
// in which case lifecycle events are simply not recorded.
func New(p platform.Platform, cfg Config, auditLog *audit.Log) *Reaper {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 300 * time.Second
	}
	if cfg.HealthProbeTimeout == 0 {
		cfg.HealthProbeTimeout = 5 * time.Second
	}
	r := &Reaper{
		platform: p,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.HealthProbeTimeout},
		now:      time.Now,
		auditLog: auditLog,
	}
	r.healthURL = func(pod *corev1.Pod) string {
		return fmt.Sprintf("http://%s.%s.svc.cluster.local:8080/health", pod.Name, r.cfg.Namespace)
	}
	return r
}

// Run blocks, sweeping on cfg.SweepInterval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every managed pod, condemning and deleting the
// ones that fail the ordered TTL → phase → health → idle checks. A single
// pod's error never aborts the sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	selector := platform.ManagedSelector(r.cfg.WorkshopName, "")
	pods, err := r.platform.ListPods(ctx, r.cfg.Namespace, selector)
	if err != nil {
		slog.Error("reaper: listing managed pods failed", "err", err)
		return
	}

	for i := range pods {
		pod := &pods[i]
		if !platform.HasManagedLabels(pod.Labels) {
			// Safety invariant: never touch a workload missing all three
			// managed labels, even if it matched the selector somehow.
			continue
		}
		reason, condemn := r.condemn(ctx, pod)
		if !condemn {
			continue
		}
		slog.Info("reaper: deleting pod", "pod", pod.Name, "reason", reason)
		r.record(ctx, pod.Name, pod.Labels[platform.LabelUserID], reason)
		if err := r.platform.DeletePod(ctx, r.cfg.Namespace, pod.Name); err != nil {
			slog.Error("reaper: delete failed", "pod", pod.Name, "err", err)
		}
	}
}

// record writes the condemned pod's reason to the audit log before it is
// deleted, if an audit log is configured. A failure to record is logged but
// never blocks the deletion.
func (r *Reaper) record(ctx context.Context, podName, userID, reason string) {
	if r.auditLog == nil {
		return
	}
	if err := r.auditLog.Record(ctx, audit.Event{
		PodName: podName,
		UserID:  userID,
		Event:   "deleted",
		Reason:  reason,
		At:      r.now(),
	}); err != nil {
		slog.Error("reaper: recording audit event failed", "pod", podName, "err", err)
	}
}

// condemn runs the ordered checks and returns the first reason that fires,
// so expensive network probes are skipped once a cheaper local check
// already condemns the pod.
func (r *Reaper) condemn(ctx context.Context, pod *corev1.Pod) (string, bool) {
	if r.ttlExpired(pod) {
		return "ttl_expired", true
	}
	if pod.Status.Phase != corev1.PodRunning {
		return "not_running", true
	}

	health, err := r.fetchHealth(ctx, pod)
	if err != nil {
		return "unhealthy", true
	}
	if health.IdleSeconds > r.cfg.IdleThresholdSeconds {
		return "idle", true
	}
	return "", false
}

func (r *Reaper) ttlExpired(pod *corev1.Pod) bool {
	raw, ok := pod.Annotations[platform.AnnotationTTL]
	if !ok {
		return false
	}
	deadline, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return r.now().Unix() > deadline
}

type healthDoc struct {
	Status                string `json:"status"`
	LastActivityTimestamp int64  `json:"last_activity_timestamp"`
	IdleSeconds           int64  `json:"idle_seconds"`
}

func (r *Reaper) fetchHealth(ctx context.Context, pod *corev1.Pod) (*healthDoc, error) {
	url := r.healthURL(pod)
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.HealthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}

	var doc healthDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &doc, nil
}


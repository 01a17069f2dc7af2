// Package orchestrator implements the get-or-create engine that maps a
// user_id to a running workshop container and a stable network endpoint.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/codespacesh/workshop-hub/internal/audit"
	"github.com/codespacesh/workshop-hub/internal/platform"
)

// Errors returned by Resolve, matching spec.md §4.1's contract:
// resolve(user_id) → binding | PodLimitReached | NotReady | PlatformError.
var (
	ErrPodLimitReached = errors.New("pod limit reached")
	ErrNotReady        = errors.New("pod did not become ready in time")
)

// Binding resolves a user to a network endpoint.
type Binding struct {
	PodName        string
	ServiceName    string
	ClusterDNSName string
}

// Config holds the orchestrator's tunable parameters, sourced from the
// HUB_ environment (see internal/config).
type Config struct {
	WorkshopName  string
	Namespace     string
	TTLSeconds    int
	WorkshopImage string
	WorkshopPort  int32
	SidecarImage  string
	PodLimit      int
	CPURequest    string
	CPULimit      string
	MemRequest    string
	MemLimit      string

	ReadinessTimeout time.Duration
}

// Orchestrator implements the spec.md §4.1 resolve algorithm.
type Orchestrator struct {
	platform platform.Platform
	cfg      Config
	now      func() time.Time
	auditLog *audit.Log
}

// New creates an Orchestrator over the given platform client. auditLog may
// be nil, in which case lifecycle events are simply not recorded.
func New(p platform.Platform, cfg Config, auditLog *audit.Log) *Orchestrator {
	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = 180 * time.Second
	}
	return &Orchestrator{platform: p, cfg: cfg, now: time.Now, auditLog: auditLog}
}

// record writes a lifecycle event to the audit log, if one is configured.
// A failure to record is logged but never fails the caller's operation.
func (o *Orchestrator) record(ctx context.Context, podName, userID, event, reason string) {
	if o.auditLog == nil {
		return
	}
	if err := o.auditLog.Record(ctx, audit.Event{
		PodName: podName,
		UserID:  userID,
		Event:   event,
		Reason:  reason,
		At:      o.now(),
	}); err != nil {
		slog.Error("orchestrator: recording audit event failed", "pod", podName, "err", err)
	}
}

// podName derives a pod name deterministically from the user_id alone. This
// is the resolution the spec's §4.1/§9 open question leaves to the
// implementer: deterministic naming plus the platform's name-conflict error
// as a create-if-absent mutex, rather than accepting transient duplicate
// pods.
func podName(userID string) string {
	return "workshop-" + userID
}

// Profile overrides the image/port a new pod is created with. A zero-value
// Profile means "use the orchestrator's configured defaults". An existing
// pod's image is never changed by a later Resolve call with a different
// profile — profile selection only affects pod creation.
type Profile struct {
	Image string
	Port  int32
}

// Resolve returns the binding for a user's container, creating it if
// necessary. See spec.md §4.1 for the full algorithm.
func (o *Orchestrator) Resolve(ctx context.Context, userID string) (*Binding, error) {
	return o.ResolveWithProfile(ctx, userID, Profile{})
}

// ResolveWithProfile is Resolve, but a non-zero Profile selects the
// image/port a newly created pod uses instead of the orchestrator's
// configured default (spec.md §6's workshop profile catalog).
func (o *Orchestrator) ResolveWithProfile(ctx context.Context, userID string, profile Profile) (*Binding, error) {
	pod, err := o.findExisting(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("finding existing pod: %w", err)
	}
	if pod != nil {
		return bindingFor(pod, o.cfg.Namespace), nil
	}

	count, err := o.countManaged(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting managed pods: %w", err)
	}
	if count >= o.cfg.PodLimit {
		return nil, ErrPodLimitReached
	}

	image := o.cfg.WorkshopImage
	port := o.cfg.WorkshopPort
	if profile.Image != "" {
		image = profile.Image
	}
	if profile.Port != 0 {
		port = profile.Port
	}

	pod, err = o.createPod(ctx, userID, image, port)
	if err != nil {
		if platform.IsAlreadyExists(err) {
			// A concurrent resolve won the race; re-query instead of
			// treating the conflict as a platform failure.
			existing, findErr := o.platform.GetPod(ctx, o.cfg.Namespace, podName(userID))
			if findErr != nil {
				return nil, fmt.Errorf("re-fetching pod after conflict: %w", findErr)
			}
			pod = existing
		} else {
			return nil, fmt.Errorf("creating pod: %w", err)
		}
	} else {
		if err := o.createService(ctx, pod, userID); err != nil {
			return nil, fmt.Errorf("creating service: %w", err)
		}
	}

	ready, err := o.platform.AwaitRunning(ctx, o.cfg.Namespace, pod.Name, o.cfg.ReadinessTimeout)
	if err != nil {
		slog.Warn("pod did not become ready, rolling back", "pod", pod.Name, "err", err)
		if delErr := o.platform.DeletePod(ctx, o.cfg.Namespace, pod.Name); delErr != nil {
			slog.Error("rollback delete failed", "pod", pod.Name, "err", delErr)
		}
		o.record(ctx, pod.Name, userID, "rollback", err.Error())
		return nil, ErrNotReady
	}

	return bindingFor(ready, o.cfg.Namespace), nil
}

func (o *Orchestrator) findExisting(ctx context.Context, userID string) (*corev1.Pod, error) {
	selector := platform.ManagedSelector(o.cfg.WorkshopName, userID)
	pods, err := o.platform.ListPods(ctx, o.cfg.Namespace, selector)
	if err != nil {
		return nil, err
	}
	if len(pods) == 0 {
		return nil, nil
	}
	// Invariant: at most one should exist per user. If the relaxed
	// tie-break (spec.md §4.1) has produced transient duplicates, the first
	// match is used; the reaper's idle/readiness checks collapse the rest.
	return &pods[0], nil
}

func (o *Orchestrator) countManaged(ctx context.Context) (int, error) {
	selector := platform.ManagedSelector(o.cfg.WorkshopName, "")
	pods, err := o.platform.ListPods(ctx, o.cfg.Namespace, selector)
	if err != nil {
		return 0, err
	}
	return len(pods), nil
}

func (o *Orchestrator) createPod(ctx context.Context, userID, image string, port int32) (*corev1.Pod, error) {
	name := podName(userID)
	ttl := o.now().Add(time.Duration(o.cfg.TTLSeconds) * time.Second).Unix()

	pod := platform.BuildPod(platform.PodSpecInput{
		Name:          name,
		Namespace:     o.cfg.Namespace,
		WorkshopName:  o.cfg.WorkshopName,
		UserID:        userID,
		TTLExpiresAt:  ttl,
		WorkshopImage: image,
		WorkshopPort:  port,
		SidecarImage:  o.cfg.SidecarImage,
		CPURequest:    o.cfg.CPURequest,
		CPULimit:      o.cfg.CPULimit,
		MemRequest:    o.cfg.MemRequest,
		MemLimit:      o.cfg.MemLimit,
		TargetTCPAddr: fmt.Sprintf("127.0.0.1:%d", port),
	})

	created, err := o.platform.CreatePod(ctx, o.cfg.Namespace, pod)
	if err != nil {
		return nil, err
	}
	slog.Info("created workshop pod", "pod", created.Name, "user_id", userID)
	o.record(ctx, created.Name, userID, "created", "")
	return created, nil
}

func (o *Orchestrator) createService(ctx context.Context, pod *corev1.Pod, userID string) error {
	svc := platform.BuildService(pod, o.cfg.WorkshopName, userID)
	_, err := o.platform.CreateService(ctx, o.cfg.Namespace, svc)
	if err != nil && platform.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func bindingFor(pod *corev1.Pod, namespace string) *Binding {
	return &Binding{
		PodName:        pod.Name,
		ServiceName:    pod.Name,
		ClusterDNSName: fmt.Sprintf("%s.%s.svc.cluster.local", pod.Name, namespace),
	}
}

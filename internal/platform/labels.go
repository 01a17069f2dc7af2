package platform

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Managed-resource label keys. The first three are the managed labels. The
// orchestrator's "find existing" query selects on all three; the capacity
// count and the reaper's sweep select on managed-by and workshop-name, so
// they match every user's pods (see ManagedSelector).
const (
	LabelManagedBy   = "managed-by"
	LabelWorkshop    = "workshop-name"
	LabelUserID      = "user-id"
	LabelApp         = "app"
	ManagedByValue   = "workshop-hub"
	AnnotationTTL    = "ttl-expires-at"
)

// ManagedLabels returns the three labels every orchestrator-created pod and
// service must carry.
func ManagedLabels(workshopName, userID string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelWorkshop:  workshopName,
		LabelUserID:    userID,
	}
}

// ManagedSelector builds the label selector for every managed resource of a
// given workshop, optionally narrowed to a single user.
func ManagedSelector(workshopName, userID string) string {
	sel := metav1.LabelSelector{
		MatchLabels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelWorkshop:  workshopName,
		},
	}
	if userID != "" {
		sel.MatchLabels[LabelUserID] = userID
	}
	selector, _ := metav1.LabelSelectorAsSelector(&sel)
	return selector.String()
}

// HasManagedLabels reports whether a label set carries all three managed
// labels — the reaper's safety invariant: unmanaged workloads are never
// touched.
func HasManagedLabels(labels map[string]string) bool {
	if labels == nil {
		return false
	}
	_, hasManagedBy := labels[LabelManagedBy]
	_, hasWorkshop := labels[LabelWorkshop]
	_, hasUserID := labels[LabelUserID]
	return hasManagedBy && hasWorkshop && hasUserID
}

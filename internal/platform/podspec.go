package platform

import (
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	SidecarProxyPort  = 8888
	SidecarHealthPort = 8080
)

// PodSpecInput carries everything needed to build a managed workshop pod.
type PodSpecInput struct {
	Name          string
	Namespace     string
	WorkshopName  string
	UserID        string
	TTLExpiresAt  int64 // unix seconds
	WorkshopImage string
	WorkshopPort  int32
	SidecarImage  string
	CPURequest    string
	CPULimit      string
	MemRequest    string
	MemLimit      string
	TargetTCPAddr string // sidecar's upstream, e.g. "127.0.0.1:80"
}

// BuildPod constructs the two-container pod spec: the user's workshop image
// plus the co-located activity sidecar.
func BuildPod(in PodSpecInput) *corev1.Pod {
	labels := ManagedLabels(in.WorkshopName, in.UserID)
	labels[LabelApp] = in.Name

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      in.Name,
			Namespace: in.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				AnnotationTTL: formatUnix(in.TTLExpiresAt),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "workshop",
					Image: in.WorkshopImage,
					Ports: []corev1.ContainerPort{
						{Name: "workshop", ContainerPort: in.WorkshopPort, Protocol: corev1.ProtocolTCP},
					},
					Resources: resourceRequirements(in),
				},
				{
					Name:  "sidecar",
					Image: in.SidecarImage,
					Ports: []corev1.ContainerPort{
						{Name: "proxy", ContainerPort: SidecarProxyPort, Protocol: corev1.ProtocolTCP},
						{Name: "health", ContainerPort: SidecarHealthPort, Protocol: corev1.ProtocolTCP},
					},
					Env: []corev1.EnvVar{
						{Name: "SIDECAR_HTTP_LISTEN", Value: ":8080"},
						{Name: "SIDECAR_TCP_LISTEN", Value: ":8888"},
						{Name: "SIDECAR_TARGET_TCP", Value: in.TargetTCPAddr},
					},
				},
			},
		},
	}
}

func resourceRequirements(in PodSpecInput) corev1.ResourceRequirements {
	req := corev1.ResourceList{}
	lim := corev1.ResourceList{}
	if q, err := resource.ParseQuantity(in.CPURequest); err == nil {
		req[corev1.ResourceCPU] = q
	}
	if q, err := resource.ParseQuantity(in.MemRequest); err == nil {
		req[corev1.ResourceMemory] = q
	}
	if q, err := resource.ParseQuantity(in.CPULimit); err == nil {
		lim[corev1.ResourceCPU] = q
	}
	if q, err := resource.ParseQuantity(in.MemLimit); err == nil {
		lim[corev1.ResourceMemory] = q
	}
	return corev1.ResourceRequirements{Requests: req, Limits: lim}
}

// BuildService constructs the pod's service, owned by the pod so that
// platform-level cascade deletion removes the service when the pod is
// deleted.
func BuildService(pod *corev1.Pod, workshopName, userID string) *corev1.Service {
	labels := ManagedLabels(workshopName, userID)
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
			Labels:    labels,
			OwnerReferences: []metav1.OwnerReference{
				*metav1.NewControllerRef(pod, corev1.SchemeGroupVersion.WithKind("Pod")),
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelApp: pod.Name},
			Ports: []corev1.ServicePort{
				{Name: "proxy", Port: SidecarProxyPort, TargetPort: intstr.FromInt32(SidecarProxyPort)},
				{Name: "health", Port: SidecarHealthPort, TargetPort: intstr.FromInt32(SidecarHealthPort)},
			},
		},
	}
}

func formatUnix(sec int64) string {
	return strconv.FormatInt(sec, 10)
}

package k8s

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/primaza/primazactl/internal/logging"
)

// WaitForPodRunning polls namespace until a pod whose name starts with
// prefix reaches the Running phase. It returns immediately in dry-run
// mode, where nothing was deployed.
func (a *Applier) WaitForPodRunning(ctx context.Context, namespace, prefix string, cfg PollConfig) (*corev1.Pod, error) {
	if a.run.DryRunActive() {
		a.logger.Info("dry run, not waiting for pod",
			logging.Namespace(namespace),
			logging.ResourceName(prefix+"*"),
			logging.DryRun(string(a.run.DryRun())))
		return nil, nil
	}

	what := fmt.Sprintf("pod %s* in namespace %s to be running", prefix, namespace)
	a.logger.Info("waiting for pod",
		logging.Namespace(namespace),
		logging.ResourceName(prefix+"*"))

	start := time.Now()
	var running *corev1.Pod
	err := Poll(ctx, what, cfg, func(ctx context.Context) (Observation, error) {
		pods, err := a.cluster.Clientset().CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return Observation{}, NewAPIError(ActionRead, ObjectRef{Kind: "Pod", Namespace: namespace}, err)
		}

		var last any
		for i := range pods.Items {
			pod := &pods.Items[i]
			if !strings.HasPrefix(pod.Name, prefix) {
				continue
			}
			if pod.Status.Phase == corev1.PodRunning {
				running = pod
				return Observation{Done: true, Last: podPhase(pod)}, nil
			}
			last = podPhase(pod)
		}
		return Observation{Last: last}, nil
	})

	a.metrics.RecordPollWait(ctx, "pod_running", PollStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return running, nil
}

func podPhase(pod *corev1.Pod) map[string]string {
	return map[string]string{"name": pod.Name, "phase": string(pod.Status.Phase)}
}

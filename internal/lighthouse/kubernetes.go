package lighthouse

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/ptr"
)

const (
	jobRunLabel        = "lighthouse-report/run"
	jobFormFactorLabel = "lighthouse-report/form-factor"
	jobContainerName   = "lighthouse"
)

// JobRunner runs every audit as a Kubernetes Job and reads the report from
// the pod log.
type JobRunner struct {
	client    kubernetes.Interface
	namespace string
	image     string
	opts      Options
	logger    *log.Logger
}

// NewJobRunner prefers in-cluster configuration and falls back to KUBECONFIG
// when running locally.
func NewJobRunner(namespace, img string, opts Options, logger *log.Logger) (*JobRunner, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
		if kubeconfig == "" {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("create kubeconfig client: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewJobRunnerWithClient(clientset, namespace, img, opts, logger), nil
}

// NewJobRunnerWithClient wires an existing clientset.
func NewJobRunnerWithClient(client kubernetes.Interface, namespace, img string, opts Options, logger *log.Logger) *JobRunner {
	if namespace == "" {
		namespace = "default"
	}
	if img == "" {
		img = DefaultImage
	}
	return &JobRunner{
		client:    client,
		namespace: namespace,
		image:     img,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

func (r *JobRunner) Run(ctx context.Context, req Request) error {
	runID := uuid.NewString()[:8]
	job := r.buildJob(runID, req)

	jobs := r.client.BatchV1().Jobs(r.namespace)
	created, err := jobs.Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	defer r.deleteJob(context.WithoutCancel(ctx), created.Name)

	r.logger.Debug("lighthouse job created", "job", created.Name, "url", req.URL)
	if err := r.waitForJob(ctx, created.Name); err != nil {
		return err
	}

	pod, err := r.findPod(ctx, runID)
	if err != nil {
		return err
	}
	stream, err := r.client.CoreV1().Pods(r.namespace).GetLogs(pod, &corev1.PodLogOptions{Container: jobContainerName}).Stream(ctx)
	if err != nil {
		return fmt.Errorf("stream job logs: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Errorf("read job logs: %w", err)
	}
	report, err := extractJSON(data)
	if err != nil {
		return fmt.Errorf("job %s: %w", created.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, report, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return WaitForReport(ctx, req.OutputPath, r.opts.PollInterval, r.opts.SettleTimeout)
}

func (r *JobRunner) buildJob(runID string, req Request) *batchv1.Job {
	labels := map[string]string{
		jobRunLabel:                   runID,
		jobFormFactorLabel:            string(req.Settings.FormFactor),
		"app.kubernetes.io/name":      "lighthouse-report",
		"app.kubernetes.io/component": "audit",
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("lighthouse-%s-%s", req.Settings.FormFactor, runID),
			Namespace: r.namespace,
			Labels:    labels,
			Annotations: map[string]string{
				"lighthouse-report/url": req.URL,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.To[int32](0),
			TTLSecondsAfterFinished: ptr.To[int32](300),
			ActiveDeadlineSeconds:   ptr.To(int64(r.opts.Timeout / time.Second)),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    jobContainerName,
						Image:   r.image,
						Command: []string{"lighthouse"},
						Args:    req.Settings.Args(req.URL, "stdout"),
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("512Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("2"),
								corev1.ResourceMemory: resource.MustParse("2Gi"),
							},
						},
					}},
				},
			},
		},
	}
}

func (r *JobRunner) waitForJob(ctx context.Context, name string) error {
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, r.opts.Timeout, true, func(ctx context.Context) (bool, error) {
		job, err := r.client.BatchV1().Jobs(r.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		if job.Status.Succeeded > 0 {
			return true, nil
		}
		if job.Status.Failed > 0 {
			return false, fmt.Errorf("lighthouse job %s failed: %s", name, jobFailureMessage(job))
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	return nil
}

func (r *JobRunner) findPod(ctx context.Context, runID string) (string, error) {
	pods, err := r.client.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", jobRunLabel, runID),
	})
	if err != nil {
		return "", fmt.Errorf("list job pods: %w", err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodSucceeded {
			return pod.Name, nil
		}
	}
	if len(pods.Items) > 0 {
		return pods.Items[0].Name, nil
	}
	return "", fmt.Errorf("job pod not found for run %s", runID)
}

func (r *JobRunner) deleteJob(ctx context.Context, name string) {
	policy := metav1.DeletePropagationBackground
	err := r.client.BatchV1().Jobs(r.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !errors.IsNotFound(err) {
		r.logger.Warn("failed to delete lighthouse job", "job", name, "error", err)
	}
}

func jobFailureMessage(job *batchv1.Job) string {
	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
			if cond.Message != "" {
				return cond.Message
			}
			return cond.Reason
		}
	}
	return "unknown reason"
}

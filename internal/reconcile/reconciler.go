// Package reconcile converges running containers toward the desired map,
// and coordinates when reconciliation runs.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/store"
)

// gatewayClient is the subset of *gateway.Client the reconciler needs,
// kept as an interface so reconcile logic can be exercised against a fake.
type gatewayClient interface {
	ListByLabel(podLabel string) ([]model.ContainerSummary, error)
	Create(name, image string, ports []uint16, molName, podLabel string) error
	Stop(name string) error
	Remove(name string) error
}

// Reconciler drives running containers toward the desired map using a
// gateway client, one goroutine per pod per pass.
type Reconciler struct {
	kv      *store.Store
	gateway gatewayClient
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New builds a Reconciler reporting pass duration and create/remove counts
// to m. m may be nil, in which case no metrics are recorded.
func New(kv *store.Store, gw gatewayClient, log *logrus.Entry, m *metrics.Metrics) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{kv: kv, gateway: gw, log: log, metrics: m}
}

// Reconcile runs one convergence pass. A missing desired map is treated as
// an idle node, not an error. Per-pod failures are logged and do not fail
// the pass as a whole.
func (r *Reconciler) Reconcile() error {
	if r.metrics != nil {
		start := time.Now()
		defer func() { r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()
	}

	raw, err := r.kv.GetDesired("desired")
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}

	var desired model.DesiredMap
	if err := json.Unmarshal(raw, &desired); err != nil {
		return model.WrapOp("reconcile.Reconcile", "", model.ErrDecode, err)
	}

	pods := desiredPods(desired)

	var wg sync.WaitGroup
	for _, pod := range pods {
		wg.Add(1)
		go func(p model.PodSpec) {
			defer wg.Done()
			r.reconcilePod(p)
		}(pod)
	}
	wg.Wait()

	return nil
}

// desiredPods flattens desired into pod specs, iterating molecules in key
// order so reconciliation passes are deterministic regardless of Go's
// randomized map iteration.
func desiredPods(desired model.DesiredMap) []model.PodSpec {
	names := make([]string, 0, len(desired))
	for molName := range desired {
		names = append(names, molName)
	}
	sort.Strings(names)

	var pods []model.PodSpec
	for _, molName := range names {
		for _, inst := range desired[molName] {
			if inst.Kind != "pod" {
				continue
			}
			var fields model.PodFields
			if err := json.Unmarshal(inst.Fields, &fields); err != nil {
				continue
			}
			pods = append(pods, model.PodSpec{
				MolName:  molName,
				Name:     inst.Name,
				Image:    fields.Image,
				Replicas: fields.Replicas,
				Ports:    fields.Ports,
			})
		}
	}
	return pods
}

func (r *Reconciler) reconcilePod(pod model.PodSpec) {
	podLabel := fmt.Sprintf("%s:%s", pod.MolName, pod.Name)
	log := r.log.WithField("pod", podLabel)

	running, err := r.gateway.ListByLabel(podLabel)
	if err != nil {
		log.WithError(err).Warn("failed to list running containers for pod")
		return
	}

	prefix := fmt.Sprintf("%s-%s-", pod.MolName, pod.Name)
	var matches []model.ContainerSummary
	for _, c := range running {
		for _, n := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(n, "/"), prefix) {
				matches = append(matches, c)
				break
			}
		}
	}

	need := pod.Replicas - len(matches)
	if need > 0 {
		for i := 0; i < need; i++ {
			name := fmt.Sprintf("%s-%s-%d", pod.MolName, pod.Name, time.Now().UnixNano())
			if err := r.gateway.Create(name, pod.Image, pod.Ports, pod.MolName, podLabel); err != nil {
				log.WithError(err).Warn("failed to create container")
				continue
			}
			if r.metrics != nil {
				r.metrics.ReconcileCreatesTotal.Inc()
			}
		}
		return
	}

	if need < 0 {
		toRemove := matches[:-need]
		for _, c := range toRemove {
			if err := r.gateway.Stop(c.ID); err != nil {
				log.WithError(err).Warn("failed to stop container")
			}
			if err := r.gateway.Remove(c.ID); err != nil {
				log.WithError(err).Warn("failed to remove container")
				continue
			}
			if r.metrics != nil {
				r.metrics.ReconcileRemovesTotal.Inc()
			}
		}
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"worktally/internal/config"
	"worktally/internal/engine"
	"worktally/internal/store"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	webhookQueueDepth     = 256
)

// snapshotDispatcher pushes the full project snapshot to registered URLs
// after every committed change. Delivery is best-effort and carries no
// ordering guarantee; receivers reconcile by the version header.
type snapshotDispatcher struct {
	hooks  []config.WebhookConfig
	client *http.Client
	queue  chan store.Snapshot
	done   chan struct{}
}

// StartSnapshotWebhooks subscribes the dispatcher to every project in the
// store. The returned handle's Cancel is idempotent: it unsubscribes and
// stops the delivery goroutine.
func StartSnapshotWebhooks(e engine.Engine, hooks []config.WebhookConfig) *store.Subscription {
	if len(hooks) == 0 {
		return store.NewSubscription(nil)
	}
	d := &snapshotDispatcher{
		hooks:  hooks,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		queue:  make(chan store.Snapshot, webhookQueueDepth),
		done:   make(chan struct{}),
	}
	sub := e.Store.Subscribe(store.SubscribeAll, d.enqueue)
	go d.run()
	// a notify goroutine may still hold enqueue after the unsubscribe,
	// so the queue is never closed; done unblocks both sides
	return store.NewSubscription(func() {
		sub.Cancel()
		close(d.done)
	})
}

func (d *snapshotDispatcher) enqueue(snap store.Snapshot) {
	select {
	case <-d.done:
	case d.queue <- snap:
	default:
		log.Printf("webhook: queue full, dropping snapshot %s@%d", snap.Project.ID, snap.Version)
	}
}

func (d *snapshotDispatcher) run() {
	for {
		var snap store.Snapshot
		select {
		case <-d.done:
			return
		case snap = <-d.queue:
		}
		for _, hook := range d.hooks {
			if hook.Enabled != nil && !*hook.Enabled {
				continue
			}
			if !hookMatches(hook, snap.Project.ID) {
				continue
			}
			if err := d.post(hook, snap); err != nil {
				log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
			}
		}
	}
}

func hookMatches(hook config.WebhookConfig, projectID string) bool {
	if len(hook.Projects) == 0 {
		return true
	}
	for _, id := range hook.Projects {
		if id == projectID {
			return true
		}
	}
	return false
}

func (d *snapshotDispatcher) post(hook config.WebhookConfig, snap store.Snapshot) error {
	body := struct {
		Version int64           `json:"version"`
		Totals  engine.Totals   `json:"totals"`
		Project ProjectResponse `json:"project"`
	}{
		Version: snap.Version,
		Totals:  engine.Aggregate(snap.Project.Tasks),
		Project: projectResponse(snap),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worktally-Project", snap.Project.ID)
	req.Header.Set("X-Worktally-Version", fmt.Sprintf("%d", snap.Version))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Worktally-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

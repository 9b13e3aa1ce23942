package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/conuredb/bpt/pkg/logger"
)

type joinRequest struct {
	ID       string `json:"ID"`
	RaftAddr string `json:"RaftAddr"`
}

type leaderHintResp struct {
	Leader string `json:"leader"`
}

func parseSeeds() []string {
	if v := os.Getenv("BPT_SEEDS"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"http://127.0.0.1:8081"}
}

type joiner struct {
	nodeID   string
	raftAddr string
	seeds    []string
	client   *http.Client
	log      logger.Logger
	// maxRounds of zero retries until the context ends.
	maxRounds int
	backoff   time.Duration
}

// run posts join requests to every seed, following leader hints, until one
// is accepted. Backoff grows by half each round up to 30s.
func (j *joiner) run(ctx context.Context) error {
	backoff := j.backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	j.log.Info("starting cluster join", "node_id", j.nodeID, "seeds", strings.Join(j.seeds, ","))

	for round := 1; ; round++ {
		for _, seed := range j.seeds {
			if !j.seedHealthy(ctx, seed) {
				j.log.Debug("seed not healthy", "seed", seed)
				continue
			}
			u, err := url.Parse(seed)
			if err != nil {
				j.log.Warn("invalid seed url", "seed", seed, "error", err)
				continue
			}
			u.Path = "/join"

			status, hint, err := j.post(ctx, u.String())
			if err != nil {
				j.log.Warn("join request failed", "seed", seed, "error", err)
				continue
			}
			switch status {
			case http.StatusOK:
				j.log.Info("joined cluster", "via", seed)
				return nil
			case http.StatusConflict:
				if hint == "" {
					continue
				}
				j.log.Info("following leader hint", "leader", hint)
				if status, _, err := j.post(ctx, fmt.Sprintf("http://%s/join", hint)); err == nil && status == http.StatusOK {
					j.log.Info("joined cluster", "via", hint)
					return nil
				}
			default:
				j.log.Warn("unexpected join response", "seed", seed, "status", status)
			}
		}

		if j.maxRounds > 0 && round >= j.maxRounds {
			return fmt.Errorf("join: gave up after %d rounds", round)
		}
		j.log.Info("join round failed, retrying", "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = backoff * 3 / 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (j *joiner) post(ctx context.Context, target string) (int, string, error) {
	body, err := json.Marshal(joinRequest{ID: j.nodeID, RaftAddr: j.raftAddr})
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var h leaderHintResp
	if resp.StatusCode == http.StatusConflict {
		_ = json.NewDecoder(resp.Body).Decode(&h)
	}
	return resp.StatusCode, h.Leader, nil
}

// seedHealthy checks if a seed is responding to status requests
func (j *joiner) seedHealthy(ctx context.Context, seed string) bool {
	u, err := url.Parse(seed)
	if err != nil {
		return false
	}
	u.Path = "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

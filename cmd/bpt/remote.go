package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/conuredb/bpt/db"
)

type leaderHint struct {
	Leader string `json:"leader"`
}

// RemoteClient talks to the HTTP API and follows leader redirects.
type RemoteClient struct {
	HTTP *http.Client
	Base *url.URL
}

func (rc *RemoteClient) do(method, path string, q url.Values, body string) (*http.Response, error) {
	u := *rc.Base
	u.Path = path
	u.RawQuery = q.Encode()
	req, err := http.NewRequest(method, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return rc.HTTP.Do(req)
}

// withLeader points the client at the leader. The hint is a raft address, so
// only its host is used and the HTTP port of the current base is kept.
func (rc *RemoteClient) withLeader(h leaderHint) {
	if h.Leader == "" {
		return
	}
	leaderHost := h.Leader
	if h, _, ok := strings.Cut(leaderHost, ":"); ok {
		leaderHost = h
	}
	port := rc.Base.Port()
	if port == "" {
		port = "8081"
	}
	b := *rc.Base
	b.Host = leaderHost + ":" + port
	rc.Base = &b
}

// kv issues a /kv request and retries against the leader on redirects. A
// 409 carrying a JSON leader hint is a redirect; any other 409 is a
// conflict on the key itself.
func (rc *RemoteClient) kv(method, key, value string) (string, error) {
	for retries := 0; retries < 3; retries++ {
		resp, err := rc.do(method, "/kv", url.Values{"key": {key}}, value)
		if err != nil {
			return "", err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", err
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return string(body), nil
		case resp.StatusCode == http.StatusConflict && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"):
			var h leaderHint
			_ = json.Unmarshal(body, &h)
			if h.Leader == "" {
				return "", errors.New("no leader elected")
			}
			rc.withLeader(h)
			continue
		case resp.StatusCode == http.StatusConflict:
			return "", db.ErrKeyExists
		case resp.StatusCode == http.StatusNotFound:
			return "", db.ErrKeyNotFound
		}
		return "", errors.New(strings.TrimSpace(string(body)))
	}
	return "", fmt.Errorf("leader redirect loop")
}

func (rc *RemoteClient) Get(key string) (string, error) {
	return rc.kv(http.MethodGet, key, "")
}

func (rc *RemoteClient) Insert(key, value string) error {
	_, err := rc.kv(http.MethodPost, key, value)
	return err
}

func (rc *RemoteClient) Put(key, value string) error {
	_, err := rc.kv(http.MethodPut, key, value)
	return err
}

func (rc *RemoteClient) Delete(key string) error {
	_, err := rc.kv(http.MethodDelete, key, "")
	return err
}

func (rc *RemoteClient) Stats() (db.Stats, error) {
	var s db.Stats
	resp, err := rc.do(http.MethodGet, "/stats", nil, "")
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return s, errors.New(strings.TrimSpace(string(b)))
	}
	err = json.NewDecoder(resp.Body).Decode(&s)
	return s, err
}

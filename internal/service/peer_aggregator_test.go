package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"go.uber.org/zap"
)

type peerRecorder struct {
	mu           sync.Mutex
	connectivity map[string]bool
	errors       map[string]int
}

func newPeerRecorder() *peerRecorder {
	return &peerRecorder{
		connectivity: make(map[string]bool),
		errors:       make(map[string]int),
	}
}

func (r *peerRecorder) SetPeerConnectivity(url string, up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectivity[url] = up
}

func (r *peerRecorder) IncrementError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[kind]++
}

func peerServer(t *testing.T, hostname string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.HostSnapshot{
			Hostname: hostname,
			CPU:      protocol.CPUInfo{Cores: 2, UsagePercent: 10},
			Memory:   protocol.MemoryInfo{TotalBytes: 1000, UsedBytes: 400, FreeBytes: 600, AvailableBytes: 600},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAggregate(t *testing.T) {
	ok1 := peerServer(t, "web-2", nil)
	ok2 := peerServer(t, "web-3", nil)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	invalid := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"osType":"linux"}`))
	}))
	t.Cleanup(invalid.Close)

	peers := []config.PeerTarget{
		{URL: failing.URL},
		{URL: ok1.URL},
		{URL: slow.URL},
		{URL: invalid.URL},
		{URL: ok2.URL},
		{URL: "http://127.0.0.1:1/local-metrics"},
	}

	rec := newPeerRecorder()
	a := NewPeerAggregator(zap.NewNop(), rec)
	local := protocol.HostSnapshot{Hostname: "web-1"}

	start := time.Now()
	view := a.Aggregate(context.Background(), local, peers, 200*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("对端请求应并发执行，耗时 %s", elapsed)
	}

	if len(view) != 3 {
		t.Fatalf("应返回 1 + 2 个快照，实际 %d", len(view))
	}
	want := []string{"web-1", "web-2", "web-3"}
	for i, name := range want {
		if view[i].Hostname != name {
			t.Errorf("第 %d 项应为 %s，实际 %s", i, name, view[i].Hostname)
		}
	}

	for _, p := range peers {
		up, recorded := rec.connectivity[p.URL]
		if !recorded {
			t.Errorf("%s 未记录连通状态", p.URL)
			continue
		}
		wantUp := p.URL == ok1.URL || p.URL == ok2.URL
		if up != wantUp {
			t.Errorf("%s 连通状态应为 %v，实际 %v", p.URL, wantUp, up)
		}
	}
	if rec.errors[metric.ErrorKindRemoteServer] != 4 {
		t.Errorf("remote_server 错误应为 4，实际 %d", rec.errors[metric.ErrorKindRemoteServer])
	}
}

func TestAggregateNoPeers(t *testing.T) {
	a := NewPeerAggregator(zap.NewNop(), newPeerRecorder())
	view := a.Aggregate(context.Background(), protocol.HostSnapshot{Hostname: "web-1"}, nil, time.Second)
	if len(view) != 1 || view[0].Hostname != "web-1" {
		t.Errorf("没有对端时只返回本机: %+v", view)
	}
}

func TestAggregateAllPeersDown(t *testing.T) {
	rec := newPeerRecorder()
	a := NewPeerAggregator(zap.NewNop(), rec)
	peers := []config.PeerTarget{
		{URL: "http://127.0.0.1:1/local-metrics"},
		{URL: "http://127.0.0.1:2/local-metrics"},
	}

	view := a.Aggregate(context.Background(), protocol.HostSnapshot{Hostname: "web-1"}, peers, 100*time.Millisecond)
	if len(view) != 1 || view[0].Hostname != "web-1" {
		t.Errorf("所有对端失败时仍应返回本机: %+v", view)
	}
}

func TestAsHostIssuesNoPeerCalls(t *testing.T) {
	var hits atomic.Int32
	peer := peerServer(t, "web-2", &hits)

	a := NewPeerAggregator(zap.NewNop(), newPeerRecorder())
	view := a.AsHost(protocol.HostSnapshot{Hostname: "web-1"}, "load-balancer")

	if len(view) != 1 {
		t.Fatalf("应只返回 1 项，实际 %d", len(view))
	}
	if view[0].Hostname != "load-balancer" {
		t.Errorf("主机名应被替换，实际 %s", view[0].Hostname)
	}
	if hits.Load() != 0 {
		t.Errorf("不应请求对端 %s，实际请求 %d 次", peer.URL, hits.Load())
	}
}

func TestAggregateRejectsIncompletePayload(t *testing.T) {
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hostname":"web-2","cpuInfo":{"cores":4},"memoryUsage":{"total":1000}}`))
	}))
	t.Cleanup(legacy.Close)

	rec := newPeerRecorder()
	a := NewPeerAggregator(zap.NewNop(), rec)
	view := a.Aggregate(context.Background(), protocol.HostSnapshot{Hostname: "web-1"},
		[]config.PeerTarget{{URL: legacy.URL}}, time.Second)

	if len(view) != 1 {
		t.Fatalf("缺少内存数据的快照应被拒绝: %+v", view)
	}
	if rec.connectivity[legacy.URL] {
		t.Error("被拒绝的对端应记录为不可达")
	}
	if rec.errors[metric.ErrorKindRemoteServer] != 1 {
		t.Errorf("remote_server 错误应为 1，实际 %d", rec.errors[metric.ErrorKindRemoteServer])
	}
}

func TestAggregateAvailableMemoryFallback(t *testing.T) {
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(protocol.HostSnapshot{
			Hostname: "web-2",
			Memory:   protocol.MemoryInfo{TotalBytes: 1000, UsedBytes: 700, FreeBytes: 300},
		})
	}))
	t.Cleanup(peer.Close)

	a := NewPeerAggregator(zap.NewNop(), newPeerRecorder())
	view := a.Aggregate(context.Background(), protocol.HostSnapshot{Hostname: "web-1"},
		[]config.PeerTarget{{URL: peer.URL}}, time.Second)

	if len(view) != 2 {
		t.Fatalf("应返回 2 个快照，实际 %d", len(view))
	}
	if view[1].Memory.AvailableBytes != 300 {
		t.Errorf("对端可用内存缺失时应使用空闲内存，实际 %d", view[1].Memory.AvailableBytes)
	}
}

func TestAggregateCanceledRequestKeepsPeerState(t *testing.T) {
	peer := peerServer(t, "web-2", nil)

	rec := newPeerRecorder()
	a := NewPeerAggregator(zap.NewNop(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view := a.Aggregate(ctx, protocol.HostSnapshot{Hostname: "web-1"},
		[]config.PeerTarget{{URL: peer.URL}}, time.Second)

	if len(view) != 1 || view[0].Hostname != "web-1" {
		t.Errorf("请求取消时只返回本机: %+v", view)
	}
	if _, recorded := rec.connectivity[peer.URL]; recorded {
		t.Error("请求取消时不应改写对端连通状态")
	}
	if rec.errors[metric.ErrorKindRemoteServer] != 0 {
		t.Errorf("请求取消时不应累加 remote_server，实际 %d", rec.errors[metric.ErrorKindRemoteServer])
	}
}

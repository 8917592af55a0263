package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/dushixiang/hostpulse/internal/metric"
	"github.com/dushixiang/hostpulse/internal/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

// ErrPeerStatus 对端返回非 2xx 状态码
var ErrPeerStatus = errors.New("unexpected peer status")

const maxPeerBody = 1 << 20

// PeerRecorder 记录对端连通状态与错误
type PeerRecorder interface {
	SetPeerConnectivity(url string, up bool)
	IncrementError(kind string)
}

// PeerAggregator 对端节点指标聚合器
type PeerAggregator struct {
	logger     *zap.Logger
	httpClient *http.Client
	recorder   PeerRecorder
	validate   *validator.Validate
}

// NewPeerAggregator 创建聚合器
func NewPeerAggregator(logger *zap.Logger, recorder PeerRecorder) *PeerAggregator {
	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}

	return &PeerAggregator{
		logger:     logger,
		httpClient: httpClient,
		recorder:   recorder,
		validate:   validator.New(),
	}
}

// Aggregate 并发请求所有对端，等待全部完成后合并
// 本机快照始终位于首位，失败的对端直接省略；不会整体失败，也不重试
func (a *PeerAggregator) Aggregate(ctx context.Context, local protocol.HostSnapshot, peers []config.PeerTarget, timeout time.Duration) []protocol.HostSnapshot {
	mapper := iter.Mapper[config.PeerTarget, *protocol.HostSnapshot]{
		MaxGoroutines: len(peers),
	}
	results := mapper.Map(peers, func(peer *config.PeerTarget) *protocol.HostSnapshot {
		snapshot, err := a.fetch(ctx, peer.URL, timeout)
		if err != nil {
			// 调用方已放弃请求，不能据此判定对端不可达
			if ctx.Err() != nil {
				a.logger.Debug("请求已取消，忽略对端结果",
					zap.String("server_url", peer.URL),
					zap.Error(err))
				return nil
			}
			a.logger.Error("获取对端指标失败",
				zap.String("server_url", peer.URL),
				zap.Error(err))
			a.recorder.SetPeerConnectivity(peer.URL, false)
			a.recorder.IncrementError(metric.ErrorKindRemoteServer)
			return nil
		}
		a.recorder.SetPeerConnectivity(peer.URL, true)
		return &snapshot
	})

	view := make([]protocol.HostSnapshot, 0, 1+len(peers))
	view = append(view, local)
	for _, r := range results {
		if r != nil {
			view = append(view, *r)
		}
	}
	return view
}

// AsHost 以指定主机名返回本机快照，不访问任何对端
func (a *PeerAggregator) AsHost(local protocol.HostSnapshot, hostname string) []protocol.HostSnapshot {
	return []protocol.HostSnapshot{local.WithHostname(hostname)}
}

// fetch 请求单个对端的 /local-metrics
func (a *PeerAggregator) fetch(ctx context.Context, url string, timeout time.Duration) (protocol.HostSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return protocol.HostSnapshot{}, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return protocol.HostSnapshot{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return protocol.HostSnapshot{}, fmt.Errorf("%w: %d", ErrPeerStatus, resp.StatusCode)
	}

	var snapshot protocol.HostSnapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPeerBody)).Decode(&snapshot); err != nil {
		return protocol.HostSnapshot{}, fmt.Errorf("decode response failed: %w", err)
	}
	if err := a.validate.Struct(snapshot); err != nil {
		return protocol.HostSnapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	if snapshot.Memory.AvailableBytes == 0 {
		a.logger.Debug("对端可用内存缺失，使用空闲内存代替", zap.String("server_url", url))
		snapshot.Memory.AvailableBytes = snapshot.Memory.FreeBytes
	}
	return snapshot, nil
}

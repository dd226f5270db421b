// Copyright (c) Augur Authors.
// Licensed under the MIT License.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mirrorlake/augur/workflow"
)

// =============================================================================
// 📡 WebSocket 进度分发器
// =============================================================================

// subscriberBuffer 单个订阅者的事件缓冲。写入方不等待慢客户端，
// 缓冲满则丢弃该事件，与上游发布语义一致。
const subscriberBuffer = 64

// subscription 一个 WebSocket 客户端对单个 run 的订阅
type subscription struct {
	ch   chan workflow.Event
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub 将运行进度事件分发给按 run_id 订阅的 WebSocket 客户端。
// 实现 workflow.ProgressPublisher，通常挂在 AsyncPublisher 下游。
// 终态事件会被保留，晚到的订阅者仍能得知运行结局。
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	subs     map[string]map[*subscription]struct{}
	terminal map[string]workflow.Event
}

// NewHub 创建进度分发器
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger.With(zap.String("component", "progress_hub")),
		subs:     make(map[string]map[*subscription]struct{}),
		terminal: make(map[string]workflow.Event),
	}
}

// Publish 将事件分发给该 run 的全部订阅者。从不阻塞：
// 订阅者缓冲已满时丢弃事件。终态事件之后订阅通道被关闭。
func (h *Hub) Publish(event workflow.Event) {
	isTerminal := event.Step == workflow.EventStepRunCompleted

	h.mu.Lock()
	if isTerminal {
		h.terminal[event.RunID] = event
	}
	targets := make([]*subscription, 0, len(h.subs[event.RunID]))
	for sub := range h.subs[event.RunID] {
		targets = append(targets, sub)
	}
	if isTerminal {
		delete(h.subs, event.RunID)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				zap.String("run_id", event.RunID),
				zap.String("step", event.Step),
			)
		}
		if isTerminal {
			sub.close()
		}
	}
}

// subscribe 注册一个订阅。run 已终态时返回保留的终态事件，
// 通道立即处于已关闭状态。
func (h *Hub) subscribe(runID string) (*subscription, *workflow.Event) {
	sub := &subscription{ch: make(chan workflow.Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if event, ok := h.terminal[runID]; ok {
		sub.close()
		return sub, &event
	}
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*subscription]struct{})
	}
	h.subs[runID][sub] = struct{}{}
	return sub, nil
}

func (h *Hub) unsubscribe(runID string, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[runID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, runID)
		}
	}
}

// HandleProgress 将一次 run 的进度事件以 JSON 文本帧推送给客户端，
// 运行终态后正常关闭连接。
// @Router /api/research/ws/{id} [get]
func (h *Hub) HandleProgress(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("id"))
	if runID == "" {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	sub, retained := h.subscribe(runID)
	defer h.unsubscribe(runID, sub)

	ctx := r.Context()

	if retained != nil {
		_ = h.writeEvent(ctx, conn, *retained)
		_ = conn.Close(websocket.StatusNormalClosure, "run completed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case event, ok := <-sub.ch:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "run completed")
				return
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.logger.Debug("websocket write failed, dropping subscriber",
					zap.String("run_id", runID),
					zap.Error(err),
				)
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *Hub) writeEvent(ctx context.Context, conn *websocket.Conn, event workflow.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

package websocket

import (
	"context"
	"sync"
	"time"

	"devschool-client/internal/logger"
	"devschool-client/internal/progress"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 消息类型
const (
	TypeConnected = "connected"
	TypeProgress  = "progress"
	TypePing      = "ping"
	TypePong      = "pong"
)

const writeWait = 10 * time.Second

// Message WebSocket消息结构
type Message struct {
	Type string      `json:"type"`           // 消息类型: connected, progress, ping, pong
	Data interface{} `json:"data,omitempty"` // 消息数据，progress 时为 课程ID -> 百分比
	Meta interface{} `json:"meta,omitempty"` // 额外的元数据
}

// ProgressSource 进度快照来源，由 progress.Tracker 实现
type ProgressSource interface {
	Subscribe() *progress.Subscription
}

// Observer 一个进度观察者连接
type Observer struct {
	id      string
	conn    *websocket.Conn
	sub     *progress.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex // gorilla 连接同一时间只允许一个写者
	logger  *logger.Logger
	once    sync.Once
}

// ProgressHub 进度观察者管理器
// 每个连接订阅进度快照，每次发布都推送给所有连接
type ProgressHub struct {
	source    ProgressSource
	observers map[string]*Observer
	mu        sync.RWMutex
	logger    *logger.Logger // 日志记录器实例
}

// NewProgressHub 创建进度观察者管理器
func NewProgressHub(source ProgressSource) *ProgressHub {
	return &ProgressHub{
		source:    source,
		observers: make(map[string]*Observer),
		logger:    logger.NewLogger(logger.INFO), // 默认INFO级别
	}
}

// SetLogger 设置日志记录器实例
func (h *ProgressHub) SetLogger(loggerInstance *logger.Logger) {
	h.logger = loggerInstance
}

// Attach 为连接创建观察者并订阅进度，需调用 Observer.Serve 开始推送
func (h *ProgressHub) Attach(conn *websocket.Conn) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		id:     uuid.NewString(),
		conn:   conn,
		sub:    h.source.Subscribe(),
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger,
	}

	h.mu.Lock()
	h.observers[o.id] = o
	h.mu.Unlock()

	h.logger.Debug("进度观察者已连接: %s", o.id)
	return o
}

// Remove 关闭并移除观察者
func (h *ProgressHub) Remove(id string) {
	h.mu.Lock()
	o, ok := h.observers[id]
	delete(h.observers, id)
	h.mu.Unlock()

	if ok {
		o.Close()
		h.logger.Debug("进度观察者已断开: %s", id)
	}
}

// Count 当前观察者数量
func (h *ProgressHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// CloseAll 关闭所有观察者（服务关闭时调用）
func (h *ProgressHub) CloseAll() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]*Observer)
	h.mu.Unlock()

	for _, o := range observers {
		o.Close()
	}
	if len(observers) > 0 {
		h.logger.Info("关闭了 %d 个进度观察者", len(observers))
	}
}

// ID 观察者ID
func (o *Observer) ID() string {
	return o.id
}

// Done 返回观察者结束信号
func (o *Observer) Done() <-chan struct{} {
	return o.ctx.Done()
}

// Serve 启动双向处理: 读取客户端消息以感知断开，并推送进度快照
func (o *Observer) Serve() {
	if err := o.write(Message{Type: TypeConnected, Data: o.id}); err != nil {
		o.logger.Debug("发送连接确认消息失败: %v", err)
		o.Close()
		return
	}

	go o.readLoop()
	go o.writeLoop()
}

// readLoop 处理客户端消息，连接结束时关闭观察者
func (o *Observer) readLoop() {
	defer o.Close()
	for {
		var msg Message
		if err := o.conn.ReadJSON(&msg); err != nil {
			o.logger.Debug("WebSocket连接结束或读取中断: %v", err)
			return
		}
		if msg.Type == TypePing {
			if err := o.write(Message{Type: TypePong}); err != nil {
				return
			}
		}
	}
}

// writeLoop 把订阅到的快照推送给客户端
func (o *Observer) writeLoop() {
	defer o.Close()
	for {
		select {
		case <-o.ctx.Done():
			return
		case snapshot, ok := <-o.sub.C():
			if !ok {
				return
			}
			if err := o.write(Message{Type: TypeProgress, Data: snapshot}); err != nil {
				o.logger.Debug("推送进度失败，观察者 %s: %v", o.id, err)
				return
			}
		}
	}
}

func (o *Observer) write(msg Message) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return o.conn.WriteJSON(msg)
}

// Close 取消订阅并关闭连接，可重复调用
func (o *Observer) Close() {
	o.once.Do(func() {
		o.cancel()
		o.sub.Close()
		if o.conn != nil {
			o.conn.Close()
		}
	})
}

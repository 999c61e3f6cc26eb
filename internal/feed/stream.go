package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"strategy-backtester/internal/model"
	"strategy-backtester/internal/service"
)

// OkxWsData 适用于 Okx V5 的通用响应结构
type OkxWsData struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"` // 延迟解析
	Event string          `json:"event"`
}

// CandleStream 订阅交易所 K 线频道，只转发已确认 (收盘) 的 K 线。
// 驱动纸面交易模式下的逐 K 线回测循环。
type CandleStream struct {
	wsURL        string
	timeframe    string
	instToSymbol map[string]string
	candleChan   chan model.Candle
}

// NewCandleStream 订阅给定 Symbol 集合的 K 线频道
func NewCandleStream(wsURL, timeframe string, symbols []string) *CandleStream {
	instToSymbol := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		// BTCUSDT -> BTC-USDT-SWAP
		instID := symbol[:3] + "-" + symbol[3:] + "-SWAP"
		instToSymbol[instID] = symbol
	}
	return &CandleStream{
		wsURL:        wsURL,
		timeframe:    timeframe,
		instToSymbol: instToSymbol,
		candleChan:   make(chan model.Candle, 256),
	}
}

// Candles 供 orchestrator 消费的 K 线输出通道
func (s *CandleStream) Candles() <-chan model.Candle {
	return s.candleChan
}

// Start 建立 WebSocket 连接并持续读取。连接断开后自动重连，
// 直到 ctx 取消。
func (s *CandleStream) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(); err != nil {
			service.Logger.Error("WS stream error, reconnecting...", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (s *CandleStream) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing ws: %w", err)
	}
	defer conn.Close()

	channel := "candle" + s.timeframe
	var args []map[string]string
	for instID := range s.instToSymbol {
		args = append(args, map[string]string{"channel": channel, "instId": instID})
	}
	subscribeMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return fmt.Errorf("sending subscription: %w", err)
	}
	service.Logger.Info("Subscribed to candle streams",
		zap.String("channel", channel), zap.Int("symbols", len(s.instToSymbol)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading ws message: %w", err)
		}

		var wsResp OkxWsData
		if err := json.Unmarshal(message, &wsResp); err != nil {
			continue
		}
		if wsResp.Event != "" {
			continue // 忽略订阅确认等事件
		}

		symbol, ok := s.instToSymbol[wsResp.Arg.InstId]
		if !ok || len(wsResp.Data) == 0 {
			continue
		}

		// K 线数据: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
		var rows [][]string
		if err := json.Unmarshal(wsResp.Data, &rows); err != nil {
			service.Logger.Error("Candle data unmarshal error", zap.Error(err))
			continue
		}

		for _, row := range rows {
			if len(row) < 6 {
				continue
			}
			// 只转发已确认的 K 线
			if len(row) >= 9 && row[8] != "1" {
				continue
			}

			ts, err := service.StringToInt64(row[0])
			if err != nil {
				continue
			}
			open, err1 := service.StringToFloat(row[1])
			high, err2 := service.StringToFloat(row[2])
			low, err3 := service.StringToFloat(row[3])
			closeP, err4 := service.StringToFloat(row[4])
			volume, err5 := service.StringToFloat(row[5])
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
				continue
			}

			candle := model.Candle{
				Symbol:    symbol,
				Timeframe: s.timeframe,
				Timestamp: time.UnixMilli(ts).UTC(),
				Open:      open,
				High:      high,
				Low:       low,
				Close:     closeP,
				Volume:    volume,
			}

			// 使用 select/default 防止阻塞读循环
			select {
			case s.candleChan <- candle:
			default:
				service.Logger.Warn("Candle channel full! Dropping candle.",
					zap.String("Symbol", symbol))
			}
		}
	}
}

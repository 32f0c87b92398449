package gateway

import (
	"encoding/json"
	"time"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/candle"
)

// Client-to-server message types.
const (
	TypeSubscription = "subscription"
	TypePing         = "ping"
)

// Server-to-client message types.
const (
	TypeAck    = "ack"
	TypeCandle = "candle"
	TypeError  = "error"
	TypePong   = "pong"
)

// Subscription actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// InboundMessage is the envelope for every client frame.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest is the payload of a "subscription" frame.
type SubscriptionRequest struct {
	Action     string   `json:"action"`
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
	// Indicators is accepted for protocol compatibility; nothing in this
	// subsystem consumes it.
	Indicators []string `json:"indicators,omitempty"`
}

// OutboundMessage is the envelope for every server frame.
type OutboundMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AckData acknowledges a connection or a subscription change.
type AckData struct {
	ConnectionID string   `json:"connectionId,omitempty"`
	Action       string   `json:"action,omitempty"`
	Symbols      []string `json:"symbols,omitempty"`
	Timeframes   []string `json:"timeframes,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// ErrorData carries a protocol error back to the client. The connection
// stays open.
type ErrorData struct {
	Message string `json:"message"`
}

// CandleData is the payload of a "candle" frame.
type CandleData struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Candle    CandleFrame `json:"candle"`
}

// CandleFrame is the wire shape of one candle update.
type CandleFrame struct {
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     int64   `json:"volume"`
	VWAP       float64 `json:"vwap"`
	TickCount  int64   `json:"tickCount"`
	IsComplete bool    `json:"isComplete"`
}

func newOutbound(msgType string, data any) OutboundMessage {
	return OutboundMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func newCandleData(snap candle.Snapshot) CandleData {
	return CandleData{
		Symbol:    snap.Symbol,
		Timeframe: snap.Timeframe,
		Candle: CandleFrame{
			Open:       snap.Open,
			High:       snap.High,
			Low:        snap.Low,
			Close:      snap.Close,
			Volume:     snap.Volume,
			VWAP:       snap.VWAP,
			TickCount:  snap.TickCount,
			IsComplete: snap.IsComplete,
		},
	}
}

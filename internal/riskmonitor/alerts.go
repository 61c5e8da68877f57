// internal/riskmonitor/alerts.go
package riskmonitor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AlertType classifies risk alerts.
type AlertType string

const (
	AlertEmergencyExit AlertType = "emergency_exit"
	AlertStopLoss      AlertType = "stop_loss"
	AlertProfitTarget  AlertType = "profit_target"
	AlertScoreDrop     AlertType = "score_drop"
	AlertExitFailed    AlertType = "exit_failed"
	AlertPositionClose AlertType = "position_closed"
)

// Alert is one recorded risk event.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TokenMint string    `json:"token_mint"`
	Symbol    string    `json:"symbol"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // "info", "warning", "critical"
}

// AlertLog is a bounded in-memory record of risk events, surfaced through the
// monitoring status snapshot.
type AlertLog struct {
	mu        sync.RWMutex
	alerts    []Alert
	maxAlerts int
	logger    *zap.Logger
}

// NewAlertLog creates an alert log holding up to maxAlerts entries.
func NewAlertLog(maxAlerts int, logger *zap.Logger) *AlertLog {
	if maxAlerts <= 0 {
		maxAlerts = 1000
	}
	return &AlertLog{
		alerts:    make([]Alert, 0, 100),
		maxAlerts: maxAlerts,
		logger:    logger.Named("alerts"),
	}
}

// Record stores and logs one alert.
func (al *AlertLog) Record(alertType AlertType, severity, tokenMint, symbol, message string) {
	alert := Alert{
		ID:        fmt.Sprintf("alert_%d", time.Now().UnixNano()),
		Type:      alertType,
		Timestamp: time.Now(),
		TokenMint: tokenMint,
		Symbol:    symbol,
		Message:   message,
		Severity:  severity,
	}

	al.mu.Lock()
	if len(al.alerts) >= al.maxAlerts {
		al.alerts = al.alerts[1:]
	}
	al.alerts = append(al.alerts, alert)
	al.mu.Unlock()

	fields := []zap.Field{
		zap.String("type", string(alertType)),
		zap.String("token", tokenMint),
		zap.String("symbol", symbol),
		zap.String("message", message),
	}
	switch severity {
	case "critical":
		al.logger.Error("Alert triggered", fields...)
	case "warning":
		al.logger.Warn("Alert triggered", fields...)
	default:
		al.logger.Info("Alert triggered", fields...)
	}
}

// Recent returns up to limit most recent alerts, newest last.
func (al *AlertLog) Recent(limit int) []Alert {
	al.mu.RLock()
	defer al.mu.RUnlock()

	if limit <= 0 || limit > len(al.alerts) {
		limit = len(al.alerts)
	}
	start := len(al.alerts) - limit
	result := make([]Alert, limit)
	copy(result, al.alerts[start:])
	return result
}

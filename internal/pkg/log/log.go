// Package log adds logging utilities.
package log

import (
	"strings"
	"time"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/wire"

	"github.com/sirupsen/logrus"
)

// SetLogger sets the default logger's level.
func SetLogger(level string) {
	logrus.SetLevel(logrus.ErrorLevel)
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	logrus.SetFormatter(customFormatter)
	customFormatter.FullTimestamp = true
	switch strings.ToLower(level) {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.ErrorLevel)
	}
}

// PacketToFields renders a decoded packet as structured log fields.
func PacketToFields(pkt wire.Packet) logrus.Fields {
	switch p := pkt.(type) {
	case *wire.Method:
		return logrus.Fields{
			"type":   p.Type,
			"id":     p.ID,
			"method": p.Method,
		}
	case *wire.Reply:
		return logrus.Fields{
			"type":  p.Type,
			"id":    p.ID,
			"error": string(p.Error),
		}
	case *wire.Event:
		return logrus.Fields{
			"type":  p.Type,
			"event": p.Event,
		}
	default:
		return logrus.Fields{}
	}
}

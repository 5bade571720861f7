package apps

import (
	"context"
	"strings"

	"github.com/ExoZoneDev/mixer-chat/internal/pkg/chat"
	"github.com/ExoZoneDev/mixer-chat/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is the demo chat client application.
type ClientApp struct {
	Endpoints []string `validate:"required,min=1"`
	ChannelID int      `validate:"required"`
	UserID    int
	AuthKey   string
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run connects to the chat server, authenticates, optionally sends the
// message given as arguments, then logs events until the context ends.
func (app *ClientApp) Run(ctx context.Context, args []string) error {
	c, err := chat.NewClient(chat.WithEndpoints(app.Endpoints...))
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	defer c.Close()

	c.On(chat.NotifyReady, func(interface{}) {
		logger.Info("connection ready")
	})
	c.On(chat.NotifyReconnecting, func(payload interface{}) {
		if info, ok := payload.(chat.ReconnectingInfo); ok {
			logger.WithFields(logrus.Fields{
				"delay": info.Delay.String(),
				"cause": info.Cause,
			}).Warn("reconnecting")
		}
	})
	c.On(chat.NotifyError, func(payload interface{}) {
		logger.WithField("error", payload).Warn("socket error")
	})
	c.On("ChatMessage", func(payload interface{}) {
		logger.WithField("message", payload).Info("chat message")
	})

	c.Boot()

	auth := c.Auth(chat.Credentials{
		ChannelID: app.ChannelID,
		UserID:    app.UserID,
		AuthKey:   app.AuthKey,
	})
	if _, err := auth.Wait(ctx); err != nil {
		return errors.Wrap(err, "authenticate failed")
	}
	logger.Info("authenticated")

	if len(args) > 1 {
		message := strings.Join(args[1:], " ")
		if _, err := c.Call(ctx, "msg", []interface{}{message}); err != nil {
			return errors.Wrap(err, "send message failed")
		}
	}

	<-ctx.Done()
	return nil
}

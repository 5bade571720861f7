// Package cfg implements functionality to configure an app.
//
// The configuration objects defined here need only be implemented once,
// but can be applied to multiple types. In order to add support for a new
// type, the configuration need only implement an ApplyX method.
package cfg

import (
	"github.com/ExoZoneDev/mixer-chat/internal"
	"github.com/ExoZoneDev/mixer-chat/internal/app/apps"
)

// PortCfg is configuration for the chat server port.
type PortCfg struct {
	port uint16
}

// NewPortCfg creates a new PortCfg from the given port.
func NewPortCfg(port uint16) *PortCfg {
	return &PortCfg{
		port: port,
	}
}

// PortFromEnv creates a new PortCfg from the current environment.
func PortFromEnv() *PortCfg {
	return &PortCfg{
		port: uint16(internal.Port),
	}
}

// ApplyServerApp applies the PortCfg to a ServerApp.
func (cfg PortCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Port = cfg.port
	return nil
}

// ChatCfg is configuration for the chat client identity and endpoints.
type ChatCfg struct {
	endpoints []string
	channelID int
	userID    int
	authKey   string
}

// ChatFromEnv creates a new ChatCfg from the current environment.
func ChatFromEnv() *ChatCfg {
	return &ChatCfg{
		endpoints: internal.EndpointList(),
		channelID: internal.ChannelID,
		userID:    internal.UserID,
		authKey:   internal.AuthKey,
	}
}

// ApplyClientApp applies the ChatCfg to a ClientApp.
func (cfg ChatCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Endpoints = cfg.endpoints
	app.ChannelID = cfg.channelID
	app.UserID = cfg.userID
	app.AuthKey = cfg.authKey
	return nil
}

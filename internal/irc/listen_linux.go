//go:build linux

package irc

import (
	"github.com/dalnet/ircserv/internal/config"
	"github.com/dalnet/ircserv/internal/storage"
)

// Listen opens the listening socket and epoll set described by cfg and
// returns a server ready to Run.
func Listen(cfg *config.Config, motd *storage.MOTD, metrics *Metrics) (*Server, error) {
	t, err := listenSocket(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	p, err := newEpollPoller()
	if err != nil {
		t.Shutdown()
		return nil, err
	}
	return NewServer(cfg, t, p, motd, metrics), nil
}

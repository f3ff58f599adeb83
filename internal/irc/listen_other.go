//go:build !linux

package irc

import (
	"errors"

	"github.com/dalnet/ircserv/internal/config"
	"github.com/dalnet/ircserv/internal/storage"
)

// Listen is only implemented on Linux, where the server drives epoll
// directly.
func Listen(cfg *config.Config, motd *storage.MOTD, metrics *Metrics) (*Server, error) {
	return nil, errors.New("ircserv requires Linux (epoll)")
}

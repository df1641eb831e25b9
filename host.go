package assetio

import (
	"go.uber.org/zap"
)

// HostInterface is implemented by the application embedding a Manager.
type HostInterface interface {
	Identifier() string
	DisplayName() string
	Info() InfoDictionary
}

// Host is the plugin-facing view of the HostInterface.
type Host struct {
	impl HostInterface
}

// NewHost wraps a HostInterface
func NewHost(impl HostInterface) *Host {
	return &Host{impl: impl}
}

func (h *Host) Identifier() string   { return h.impl.Identifier() }
func (h *Host) DisplayName() string  { return h.impl.DisplayName() }
func (h *Host) Info() InfoDictionary { return h.impl.Info() }

// HostSession is handed to every ManagerInterface call. It identifies the
// host and carries the logger plugins should use.
type HostSession struct {
	host   *Host
	logger *zap.Logger
}

// NewHostSession creates a session. A nil logger falls back to the global one.
func NewHostSession(host *Host, logger *zap.Logger) *HostSession {
	if logger == nil {
		logger = zap.L()
	}
	return &HostSession{host: host, logger: logger}
}

func (s *HostSession) Host() *Host { return s.host }

// Logger returns the session logger, tagged with the host identifier
func (s *HostSession) Logger() *zap.Logger {
	if s == nil {
		return zap.L()
	}
	if s.host == nil {
		return s.logger
	}
	return s.logger.With(zap.String("host", s.host.Identifier()))
}

// StaticHost is a HostInterface with fixed values, for binaries and tests.
type StaticHost struct {
	ID       string
	Name     string
	InfoData InfoDictionary
}

func (h StaticHost) Identifier() string  { return h.ID }
func (h StaticHost) DisplayName() string { return h.Name }

func (h StaticHost) Info() InfoDictionary {
	if h.InfoData == nil {
		return InfoDictionary{}
	}
	return h.InfoData
}

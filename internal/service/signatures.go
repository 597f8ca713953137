package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/blacklist"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/yararules"
)

// DaemonPinger — проверка доступности антивирусного демона.
type DaemonPinger interface {
	Ping(ctx context.Context) error
	SocketPath() string
}

// SignatureInfo — состояние источников сигнатур.
type SignatureInfo struct {
	ClamAV    DaemonInfo     `json:"clamav"`
	YARA      yararules.Info `json:"yara"`
	Blacklist blacklist.Info `json:"blacklist"`
}

// DaemonInfo — состояние демона ClamAV.
type DaemonInfo struct {
	Available bool   `json:"available"`
	Socket    string `json:"socket"`
	Error     string `json:"error,omitempty"`
}

// SignatureService сообщает о доступности демона, наборе правил YARA
// и свежести чёрного списка.
type SignatureService struct {
	daemon    DaemonPinger
	blacklist *blacklist.Blacklist
	yaraDir   string
	logger    *slog.Logger
}

// NewSignatureService создаёт сервис. daemon может быть nil.
func NewSignatureService(daemon DaemonPinger, bl *blacklist.Blacklist, logger *slog.Logger) *SignatureService {
	return &SignatureService{
		daemon:    daemon,
		blacklist: bl,
		logger:    logger.With(slog.String("component", "signatures")),
	}
}

// SetYARARulesDir задаёт каталог правил YARA (пусто — не настроен).
func (s *SignatureService) SetYARARulesDir(dir string) {
	s.yaraDir = dir
}

// GetSignatureInfo возвращает текущее состояние сигнатур.
func (s *SignatureService) GetSignatureInfo(ctx context.Context) SignatureInfo {
	var info SignatureInfo
	if s.daemon != nil {
		info.ClamAV.Socket = s.daemon.SocketPath()
		if err := s.daemon.Ping(ctx); err != nil {
			info.ClamAV.Error = err.Error()
			s.logger.Debug("ClamAV не отвечает", slog.String("error", err.Error()))
		} else {
			info.ClamAV.Available = true
		}
	} else {
		info.ClamAV.Error = "демон не настроен"
	}
	info.YARA = yararules.Inspect(s.yaraDir, time.Now())
	if s.blacklist != nil {
		info.Blacklist = s.blacklist.Info()
	} else {
		info.Blacklist = blacklist.Info{Freshness: blacklist.FreshnessMissing}
	}
	return info
}

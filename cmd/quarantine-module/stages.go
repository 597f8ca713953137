package main

import (
	"log/slog"

	"github.com/bigkaa/goartstore/quarantine-module/internal/clamd"
	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
	"github.com/bigkaa/goartstore/quarantine-module/internal/ner"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage/aisafety"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage/integrity"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage/malware"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage/sanitize"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/blacklist"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// scanDeps — этапы конвейера и внешние источники сигнатур.
type scanDeps struct {
	stages    []stage.Stage
	daemon    service.DaemonPinger
	blacklist *blacklist.Blacklist
}

// buildStages собирает этапы в фиксированном порядке:
// integrity, malware_scan, sanitize, ai_safety.
// Без QR_CLAMD_SOCKET этап malware_scan помечает файлы как непроверенные.
func buildStages(cfg *config.Config, files *filestore.FileStore, logger *slog.Logger) scanDeps {
	deps := scanDeps{blacklist: blacklist.New(cfg.BlacklistPath, logger)}

	var scanner malware.Scanner
	if cfg.ClamdSocket != "" {
		client := clamd.NewClient(cfg.ClamdSocket, cfg.ClamdTimeout, logger)
		scanner = client
		deps.daemon = client
	} else {
		logger.Warn("QR_CLAMD_SOCKET не задан, антивирусная проверка недоступна")
	}

	deps.stages = []stage.Stage{
		integrity.New(logger),
		malware.New(scanner, deps.blacklist, logger),
		sanitize.New(files, logger),
		aisafety.New(ner.New(), logger),
	}
	return deps
}

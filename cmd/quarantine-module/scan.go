package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// errFilesHeld — хотя бы один файл задержан (код выхода 1 без сообщения).
var errFilesHeld = errors.New("есть задержанные файлы")

// scanReport — итог офлайн-проверки одного файла.
type scanReport struct {
	Path          string            `json:"path"`
	Status        status.FileStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	RiskSeverity  model.Severity    `json:"risk_severity"`
	Passed        bool              `json:"passed"`
	Findings      []model.Finding   `json:"findings"`
	SanitizedPath string            `json:"sanitized_path,omitempty"`
	StoppedAfter  string            `json:"stopped_after,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func newScanCmd(opts *cliOptions) *cobra.Command {
	var (
		overrides map[string]string
		workDir   string
	)

	cmd := &cobra.Command{
		Use:   "scan <file>...",
		Short: "Проверить файлы локально без базы данных и вывести JSON-отчёт",
		Long: "Прогоняет файлы через все этапы конвейера с настройками по умолчанию.\n" +
			"Очищенные копии сохраняются только при заданном --workdir.\n" +
			"Код выхода 1, если хотя бы один файл задержан.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanCfg, err := scanConfigWithOverrides(overrides)
			if err != nil {
				return err
			}

			keep := workDir != ""
			if !keep {
				if workDir, err = os.MkdirTemp("", "quarantine-scan-"); err != nil {
					return err
				}
				defer os.RemoveAll(workDir)
			}

			reports, err := scanFiles(cmd, opts.cfg, scanCfg, workDir, keep, args)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
			for _, r := range reports {
				if r.Status != status.FileClean {
					return errFilesHeld
				}
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&overrides, "set", nil, "переопределить настройку сканирования (key=value), например --set strictness_level=strict")
	cmd.Flags().StringVar(&workDir, "workdir", "", "каталог для очищенных копий (по умолчанию временный)")

	return cmd
}

// scanConfigWithOverrides применяет --set поверх настроек по умолчанию.
func scanConfigWithOverrides(overrides map[string]string) (model.ScanConfig, error) {
	cfg := model.DefaultScanConfig()
	if len(overrides) == 0 {
		return cfg, nil
	}
	patch := make(map[string]any, len(overrides))
	for k, v := range overrides {
		if !model.IsConfigKey(k) {
			return cfg, fmt.Errorf("неизвестная настройка %q", k)
		}
		patch[k] = v
	}
	next, _, err := cfg.Apply(patch)
	return next, err
}

func scanFiles(cmd *cobra.Command, cfg *config.Config, scanCfg model.ScanConfig, workDir string, keep bool, paths []string) ([]scanReport, error) {
	logger := quietLogger(cfg, cmd.ErrOrStderr())

	files, err := filestore.New(workDir)
	if err != nil {
		return nil, err
	}
	deps := buildStages(cfg, files, logger)

	reports := make([]scanReport, 0, len(paths))
	for _, p := range paths {
		report := scanReport{Path: p, Findings: []model.Finding{}}
		if st, err := os.Stat(p); err != nil || !st.Mode().IsRegular() {
			report.Status = status.FileHeld
			report.Error = "не является обычным файлом"
			reports = append(reports, report)
			continue
		}

		res, err := service.RunStages(cmd.Context(), deps.stages, p, filepath.Base(p), scanCfg, nil)
		if err != nil {
			return nil, err
		}
		report.Status, report.Reason = service.Classify(res, scanCfg)
		report.Passed = res.Passed
		report.RiskSeverity = model.MaxSeverity(res.Findings)
		report.StoppedAfter = res.StoppedAfter
		if res.Findings != nil {
			report.Findings = res.Findings
		}
		if keep {
			report.SanitizedPath = res.SanitizedPath
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// quietLogger пишет диагностику в stderr, не смешивая её с JSON-отчётом.
func quietLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: max(cfg.LogLevel, slog.LevelWarn)}))
}

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// candidateBinaries — имена исполняемого файла LibreOffice для поиска в PATH.
var candidateBinaries = []string{"libreoffice", "soffice"}

// maxStderr — сколько байт stderr конвертера сохраняется в ошибке.
const maxStderr = 4096

// SofficeConfig — параметры запуска LibreOffice.
type SofficeConfig struct {
	// BinaryPath — явный путь; пусто — поиск candidateBinaries в PATH
	BinaryPath string
	// ProfileRoot — корень профилей, в нём создаются slot-0..slot-N
	ProfileRoot string
	// Slots — число одновременных запусков
	Slots int
	// Timeout — предельное время одного запуска
	Timeout time.Duration
}

// SofficeRunner — запуск LibreOffice в headless-режиме.
//
// Каждый запуск получает собственный слот профиля из пула: два процесса
// никогда не используют один профиль, а число живых процессов не больше
// числа слотов. По таймауту убивается вся группа процессов.
type SofficeRunner struct {
	cfg    SofficeConfig
	slots  chan string
	logger *slog.Logger
}

// NewSofficeRunner создаёт директории слотов профиля.
// Наличие исполняемого файла не проверяется: конвертер может появиться позже.
func NewSofficeRunner(cfg SofficeConfig, logger *slog.Logger) (*SofficeRunner, error) {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	root, err := filepath.Abs(cfg.ProfileRoot)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь профиля %s: %w", cfg.ProfileRoot, err)
	}
	cfg.ProfileRoot = root

	slots := make(chan string, cfg.Slots)
	for i := 0; i < cfg.Slots; i++ {
		dir := filepath.Join(root, fmt.Sprintf("slot-%d", i))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать профиль %s: %w", dir, err)
		}
		slots <- dir
	}

	return &SofficeRunner{
		cfg:    cfg,
		slots:  slots,
		logger: logger.With(slog.String("component", "soffice")),
	}, nil
}

// Binary возвращает путь к исполняемому файлу или ErrConverterUnavailable.
func (s *SofficeRunner) Binary() (string, error) {
	if s.cfg.BinaryPath != "" {
		p, err := exec.LookPath(s.cfg.BinaryPath)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", apperr.ErrConverterUnavailable, s.cfg.BinaryPath, err)
		}
		return p, nil
	}
	for _, name := range candidateBinaries {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: не найден ни один из %s в PATH",
		apperr.ErrConverterUnavailable, strings.Join(candidateBinaries, ", "))
}

// Convert конвертирует inputPath в format, результат пишется в workDir.
// Возвращает путь к основному результату: {workDir}/{имя без расширения}.{format}.
func (s *SofficeRunner) Convert(ctx context.Context, inputPath string, format model.OutputFormat, workDir string) (string, error) {
	bin, err := s.Binary()
	if err != nil {
		return "", err
	}

	var profile string
	select {
	case profile = <-s.slots:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: ожидание свободного слота: %v", apperr.ErrConversionTimeout, ctx.Err())
	}
	defer func() { s.slots <- profile }()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := []string{
		"--headless", "--nologo", "--norestore", "--nolockcheck",
		"--nodefault", "--nocrashreport",
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--convert-to", string(format),
		"--outdir", workDir,
		inputPath,
	}

	cmd := exec.CommandContext(runCtx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	converterDuration.Observe(elapsed.Seconds())

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("Конвертер не уложился в таймаут, процесс остановлен",
			slog.String("input", filepath.Base(inputPath)),
			slog.Duration("timeout", s.cfg.Timeout),
		)
		return "", fmt.Errorf("%w: %s за %s", apperr.ErrConversionTimeout, filepath.Base(inputPath), s.cfg.Timeout)
	}
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", apperr.ErrConverterUnavailable, runErr)
		}
		return "", fmt.Errorf("%w: %v: %s", apperr.ErrConversionFailed, runErr, tail(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(workDir, base+"."+string(format))
	if info, err := os.Stat(out); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: output not found (%s): %s", apperr.ErrConversionFailed, filepath.Base(out), tail(stderr.String()))
	}

	s.logger.Debug("Конвертация выполнена",
		slog.String("input", filepath.Base(inputPath)),
		slog.String("format", string(format)),
		slog.Duration("duration", elapsed),
	)
	return out, nil
}

// Version запускает конвертер с --version (не дольше 10 секунд).
func (s *SofficeRunner) Version(ctx context.Context) (string, error) {
	bin, err := s.Binary()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "--version")
	configureProcessGroup(cmd)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: --version: %v", apperr.ErrConverterUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// tail — последние maxStderr байт вывода.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}

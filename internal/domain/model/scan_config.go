package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ConfigKeyPrefix — префикс ключей настроек карантина во внешнем хранилище.
const ConfigKeyPrefix = "quarantine."

// Ключи настроек сканирования.
const (
	KeyMaxFileSize               = "max_file_size"
	KeyMaxBatchFiles             = "max_batch_files"
	KeyMaxCompressionRatio       = "max_compression_ratio"
	KeyMaxArchiveDepth           = "max_archive_depth"
	KeyAutoApproveClean          = "auto_approve_clean"
	KeyStrictnessLevel           = "strictness_level"
	KeyAISafetyEnabled           = "ai_safety_enabled"
	KeyPIIEnabled                = "pii_enabled"
	KeyPIIAction                 = "pii_action"
	KeyInjectionDetectionEnabled = "injection_detection_enabled"
	KeyModelHashVerification     = "model_hash_verification"
	KeyMalwareScanEnabled        = "malware_scan_enabled"
	KeyNEREnabled                = "ner_enabled"
	KeyStopOnCritical            = "stop_on_critical"
)

// Допустимые значения перечислений.
const (
	StrictnessStandard = "standard"
	StrictnessStrict   = "strict"
	StrictnessParanoid = "paranoid"

	PIIActionFlag   = "flag"
	PIIActionBlock  = "block"
	PIIActionRedact = "redact"
)

// ScanConfig — типизированные настройки сканирования.
// Хранятся во внешнем хранилище как плоская карта строк.
type ScanConfig struct {
	MaxFileSize               int64   `json:"max_file_size"`
	MaxBatchFiles             int     `json:"max_batch_files"`
	MaxCompressionRatio       float64 `json:"max_compression_ratio"`
	MaxArchiveDepth           int     `json:"max_archive_depth"`
	AutoApproveClean          bool    `json:"auto_approve_clean"`
	StrictnessLevel           string  `json:"strictness_level"`
	AISafetyEnabled           bool    `json:"ai_safety_enabled"`
	PIIEnabled                bool    `json:"pii_enabled"`
	PIIAction                 string  `json:"pii_action"`
	InjectionDetectionEnabled bool    `json:"injection_detection_enabled"`
	ModelHashVerification     bool    `json:"model_hash_verification"`
	MalwareScanEnabled        bool    `json:"malware_scan_enabled"`
	NEREnabled                bool    `json:"ner_enabled"`
	StopOnCritical            bool    `json:"stop_on_critical"`
}

// DefaultScanConfig возвращает настройки по умолчанию.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		MaxFileSize:               1 << 30, // 1 GiB
		MaxBatchFiles:             100,
		MaxCompressionRatio:       100,
		MaxArchiveDepth:           3,
		AutoApproveClean:          true,
		StrictnessLevel:           StrictnessStandard,
		AISafetyEnabled:           true,
		PIIEnabled:                true,
		PIIAction:                 PIIActionFlag,
		InjectionDetectionEnabled: true,
		ModelHashVerification:     true,
		MalwareScanEnabled:        true,
		NEREnabled:                false,
		StopOnCritical:            false,
	}
}

// ErrInvalidConfig — некорректное значение настройки.
var ErrInvalidConfig = errors.New("некорректная настройка сканирования")

// FromMap строит настройки из плоской карты (ключи без префикса).
// Некорректные значения заменяются значениями по умолчанию, а ошибки
// по ним возвращаются вместе с результатом.
func FromMap(m map[string]string) (ScanConfig, error) {
	cfg := DefaultScanConfig()
	var errs []error
	for key, raw := range m {
		if err := cfg.set(key, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return cfg, errors.Join(errs...)
}

// ToMap возвращает настройки в виде плоской карты строк.
// Булевы значения записываются как "true"/"false".
func (c ScanConfig) ToMap() map[string]string {
	return map[string]string{
		KeyMaxFileSize:               strconv.FormatInt(c.MaxFileSize, 10),
		KeyMaxBatchFiles:             strconv.Itoa(c.MaxBatchFiles),
		KeyMaxCompressionRatio:       strconv.FormatFloat(c.MaxCompressionRatio, 'f', -1, 64),
		KeyMaxArchiveDepth:           strconv.Itoa(c.MaxArchiveDepth),
		KeyAutoApproveClean:          strconv.FormatBool(c.AutoApproveClean),
		KeyStrictnessLevel:           c.StrictnessLevel,
		KeyAISafetyEnabled:           strconv.FormatBool(c.AISafetyEnabled),
		KeyPIIEnabled:                strconv.FormatBool(c.PIIEnabled),
		KeyPIIAction:                 c.PIIAction,
		KeyInjectionDetectionEnabled: strconv.FormatBool(c.InjectionDetectionEnabled),
		KeyModelHashVerification:     strconv.FormatBool(c.ModelHashVerification),
		KeyMalwareScanEnabled:        strconv.FormatBool(c.MalwareScanEnabled),
		KeyNEREnabled:                strconv.FormatBool(c.NEREnabled),
		KeyStopOnCritical:            strconv.FormatBool(c.StopOnCritical),
	}
}

// Apply применяет частичное обновление (значения из JSON).
// Неизвестные ключи и null игнорируются. Возвращает новую копию
// настроек и список реально изменённых ключей.
func (c ScanConfig) Apply(patch map[string]any) (ScanConfig, []string, error) {
	next := c
	var changed []string
	for key, val := range patch {
		if val == nil || !IsConfigKey(key) {
			continue
		}
		raw, err := stringify(val)
		if err != nil {
			return c, nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		if err := next.set(key, raw); err != nil {
			return c, nil, err
		}
		changed = append(changed, key)
	}
	sort.Strings(changed)
	return next, changed, nil
}

// Fingerprint — SHA-256 канонического представления настроек.
// Одинаковые настройки дают одинаковый отпечаток.
func (c ScanConfig) Fingerprint() string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, m[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsConfigKey проверяет, является ли ключ известной настройкой.
func IsConfigKey(key string) bool {
	_, ok := DefaultScanConfig().ToMap()[key]
	return ok
}

// set разбирает строковое значение и записывает его в поле.
func (c *ScanConfig) set(key, raw string) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...))
	}
	raw = strings.TrimSpace(raw)

	switch key {
	case KeyMaxFileSize:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return invalid("ожидается положительное целое, получено %q", raw)
		}
		c.MaxFileSize = n
	case KeyMaxBatchFiles:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return invalid("ожидается целое >= 1, получено %q", raw)
		}
		c.MaxBatchFiles = n
	case KeyMaxCompressionRatio:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return invalid("ожидается положительное число, получено %q", raw)
		}
		c.MaxCompressionRatio = f
	case KeyMaxArchiveDepth:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return invalid("ожидается целое >= 1, получено %q", raw)
		}
		c.MaxArchiveDepth = n
	case KeyStrictnessLevel:
		switch raw {
		case StrictnessStandard, StrictnessStrict, StrictnessParanoid:
			c.StrictnessLevel = raw
		default:
			return invalid("допустимые: standard, strict, paranoid; получено %q", raw)
		}
	case KeyPIIAction:
		switch raw {
		case PIIActionFlag, PIIActionBlock, PIIActionRedact:
			c.PIIAction = raw
		default:
			return invalid("допустимые: flag, block, redact; получено %q", raw)
		}
	case KeyAutoApproveClean, KeyAISafetyEnabled, KeyPIIEnabled, KeyInjectionDetectionEnabled,
		KeyModelHashVerification, KeyMalwareScanEnabled, KeyNEREnabled, KeyStopOnCritical:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return invalid("ожидается true/false, получено %q", raw)
		}
		*c.boolField(key) = b
	default:
		// Неизвестные ключи игнорируются.
	}
	return nil
}

func (c *ScanConfig) boolField(key string) *bool {
	switch key {
	case KeyAutoApproveClean:
		return &c.AutoApproveClean
	case KeyAISafetyEnabled:
		return &c.AISafetyEnabled
	case KeyPIIEnabled:
		return &c.PIIEnabled
	case KeyInjectionDetectionEnabled:
		return &c.InjectionDetectionEnabled
	case KeyModelHashVerification:
		return &c.ModelHashVerification
	case KeyMalwareScanEnabled:
		return &c.MalwareScanEnabled
	case KeyNEREnabled:
		return &c.NEREnabled
	default:
		return &c.StopOnCritical
	}
}

// stringify приводит значение из JSON к строке для set.
func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("неподдерживаемый тип %T", v)
	}
}

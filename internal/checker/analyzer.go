package checker

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// Пороги анализа качества.
const (
	duplicateRateThreshold = 0.10
	extremeSpreadFactor    = 5
	shortContentRunes      = 5
	lengthOutlierFactor    = 10
	imbalanceThreshold     = 0.90
	patternKeyRunes        = 50
)

// AnalyzeTraining оценивает качество выборки: дубликаты, распределение
// длин и дисбаланс классов. Формат берётся по первой записи.
func AnalyzeTraining(records []Record) []model.Finding {
	if len(records) == 0 {
		return nil
	}
	format := DetectFormat(records[0])

	var findings []model.Finding
	findings = append(findings, checkDuplicates(records)...)
	findings = append(findings, checkLengths(records, format)...)
	findings = append(findings, checkClassBalance(records, format)...)
	return findings
}

func checkDuplicates(records []Record) []model.Finding {
	seen := make(map[[sha256.Size]byte]struct{}, len(records))
	for _, r := range records {
		// json.Marshal сортирует ключи map, поэтому порядок полей не важен.
		b, _ := json.Marshal(r)
		seen[sha256.Sum256(b)] = struct{}{}
	}

	total := len(records)
	duplicates := total - len(seen)
	rate := float64(duplicates) / float64(total)
	if rate <= duplicateRateThreshold {
		return nil
	}
	return []model.Finding{aiFinding(model.SeverityMedium, "training_high_duplicate_rate",
		fmt.Sprintf("Высокая доля дубликатов: %.0f%% (%d из %d)", rate*100, duplicates, total),
		map[string]any{"duplicate_rate": round(rate, 3), "total": total, "duplicates": duplicates})}
}

func checkLengths(records []Record, format Format) []model.Finding {
	if len(records) < 2 {
		return nil
	}
	lengths := make([]float64, len(records))
	for i, r := range records {
		lengths[i] = float64(utf8.RuneCountInString(Content(r, format)))
	}

	avg := mean(lengths)
	med := median(lengths)
	sd := sampleStdDev(lengths)

	var findings []model.Finding
	if sd == 0 {
		findings = append(findings, aiFinding(model.SeverityLow, "training_zero_variance",
			"Все записи одинаковой длины",
			map[string]any{"length": int(lengths[0]), "count": len(lengths)}))
	}
	if avg > 0 && sd > extremeSpreadFactor*avg {
		findings = append(findings, aiFinding(model.SeverityLow, "training_extreme_spread",
			fmt.Sprintf("Экстремальный разброс длин: stddev %.0f > 5x mean %.0f", sd, avg),
			map[string]any{"mean": round(avg, 1), "stddev": round(sd, 1), "median": round(med, 1)}))
	}

	short := 0
	for _, l := range lengths {
		if l < shortContentRunes {
			short++
		}
	}
	if short > 0 {
		findings = append(findings, aiFinding(model.SeverityLow, "training_short_content",
			fmt.Sprintf("%d записей короче %d символов", short, shortContentRunes),
			map[string]any{"count": short, "total": len(lengths)}))
	}

	if med > 0 {
		outliers := 0
		for _, l := range lengths {
			if l > lengthOutlierFactor*med {
				outliers++
			}
		}
		if outliers > 0 {
			findings = append(findings, aiFinding(model.SeverityLow, "training_length_outlier",
				fmt.Sprintf("%d записей длиннее 10x медианы (%.0f)", outliers, med),
				map[string]any{"count": outliers, "median": round(med, 1)}))
		}
	}
	return findings
}

// checkClassBalance ищет доминирующий шаблон запроса: первые 50 символов
// первого сообщения пользователя (chat) или инструкции (instruction).
func checkClassBalance(records []Record, format Format) []model.Finding {
	if format != FormatChat && format != FormatInstruction {
		return nil
	}

	counts := map[string]int{}
	total := 0
	for _, r := range records {
		var key string
		switch format {
		case FormatChat:
			found := false
			for _, m := range messages(r) {
				if m["role"] == "user" {
					key = asText(m["content"])
					found = true
					break
				}
			}
			if !found {
				continue
			}
		case FormatInstruction:
			key = asText(r["instruction"])
		}
		counts[truncateRunes(key, patternKeyRunes)]++
		total++
	}
	if total == 0 {
		return nil
	}

	dominant := 0
	for _, c := range counts {
		dominant = max(dominant, c)
	}
	if float64(dominant)/float64(total) <= imbalanceThreshold {
		return nil
	}
	return []model.Finding{aiFinding(model.SeverityMedium, "training_class_imbalance",
		fmt.Sprintf("Дисбаланс классов: один шаблон покрывает %d из %d записей (>90%%)", dominant, total),
		map[string]any{"dominant_count": dominant, "total": total})}
}

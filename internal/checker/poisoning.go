package checker

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// Пороги обнаружения отравления.
const (
	trigramRateThreshold  = 0.30
	backdoorRateThreshold = 0.20
	outlierMinRecords     = 5
	outlierZScore         = 3
	outlierRateThreshold  = 0.05
)

const punctuation = ".,;:!?\"'()-[]{}@#$%^&*"

// AnalyzePoisoning ищет признаки отравления данных: навязчиво повторяющиеся
// триграммы, одинаковый ответ на разные запросы и статистические выбросы.
func AnalyzePoisoning(records []Record) []model.Finding {
	if len(records) == 0 {
		return nil
	}
	format := DetectFormat(records[0])

	var findings []model.Finding
	findings = append(findings, checkTrigrams(records, format)...)
	findings = append(findings, checkBackdoor(records, format)...)
	findings = append(findings, checkOutliers(records, format)...)
	return findings
}

func trigrams(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 3 {
		return nil
	}
	out := make([]string, 0, len(words)-2)
	for i := 0; i+3 <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+3], " "))
	}
	return out
}

// checkTrigrams считает, в какой доле записей встречается каждая триграмма.
// Сообщается самая частая (при равенстве — лексикографически меньшая).
func checkTrigrams(records []Record, format Format) []model.Finding {
	perRecord := map[string]int{}
	for _, r := range records {
		seen := map[string]struct{}{}
		for _, tg := range trigrams(Content(r, format)) {
			if _, ok := seen[tg]; ok {
				continue
			}
			seen[tg] = struct{}{}
			perRecord[tg]++
		}
	}

	var top string
	topCount := 0
	for tg, c := range perRecord {
		if c > topCount || (c == topCount && tg < top) {
			top, topCount = tg, c
		}
	}

	total := len(records)
	rate := float64(topCount) / float64(total)
	if rate <= trigramRateThreshold {
		return nil
	}
	return []model.Finding{aiFinding(model.SeverityHigh, "poisoning_repetitive_content",
		fmt.Sprintf("Триграмма %q встречается в %d из %d записей (>30%%)", top, topCount, total),
		map[string]any{"trigram": top, "count": topCount, "total": total, "rate": round(rate, 3)})}
}

// checkBackdoor ищет ответ, общий для большой доли записей при разных
// запросах: типичный след внедрённого триггера.
func checkBackdoor(records []Record, format Format) []model.Finding {
	if format != FormatCompletion && format != FormatInstruction && format != FormatChat {
		return nil
	}

	type group struct {
		count  int
		inputs map[[sha256.Size]byte]struct{}
	}
	groups := map[[sha256.Size]byte]*group{}
	for _, r := range records {
		out, ok := Output(r, format)
		if !ok {
			continue
		}
		in, ok := Input(r, format)
		if !ok {
			continue
		}
		key := sha256.Sum256([]byte(out))
		g := groups[key]
		if g == nil {
			g = &group{inputs: map[[sha256.Size]byte]struct{}{}}
			groups[key] = g
		}
		g.count++
		g.inputs[sha256.Sum256([]byte(in))] = struct{}{}
	}

	total := len(records)
	var worst *group
	for _, g := range groups {
		if float64(g.count)/float64(total) <= backdoorRateThreshold || len(g.inputs) <= 1 {
			continue
		}
		if worst == nil || g.count > worst.count {
			worst = g
		}
	}
	if worst == nil {
		return nil
	}
	return []model.Finding{aiFinding(model.SeverityCritical, "poisoning_backdoor_pattern",
		fmt.Sprintf("Признак бэкдора: %d из %d записей имеют одинаковый ответ при %d разных запросах",
			worst.count, total, len(worst.inputs)),
		map[string]any{"shared_output_count": worst.count, "unique_inputs": len(worst.inputs), "total": total})}
}

// checkOutliers — доля записей, у которых хотя бы один признак
// (длина, доля уникальных слов, доля пунктуации) имеет |z| > 3.
func checkOutliers(records []Record, format Format) []model.Finding {
	if len(records) < outlierMinRecords {
		return nil
	}

	n := len(records)
	features := [3][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	for i, r := range records {
		content := Content(r, format)
		words := strings.Fields(content)
		chars := utf8.RuneCountInString(content)

		features[0][i] = float64(chars)
		if len(words) > 0 {
			unique := map[string]struct{}{}
			for _, w := range words {
				unique[w] = struct{}{}
			}
			features[1][i] = float64(len(unique)) / float64(len(words))
		}
		if chars > 0 {
			punct := 0
			for _, c := range content {
				if strings.ContainsRune(punctuation, c) {
					punct++
				}
			}
			features[2][i] = float64(punct) / float64(chars)
		}
	}

	outlier := make([]bool, n)
	for _, values := range features {
		avg := mean(values)
		sd := sampleStdDev(values)
		if sd == 0 {
			continue
		}
		for i, v := range values {
			if math.Abs(v-avg)/sd > outlierZScore {
				outlier[i] = true
			}
		}
	}

	count := 0
	for _, o := range outlier {
		if o {
			count++
		}
	}
	rate := float64(count) / float64(n)
	if rate <= outlierRateThreshold {
		return nil
	}
	return []model.Finding{aiFinding(model.SeverityMedium, "poisoning_statistical_outliers",
		fmt.Sprintf("Статистические выбросы: %d из %d записей (|z| > 3)", count, n),
		map[string]any{"outlier_count": count, "total": n, "rate": round(rate, 3)})}
}

// Пакет ner — распознавание именованных сущностей на основе prose.
package ner

import (
	"context"
	"fmt"

	"github.com/jdkato/prose/v2"

	"github.com/bigkaa/goartstore/quarantine-module/internal/checker"
)

// Recognizer — распознаватель на встроенной модели prose (английский язык).
type Recognizer struct{}

// New создаёт распознаватель.
func New() *Recognizer {
	return &Recognizer{}
}

// Entities возвращает сущности PERSON и GPE из текста.
func (r *Recognizer) Entities(ctx context.Context, text string) ([]checker.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("ner: разбор текста: %w", err)
	}

	var out []checker.Entity
	for _, e := range doc.Entities() {
		switch e.Label {
		case checker.EntityPerson, checker.EntityLocation:
			out = append(out, checker.Entity{Text: e.Text, Label: e.Label})
		}
	}
	return out, nil
}

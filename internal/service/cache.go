// JobCache — LRU-кэш сводок завершённых заданий с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// JobCache хранит сводки только завершённых заданий: их состав больше
// не меняется, кроме решений проверки, которые сбрасывают запись.
type JobCache struct {
	cache *expirable.LRU[string, *model.JobSummary]
}

// NewJobCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewJobCache(maxSize int, ttl time.Duration) *JobCache {
	return &JobCache{cache: expirable.NewLRU[string, *model.JobSummary](maxSize, nil, ttl)}
}

// Get возвращает сводку по ID задания.
func (c *JobCache) Get(jobID string) (*model.JobSummary, bool) {
	val, ok := c.cache.Get(jobID)
	if ok {
		jobCacheHitsTotal.Inc()
		return val, true
	}
	jobCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет сводку в кэш.
func (c *JobCache) Set(jobID string, summary *model.JobSummary) {
	c.cache.Add(jobID, summary)
}

// InvalidateJob удаляет сводку задания.
func (c *JobCache) InvalidateJob(jobID string) {
	c.cache.Remove(jobID)
}

// Len возвращает число записей.
func (c *JobCache) Len() int {
	return c.cache.Len()
}

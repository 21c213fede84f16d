package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	metricsPrefix   = "nullbr:metrics:"
	botStatsKey     = metricsPrefix + "bot"
	keywordsKey     = metricsPrefix + "keywords"
	pathsKey        = metricsPrefix + "paths"
	startTimeKey    = metricsPrefix + "server:start_time"
	globalTotalKey  = metricsPrefix + "global:total"
	globalLatency   = metricsPrefix + "global:latency_sum"
	popularKeywords = 10
	maxKeywordLen   = 64
)

// Metrics stores API and bot statistics in Redis
type Metrics struct {
	client *redis.Client
	now    func() time.Time
}

// APIStats represents statistics for an API endpoint
type APIStats struct {
	Path         string  `json:"path"`
	TotalCalls   int64   `json:"total_calls"`
	SuccessCalls int64   `json:"success_calls"`
	ErrorCalls   int64   `json:"error_calls"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
}

// DailyStats represents daily API statistics
type DailyStats struct {
	Date       string  `json:"date"`
	TotalCalls int64   `json:"total_calls"`
	AvgLatency float64 `json:"avg_latency"`
}

// KeywordCount is a search keyword and how often it was searched
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// BotStats summarizes conversational activity
type BotStats struct {
	TotalSearches      int64          `json:"total_searches"`
	SuccessfulSearches int64          `json:"successful_searches"`
	FailedSearches     int64          `json:"failed_searches"`
	TotalResources     int64          `json:"total_resources"`
	TotalTransfers     int64          `json:"total_transfers"`
	SuccessTransfers   int64          `json:"successful_transfers"`
	FailedTransfers    int64          `json:"failed_transfers"`
	LastSearchTime     string         `json:"last_search_time,omitempty"`
	LastTransferTime   string         `json:"last_transfer_time,omitempty"`
	PopularKeywords    []KeywordCount `json:"popular_keywords"`
}

// OverallStats represents overall system statistics
type OverallStats struct {
	TotalAPICalls int64        `json:"total_api_calls"`
	TodayAPICalls int64        `json:"today_api_calls"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	TopEndpoints  []APIStats   `json:"top_endpoints"`
	DailyTrend    []DailyStats `json:"daily_trend"`
	ErrorRate     float64      `json:"error_rate"`
	Uptime        int64        `json:"uptime_seconds"`
	Bot           *BotStats    `json:"bot"`
}

// NewMetrics creates a new Metrics instance
func NewMetrics(redisURL string) (*Metrics, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewMetricsFromClient(redis.NewClient(opt)), nil
}

// NewMetricsFromClient shares an existing Redis connection
func NewMetricsFromClient(client *redis.Client) *Metrics {
	return &Metrics{client: client, now: time.Now}
}

// RecordAPICall records an API call
func (m *Metrics) RecordAPICall(ctx context.Context, path string, statusCode int, latencyMs float64) error {
	now := m.now()
	today := now.Format("2006-01-02")
	hour := now.Format("2006-01-02-15")

	pipe := m.client.Pipeline()

	pathKey := metricsPrefix + "path:" + path
	pipe.HIncrBy(ctx, pathKey, "total", 1)
	pipe.HIncrByFloat(ctx, pathKey, "latency_sum", latencyMs)
	pipe.HSetNX(ctx, pathKey, "min_latency", latencyMs)
	pipe.HSetNX(ctx, pathKey, "max_latency", latencyMs)

	if statusCode >= 200 && statusCode < 400 {
		pipe.HIncrBy(ctx, pathKey, "success", 1)
	} else {
		pipe.HIncrBy(ctx, pathKey, "error", 1)
	}

	dailyKey := metricsPrefix + "daily:" + today
	pipe.HIncrBy(ctx, dailyKey, "total", 1)
	pipe.HIncrByFloat(ctx, dailyKey, "latency_sum", latencyMs)
	pipe.Expire(ctx, dailyKey, 30*24*time.Hour) // Keep 30 days

	hourlyKey := metricsPrefix + "hourly:" + hour
	pipe.HIncrBy(ctx, hourlyKey, "total", 1)
	pipe.Expire(ctx, hourlyKey, 48*time.Hour) // Keep 48 hours

	pipe.Incr(ctx, globalTotalKey)
	pipe.IncrByFloat(ctx, globalLatency, latencyMs)
	pipe.SAdd(ctx, pathsKey, path)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to record metrics")
		return err
	}

	m.trackLatencyBounds(ctx, pathKey, latencyMs)
	return nil
}

// trackLatencyBounds keeps min/max latency; HSETNX above only seeds them
func (m *Metrics) trackLatencyBounds(ctx context.Context, pathKey string, latencyMs float64) {
	vals, err := m.client.HMGet(ctx, pathKey, "min_latency", "max_latency").Result()
	if err != nil || len(vals) != 2 {
		return
	}
	if minV, ok := parseFloat(vals[0]); ok && latencyMs < minV {
		m.client.HSet(ctx, pathKey, "min_latency", latencyMs)
	}
	if maxV, ok := parseFloat(vals[1]); ok && latencyMs > maxV {
		m.client.HSet(ctx, pathKey, "max_latency", latencyMs)
	}
}

// RecordSearch counts a search and its keyword
func (m *Metrics) RecordSearch(ctx context.Context, keyword string, success bool) {
	pipe := m.client.Pipeline()
	pipe.HIncrBy(ctx, botStatsKey, "total_searches", 1)
	if success {
		pipe.HIncrBy(ctx, botStatsKey, "successful_searches", 1)
	} else {
		pipe.HIncrBy(ctx, botStatsKey, "failed_searches", 1)
	}
	pipe.HSet(ctx, botStatsKey, "last_search_time", m.now().Format(time.RFC3339))
	if kw := normalizeKeyword(keyword); kw != "" {
		pipe.ZIncrBy(ctx, keywordsKey, 1, kw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to record search stats")
	}
}

// RecordResources counts resources handed out to users
func (m *Metrics) RecordResources(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	if err := m.client.HIncrBy(ctx, botStatsKey, "total_resources", int64(n)).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to record resource stats")
	}
}

// RecordTransfer counts a transfer attempt
func (m *Metrics) RecordTransfer(ctx context.Context, success bool) {
	pipe := m.client.Pipeline()
	pipe.HIncrBy(ctx, botStatsKey, "total_transfers", 1)
	if success {
		pipe.HIncrBy(ctx, botStatsKey, "successful_transfers", 1)
	} else {
		pipe.HIncrBy(ctx, botStatsKey, "failed_transfers", 1)
	}
	pipe.HSet(ctx, botStatsKey, "last_transfer_time", m.now().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to record transfer stats")
	}
}

// GetBotStats returns conversational statistics
func (m *Metrics) GetBotStats(ctx context.Context) (*BotStats, error) {
	result, err := m.client.HGetAll(ctx, botStatsKey).Result()
	if err != nil {
		return nil, err
	}

	stats := &BotStats{
		TotalSearches:      parseInt(result["total_searches"]),
		SuccessfulSearches: parseInt(result["successful_searches"]),
		FailedSearches:     parseInt(result["failed_searches"]),
		TotalResources:     parseInt(result["total_resources"]),
		TotalTransfers:     parseInt(result["total_transfers"]),
		SuccessTransfers:   parseInt(result["successful_transfers"]),
		FailedTransfers:    parseInt(result["failed_transfers"]),
		LastSearchTime:     result["last_search_time"],
		LastTransferTime:   result["last_transfer_time"],
		PopularKeywords:    []KeywordCount{},
	}

	top, err := m.client.ZRevRangeWithScores(ctx, keywordsKey, 0, popularKeywords-1).Result()
	if err != nil {
		return nil, err
	}
	for _, z := range top {
		stats.PopularKeywords = append(stats.PopularKeywords, KeywordCount{
			Keyword: fmt.Sprint(z.Member),
			Count:   int64(z.Score),
		})
	}
	return stats, nil
}

// GetAPIStats gets statistics for a specific API path
func (m *Metrics) GetAPIStats(ctx context.Context, path string) (*APIStats, error) {
	result, err := m.client.HGetAll(ctx, metricsPrefix+"path:"+path).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return &APIStats{Path: path}, nil
	}

	total := parseInt(result["total"])
	latencySum, _ := strconv.ParseFloat(result["latency_sum"], 64)
	minLatency, _ := strconv.ParseFloat(result["min_latency"], 64)
	maxLatency, _ := strconv.ParseFloat(result["max_latency"], 64)

	avgLatency := 0.0
	if total > 0 {
		avgLatency = latencySum / float64(total)
	}

	return &APIStats{
		Path:         path,
		TotalCalls:   total,
		SuccessCalls: parseInt(result["success"]),
		ErrorCalls:   parseInt(result["error"]),
		AvgLatencyMs: avgLatency,
		MaxLatencyMs: maxLatency,
		MinLatencyMs: minLatency,
	}, nil
}

// GetOverallStats gets overall system statistics
func (m *Metrics) GetOverallStats(ctx context.Context) (*OverallStats, error) {
	stats := &OverallStats{}

	total, _ := m.client.Get(ctx, globalTotalKey).Int64()
	latencySum, _ := m.client.Get(ctx, globalLatency).Float64()
	stats.TotalAPICalls = total

	if total > 0 {
		stats.AvgLatencyMs = latencySum / float64(total)
	}

	today := m.now().Format("2006-01-02")
	stats.TodayAPICalls, _ = m.client.HGet(ctx, metricsPrefix+"daily:"+today, "total").Int64()

	paths, _ := m.client.SMembers(ctx, pathsKey).Result()
	var allStats []APIStats
	var totalErrors int64

	for _, path := range paths {
		pathStats, err := m.GetAPIStats(ctx, path)
		if err == nil && pathStats.TotalCalls > 0 {
			allStats = append(allStats, *pathStats)
			totalErrors += pathStats.ErrorCalls
		}
	}

	sort.Slice(allStats, func(i, j int) bool {
		return allStats[i].TotalCalls > allStats[j].TotalCalls
	})

	if len(allStats) > 10 {
		stats.TopEndpoints = allStats[:10]
	} else {
		stats.TopEndpoints = allStats
	}

	if total > 0 {
		stats.ErrorRate = float64(totalErrors) / float64(total) * 100
	}

	stats.DailyTrend = m.getDailyTrend(ctx, 7)

	startTime, err := m.client.Get(ctx, startTimeKey).Int64()
	if err == nil && startTime > 0 {
		stats.Uptime = m.now().Unix() - startTime
	}

	bot, err := m.GetBotStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Bot = bot

	return stats, nil
}

// getDailyTrend gets daily statistics for the last N days
func (m *Metrics) getDailyTrend(ctx context.Context, days int) []DailyStats {
	var trend []DailyStats

	for i := days - 1; i >= 0; i-- {
		date := m.now().AddDate(0, 0, -i).Format("2006-01-02")

		result, err := m.client.HGetAll(ctx, metricsPrefix+"daily:"+date).Result()
		if err != nil {
			continue
		}

		total := parseInt(result["total"])
		latencySum, _ := strconv.ParseFloat(result["latency_sum"], 64)

		avgLatency := 0.0
		if total > 0 {
			avgLatency = latencySum / float64(total)
		}

		trend = append(trend, DailyStats{
			Date:       date,
			TotalCalls: total,
			AvgLatency: avgLatency,
		})
	}

	return trend
}

// RecordServerStart records server start time
func (m *Metrics) RecordServerStart(ctx context.Context) {
	m.client.Set(ctx, startTimeKey, m.now().Unix(), 0)
}

// ResetMetrics deletes every metrics key, bot statistics included
func (m *Metrics) ResetMetrics(ctx context.Context) error {
	var keys []string
	iter := m.client.Scan(ctx, 0, metricsPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return m.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Close closes the Redis connection
func (m *Metrics) Close() error {
	return m.client.Close()
}

func normalizeKeyword(kw string) string {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if r := []rune(kw); len(r) > maxKeywordLen {
		kw = string(r[:maxKeywordLen])
	}
	return kw
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

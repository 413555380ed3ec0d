package services

import (
	"fmt"
	"math"

	"agriviewer-chat-api/pkg/models"
)

// trendThreshold は期間全体の変化率がこれ未満なら横ばいとみなす閾値
const trendThreshold = 0.05

// トレンドの種類
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// SummarizeSeries は値列ごとの要約統計を列順に返します。
func SummarizeSeries(table models.MetricSeries) []models.MetricStatistics {
	columns := table.ValueColumns()
	out := make([]models.MetricStatistics, 0, len(columns))
	for _, col := range columns {
		out = append(out, summarizeColumn(col, table.Column(col)))
	}
	return out
}

func summarizeColumn(name string, values []float64) models.MetricStatistics {
	stats := models.MetricStatistics{
		Column: name,
		Count:  len(values),
		Trend:  TrendStable,
	}
	if len(values) == 0 {
		return stats
	}

	stats.Mean = calculateMean(values)
	stats.StdDev = calculateStandardDeviation(values)
	stats.Min, stats.Max = values[0], values[0]
	for _, v := range values[1:] {
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	reg, err := PerformLinearRegression(xs, values)
	if err != nil {
		return stats
	}
	stats.Regression = reg
	stats.Trend = classifyTrend(reg.Slope, len(values), stats.Mean)
	return stats
}

func classifyTrend(slope float64, n int, mean float64) string {
	if mean == 0 {
		return TrendStable
	}
	change := slope * float64(n-1) / math.Abs(mean)
	switch {
	case change >= trendThreshold:
		return TrendIncreasing
	case change <= -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// PerformLinearRegression 線形回帰分析を実行
func PerformLinearRegression(x, y []float64) (*models.RegressionResult, error) {
	if len(x) != len(y) || len(x) < 2 {
		return nil, fmt.Errorf("データ系列の長さが一致しないか、データ数が不足しています")
	}

	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2 float64

	for i := 0; i < len(x); i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return nil, fmt.Errorf("説明変数が一定のため回帰できません")
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	// R²（決定係数）
	meanY := sumY / n
	var ssTotal, ssResidual float64
	for i := 0; i < len(x); i++ {
		predicted := slope*x[i] + intercept
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
		ssResidual += (y[i] - predicted) * (y[i] - predicted)
	}
	rSquared := 0.0
	if ssTotal > 0 {
		rSquared = 1 - (ssResidual / ssTotal)
	}

	// 次の時点の予測値
	prediction := slope*(x[len(x)-1]+1) + intercept

	return &models.RegressionResult{
		Slope:       slope,
		Intercept:   intercept,
		RSquared:    rSquared,
		Prediction:  prediction,
		Description: fmt.Sprintf("y = %.4fx + %.4f (R² = %.3f)", slope, intercept, rSquared),
	}, nil
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStandardDeviation パッケージ内部用のヘルパー関数：標準偏差を計算
func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}

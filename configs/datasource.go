package config

import "strings"

// DataSourceConfig 圃場データソース設定
type DataSourceConfig struct {
	// Type は mock / fixture / remote のいずれか
	Type        string
	FixturePath string
	BaseURL     string
	APIKey      string
	// Seed が0以外ならモックデータを再現可能にします
	Seed uint64
}

// GetDataSourceConfig データソース設定を取得
func GetDataSourceConfig() *DataSourceConfig {
	return &DataSourceConfig{
		Type:        strings.ToLower(getEnv("DATA_SOURCE_TYPE", "mock")),
		FixturePath: getEnv("DATA_SOURCE_FIXTURE_PATH", "asset/metrics.json"),
		BaseURL:     getEnv("CV_PIPELINE_URL", ""),
		APIKey:      getEnv("CV_PIPELINE_API_KEY", ""),
		Seed:        uint64(getEnvInt("DATA_SOURCE_SEED", 0)),
	}
}

package handlers

import (
	"net/http"

	"agriviewer-chat-api/pkg/catalog"

	"github.com/gin-gonic/gin"
)

// GetMetricCatalog は指標の語彙、既定セット、値域、分析指示を返します。
func GetMetricCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"vocabulary":         catalog.Vocabulary(),
		"default_metrics":    catalog.DefaultMetrics(),
		"baseline_columns":   catalog.BaselineColumns(),
		"default_date_range": catalog.DefaultDateRange,
		"metrics":            catalog.All(),
	})
}

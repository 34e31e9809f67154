package bigquery

import (
	"github.com/dkachan/finsight/internal/insights"
	"github.com/dkachan/finsight/internal/quota"
)

// The repository backs all three storage ports.
var (
	_ insights.TransactionSource = (*Repository)(nil)
	_ insights.CacheStore        = (*Repository)(nil)
	_ quota.Store                = (*Repository)(nil)
)

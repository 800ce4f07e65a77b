package ranking

import (
	"math"
	"time"

	"github.com/hitoshi/hottakes/internal/model"
)

const (
	scoreOffsetHours = 2.0
	scoreGravity     = 1.5
)

// Score は時間減衰付きの人気スコア likes / (age_hours + 2)^1.5 を返す。
// 未来のcreatedAtは経過0時間として扱う。
func Score(likes int, createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(likes) / math.Pow(ageHours+scoreOffsetHours, scoreGravity)
}

// Sort は一覧の並び順。
type Sort string

const (
	SortNewest     Sort = "newest"
	SortHottest24h Sort = "hottest_24h"
	SortHottest7d  Sort = "hottest_7d"
)

// ParseSort はクエリ値をSortに変換する。空文字はSortNewest。
func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "", SortNewest:
		return SortNewest, nil
	case SortHottest24h:
		return SortHottest24h, nil
	case SortHottest7d:
		return SortHottest7d, nil
	default:
		return "", model.NewInvalidSortError(s)
	}
}

// window は減衰モードの集計期間を返す。
func (s Sort) window() time.Duration {
	switch s {
	case SortHottest24h:
		return 24 * time.Hour
	case SortHottest7d:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

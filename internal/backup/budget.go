package backup

import "time"

const (
	minStageBudget = 20 * time.Minute
	maxStageBudget = 45 * time.Minute
)

// Budget computes the wall-clock allowance for a single dump or upload
// stage from the estimated database size: one extra minute per 100 MB on
// top of a 20 minute floor, capped at 45 minutes. The dump and upload
// stages each get the full budget independently.
func Budget(sizeBytes int64) time.Duration {
	if sizeBytes < 0 {
		sizeBytes = 0
	}
	d := minStageBudget + time.Duration(sizeBytes/(100*1024*1024))*time.Minute
	if d > maxStageBudget {
		return maxStageBudget
	}
	return d
}

package domain

// JournalStats сводка журнала за последний час для дашборда
type JournalStats struct {
	TotalEvents    int64            `json:"total_events"`
	Failures       int64            `json:"failures"`
	Recoveries     int64            `json:"recoveries"`
	FailedRecovery int64            `json:"failed_recoveries"`
	ByKind         map[string]int64 `json:"by_kind"`
	HourlyFailures []ActivityPoint  `json:"hourly_failures"` // последние 24 часа
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

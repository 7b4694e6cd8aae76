package domain

// Statistics — агрегаты по локальному зеркалу аудитов для дашборда.
type Statistics struct {
	TotalAudits  int64            `json:"total_audits"`
	StatusCounts map[string]int64 `json:"status_counts"`
	DailyAudits  []DailyCount     `json:"daily_audits"` // последние 7 дней
	Averages     ScoreAverages    `json:"averages"`     // только по completed
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// ScoreAverages — средние по каждой колонке оценок. Указатели, потому что
// при нуле завершенных аудитов среднего просто нет.
type ScoreAverages struct {
	Overall       *float64 `json:"avg_overall"`
	Security      *float64 `json:"avg_security"`
	Performance   *float64 `json:"avg_performance"`
	SEO           *float64 `json:"avg_seo"`
	Accessibility *float64 `json:"avg_accessibility"`
	UX            *float64 `json:"avg_ux"`
}

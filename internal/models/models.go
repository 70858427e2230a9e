package models

const (
	RunTypeDesktop = "desktop"
	RunTypeMobile  = "mobile"
	RunTypeUnknown = "unknown"

	// NotAvailable replaces audit display values missing from a report.
	NotAvailable = "N/A"
)

// MetricsRecord is one normalized audit result as stored in the summary file.
// Field names are the interchange format between the extractor and the report
// generators and must stay stable.
type MetricsRecord struct {
	ReportFile string     `json:"reportFile"`
	Timestamp  string     `json:"timestamp"`
	URL        string     `json:"url"`
	RunType    string     `json:"runType"`
	Categories Categories `json:"categories"`
	Audits     Audits     `json:"audits"`
}

type Categories struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	SEO           float64 `json:"seo"`
}

type Audits struct {
	LargestContentfulPaint string `json:"largestContentfulPaint"`
	FirstContentfulPaint   string `json:"firstContentfulPaint"`
	TotalBlockingTime      string `json:"totalBlockingTime"`
	CumulativeLayoutShift  string `json:"cumulativeLayoutShift"`
	SpeedIndex             string `json:"speedIndex"`
}

// IndividualMetrics is written once per audited URL next to the summary.
type IndividualMetrics struct {
	Timestamp  string                        `json:"timestamp"`
	URL        string                        `json:"url"`
	FormFactor string                        `json:"formFactor"`
	ReportFile string                        `json:"reportFile"`
	Categories map[string]IndividualCategory `json:"categories"`
	Audits     Audits                        `json:"audits"`
}

type IndividualCategory struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	Details *string `json:"details,omitempty"`
}

type RunRequest struct {
	URLs []string `json:"urls"`
}

type RunResponse struct {
	ID        string          `json:"id"`
	Records   []MetricsRecord `json:"records"`
	Artifacts []string        `json:"artifacts"`
	Failures  []string        `json:"failures,omitempty"`
}

// Internal Lighthouse report (LHR) models, only the parts we read.

type Report struct {
	RequestedURL   string               `json:"requestedUrl"`
	FinalURL       string               `json:"finalUrl"`
	FetchTime      string               `json:"fetchTime"`
	ConfigSettings *ConfigSettings      `json:"configSettings"`
	Categories     map[string]*Category `json:"categories"`
	Audits         map[string]*Audit    `json:"audits"`
}

type ConfigSettings struct {
	FormFactor string `json:"formFactor"`
}

type Category struct {
	Title string   `json:"title"`
	Score *float64 `json:"score"`
}

type Audit struct {
	DisplayValue string `json:"displayValue"`
}

// RunType returns the emulated form factor recorded in the report.
func (r *Report) RunType() string {
	if r.ConfigSettings == nil || r.ConfigSettings.FormFactor == "" {
		return RunTypeUnknown
	}
	return r.ConfigSettings.FormFactor
}

// Score returns the category score, 0 when the category is absent or unscored.
func (r *Report) Score(id string) float64 {
	c, ok := r.Categories[id]
	if !ok || c == nil || c.Score == nil {
		return 0
	}
	return *c.Score
}

// Display returns the audit display value or N/A.
func (r *Report) Display(id string) string {
	a, ok := r.Audits[id]
	if !ok || a == nil || a.DisplayValue == "" {
		return NotAvailable
	}
	return a.DisplayValue
}

// ExtractAudits picks the audit display strings used by every report.
func (r *Report) ExtractAudits() Audits {
	return Audits{
		LargestContentfulPaint: r.Display("largest-contentful-paint"),
		FirstContentfulPaint:   r.Display("first-contentful-paint"),
		TotalBlockingTime:      r.Display("total-blocking-time"),
		CumulativeLayoutShift:  r.Display("cumulative-layout-shift"),
		SpeedIndex:             r.Display("speed-index"),
	}
}

// ToRecord maps a parsed report into a summary record.
func (r *Report) ToRecord(reportFile, timestamp string) MetricsRecord {
	url := r.RequestedURL
	if url == "" {
		url = RunTypeUnknown
	}
	return MetricsRecord{
		ReportFile: reportFile,
		Timestamp:  timestamp,
		URL:        url,
		RunType:    r.RunType(),
		Categories: Categories{
			Performance:   r.Score("performance"),
			Accessibility: r.Score("accessibility"),
			SEO:           r.Score("seo"),
		},
		Audits: r.ExtractAudits(),
	}
}

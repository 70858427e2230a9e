package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
)

func TestObserveRecords(t *testing.T) {
	r := New()
	r.ObserveRecords([]models.MetricsRecord{
		{URL: "https://a.example/", RunType: models.RunTypeDesktop, Categories: models.Categories{Performance: 0.95, SEO: 0.9, Accessibility: 0.8}},
		{URL: "https://a.example/", RunType: models.RunTypeMobile, Categories: models.Categories{Performance: 0.5}},
	})
	r.ObserveFailures([]*failure.Error{
		failure.New(failure.PartialCollection, "audit", "https://b.example/", errors.New("boom")),
	})

	if got := testutil.ToFloat64(r.scores.WithLabelValues("https://a.example/", "desktop", "performance")); got != 0.95 {
		t.Fatalf("expected 0.95 got %v", got)
	}
	if got := testutil.ToFloat64(r.scores.WithLabelValues("https://a.example/", "mobile", "performance")); got != 0.5 {
		t.Fatalf("expected 0.5 got %v", got)
	}
	if got := testutil.ToFloat64(r.failures.WithLabelValues("partial-collection")); got != 1 {
		t.Fatalf("expected 1 failure got %v", got)
	}
	if n := testutil.CollectAndCount(r.scores); n != 6 {
		t.Fatalf("expected 6 score series got %d", n)
	}
}

func TestObserveRecordsDropsPreviousRun(t *testing.T) {
	r := New()
	r.ObserveRecords([]models.MetricsRecord{
		{URL: "https://old.example/", RunType: models.RunTypeDesktop, Categories: models.Categories{Performance: 0.4}},
	})
	r.ObserveRecords([]models.MetricsRecord{
		{URL: "https://a.example/", RunType: models.RunTypeDesktop, Categories: models.Categories{Performance: 0.9}},
	})

	if n := testutil.CollectAndCount(r.scores); n != 3 {
		t.Fatalf("expected 3 score series got %d", n)
	}
	err := testutil.CollectAndCompare(r.scores, strings.NewReader(`
# HELP lighthouse_category_score Latest Lighthouse category score in [0,1]
# TYPE lighthouse_category_score gauge
lighthouse_category_score{category="accessibility",form_factor="desktop",url="https://a.example/"} 0
lighthouse_category_score{category="performance",form_factor="desktop",url="https://a.example/"} 0.9
lighthouse_category_score{category="seo",form_factor="desktop",url="https://a.example/"} 0
`))
	if err != nil {
		t.Fatalf("unexpected score series: %v", err)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveRun(90*time.Second, time.Unix(1700000000, 0))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"lighthouse_last_run_timestamp_seconds", "lighthouse_run_duration_seconds_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotMethod string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath, gotMethod = req.URL.Path, req.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	r := New()
	if err := r.Push(context.Background(), gateway.URL, ""); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/metrics/job/"+DefaultJob {
		t.Fatalf("unexpected push request %s %s", gotMethod, gotPath)
	}
}

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
)

type sweepResult struct {
	Station  models.Station
	Report   *dto.StationReconciliation
	Duration time.Duration
	Error    error
}

type envelope struct {
	Data  *dto.StationReconciliation `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseURL  string
		stations string
		maxStale int
		operator string
		timeout  time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080/api/v1", "API base URL including prefix")
	flag.StringVar(&stations, "stations", "", "Comma-separated stations to sweep (default: every station)")
	flag.IntVar(&maxStale, "max-stale", 0, "Fail when any station reports more stale tags than this")
	flag.StringVar(&operator, "operator", "station-sweep", "Value sent as X-Operator")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := parseStations(stations)
	if err != nil {
		log.Fatalf("invalid stations: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	results := make([]sweepResult, 0, len(targets))
	for _, station := range targets {
		results = append(results, sweepStation(client, baseURL, operator, station))
	}

	printReport(results)

	failing := countFailing(results, maxStale)
	fmt.Printf("Stations over stale threshold or unreachable: %d\n", failing)
	if failing > 0 {
		os.Exit(1)
	}
}

func parseStations(raw string) ([]models.Station, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]models.Station(nil), models.StationSequence...), nil
	}
	var out []models.Station
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		station, ok := models.ParseStation(part)
		if !ok {
			return nil, fmt.Errorf("unknown station %q", part)
		}
		out = append(out, station)
	}
	if len(out) == 0 {
		return nil, errors.New("no stations given")
	}
	return out, nil
}

func sweepStation(client *http.Client, base, operator string, station models.Station) sweepResult {
	res := sweepResult{Station: station}
	url := strings.TrimRight(base, "/") + "/rfid/reconciliation/" + string(station)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("X-Operator", operator)

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()

	res.Report, res.Error = decodeReport(resp.StatusCode, resp.Body)
	return res
}

func decodeReport(status int, body io.Reader) (*dto.StationReconciliation, error) {
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", status, err)
	}
	if status >= http.StatusBadRequest {
		if env.Error != nil {
			return nil, fmt.Errorf("status %d: %s: %s", status, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("status %d", status)
	}
	if env.Data == nil {
		return nil, errors.New("empty reconciliation payload")
	}
	return env.Data, nil
}

func countFailing(results []sweepResult, maxStale int) int {
	failing := 0
	for _, res := range results {
		if res.Error != nil || res.Report.Counts.Stale > maxStale {
			failing++
		}
	}
	return failing
}

func printReport(results []sweepResult) {
	fmt.Println("Station Sweep Report")
	fmt.Println("====================")
	for _, res := range results {
		if res.Error != nil {
			fmt.Printf("[ERROR] %s (%s)\n", res.Station, res.Duration)
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		c := res.Report.Counts
		fmt.Printf("[%02d] %s (%s)\n", res.Report.Position, res.Station, res.Duration)
		fmt.Printf("  on track: %d | advanced: %d | not yet arrived: %d | stale: %d | total: %d\n",
			c.OnTrack, c.Advanced, c.NotYetArrived, c.Stale, c.Total)
		for _, entry := range res.Report.Stale {
			who := entry.ConvocationNumber
			if who == "" {
				who = string(entry.Type)
			}
			fmt.Printf("    stale %s (%s) at %s\n", entry.EPC, who, entry.CurrentStation)
		}
	}
}

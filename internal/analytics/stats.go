package analytics

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// DashboardStats summarises the site and patient tables.
type DashboardStats struct {
	TotalSites             int     `json:"total_sites"`
	TotalPatients          int     `json:"total_patients"`
	HighRiskSites          int     `json:"high_risk_sites"`
	AvgDQI                 float64 `json:"avg_dqi"`
	CleanPatientPercentage float64 `json:"clean_patient_percentage"`
	CleanPatients          int     `json:"clean_patients"`
	Partial                bool    `json:"partial"`
}

// DashboardStats reads the site and patient tables concurrently and aggregates them.
func (g *Gateway) DashboardStats(ctx context.Context, useCache bool) (DashboardStats, error) {
	var (
		sites, patients                 []Record
		sitesComplete, patientsComplete bool
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		sites, sitesComplete = g.Table(egCtx, TableSites, useCache)
		return ctx.Err()
	})
	eg.Go(func() error {
		patients, patientsComplete = g.Table(egCtx, TablePatients, useCache)
		return ctx.Err()
	})
	if err := eg.Wait(); err != nil {
		return DashboardStats{}, err
	}

	stats := Aggregate(sites, patients)
	stats.Partial = !sitesComplete || !patientsComplete
	return stats, nil
}

// Aggregate computes dashboard figures. Averages and percentages are rounded to
// two decimals and are zero for empty tables.
func Aggregate(sites, patients []Record) DashboardStats {
	stats := DashboardStats{TotalSites: len(sites), TotalPatients: len(patients)}

	var dqiSum float64
	for _, s := range sites {
		if s["Risk_Level"] == "High" {
			stats.HighRiskSites++
		}
		dqiSum += number(s["Avg_DQI"])
	}
	for _, p := range patients {
		if p["Clean_Patient_Status"] == "Clean" {
			stats.CleanPatients++
		}
	}

	if stats.TotalSites > 0 {
		stats.AvgDQI = round2(dqiSum / float64(stats.TotalSites))
	}
	if stats.TotalPatients > 0 {
		stats.CleanPatientPercentage = round2(float64(stats.CleanPatients) / float64(stats.TotalPatients) * 100)
	}
	return stats
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

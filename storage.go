package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Storage uploads a persisted result matrix to a remote libsql database, one
// freshly created database per batch.
type Storage struct {
	OrgName   string
	GroupName string
	ApiToken  string
	AuthToken string
}

func (s *Storage) Enabled() bool {
	return s.OrgName != "" && s.ApiToken != "" && s.AuthToken != ""
}

func (s *Storage) CreateDatabase(name string) error {
	url := fmt.Sprintf("https://api.turso.tech/v1/organizations/%v/databases", s.OrgName)
	req, err := http.NewRequest("POST", url, bytes.NewReader([]byte(fmt.Sprintf(`{"name":"%v","group":"%v"}`, name, s.GroupName))))
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+s.ApiToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status code %v: %v", resp.StatusCode, string(body))
	}
	Logger.Infof("created database %v", name)
	return nil
}

func (s *Storage) ConnectDb(name string) (*sql.DB, error) {
	url := fmt.Sprintf("libsql://%v-%v.turso.io?authToken=%v", name, s.OrgName, s.AuthToken)
	return sql.Open("libsql", url)
}

func (s *Storage) DbLink(name string) string {
	return fmt.Sprintf("%v-%v.turso.io", name, s.OrgName)
}

func (s *Storage) InitResultsDb(db *sql.DB, meta map[string]any) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS parameters (name TEXT PRIMARY KEY, value)")
	if err != nil {
		return err
	}
	for key, value := range meta {
		_, err = db.Exec("INSERT INTO parameters VALUES (?, ?) ON CONFLICT DO NOTHING", key, fmt.Sprintf("%v", value))
		if err != nil {
			return err
		}
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS measurements (
		runner TEXT,
		benchmark TEXT,
		run INTEGER,
		millis REAL,
		PRIMARY KEY (runner, benchmark, run)
	)`)
	if err != nil {
		return err
	}
	Logger.Infof("initialized database for benchmark results with meta %v", meta)
	return nil
}

func (s *Storage) UploadResults(db *sql.DB, results ResultsFormatted) error {
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for runnerName, runs := range results.Runs {
		for benchmarkName, result := range runs {
			for i, runTime := range result.RunTimes {
				_, err = tx.Exec(
					"INSERT INTO measurements VALUES (?, ?, ?, ?)",
					runnerName,
					benchmarkName,
					i,
					float64(runTime)/float64(time.Millisecond),
				)
				if err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

// UploadMatrix creates a fresh results database and uploads the matrix along
// with host parameters.
func UploadMatrix(storage *Storage, info SysInfo, results ResultsFormatted) error {
	name := fmt.Sprintf("evm-bench-%v-%v", time.Now().Unix(), rand.Intn(1000))
	if err := storage.CreateDatabase(name); err != nil {
		return fmt.Errorf("unable to create results db %v: %w", name, err)
	}
	db, err := storage.ConnectDb(name)
	if err != nil {
		return fmt.Errorf("unable to connect to results db %v: %w", name, err)
	}
	defer db.Close()

	err = storage.InitResultsDb(db, map[string]any{
		"time":       time.Now().Format("2006-01-02 15:04:05"),
		"arch":       info.Arch,
		"hostname":   info.Hostname,
		"platform":   info.Platform,
		"ram":        info.RAM,
		"cpu":        info.CPUCount,
		"freq":       info.CPUFreq,
		"benchmarks": len(results.Benchmarks),
		"runners":    len(results.Runners),
	})
	if err != nil {
		return fmt.Errorf("unable to initialize results db %v: %w", name, err)
	}
	if err := storage.UploadResults(db, results); err != nil {
		return fmt.Errorf("unable to upload results to %v: %w", name, err)
	}
	Logger.Infof("uploaded results to %v", storage.DbLink(name))
	return nil
}

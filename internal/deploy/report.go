// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type (
	// Report is the TOML summary of a pipeline run written by --report.
	Report struct {
		Function    string        `toml:"function"`
		Region      string        `toml:"region"`
		Image       string        `toml:"image,omitempty"`
		Digest      string        `toml:"digest,omitempty"`
		CodeSHA256  string        `toml:"code_sha256,omitempty"`
		State       State         `toml:"state"`
		Error       string        `toml:"error,omitempty"`
		FailedStage State         `toml:"failed_stage,omitempty"`
		Stages      []StageReport `toml:"stage"`
	}

	// StageReport is one [[stage]] entry of a Report.
	StageReport struct {
		Name     State     `toml:"name"`
		Started  time.Time `toml:"started"`
		Duration string    `toml:"duration"`
		Seconds  float64   `toml:"seconds"`
	}
)

// NewReport summarizes res and the error Deploy or Rollout returned with it.
func NewReport(res *Result, runErr error) Report {
	rep := Report{
		Function: res.Function,
		Region:   res.Region,
		State:    res.State,
	}
	if res.Image.IsDigest() {
		rep.Image = res.Image.String()
		rep.Digest = res.Image.Digest.String()
	}
	if res.Update != nil {
		rep.CodeSHA256 = res.Update.CodeSHA256
	}
	if runErr != nil {
		rep.Error = runErr.Error()
		var stageErr *StageError
		if errors.As(runErr, &stageErr) {
			rep.FailedStage = stageErr.Stage
		}
	}
	for _, st := range res.Stages {
		rep.Stages = append(rep.Stages, StageReport{
			Name:     st.Stage,
			Started:  st.Started.UTC(),
			Duration: st.Duration.Round(time.Millisecond).String(),
			Seconds:  st.Duration.Seconds(),
		})
	}
	return rep
}

// Encode writes the report as TOML.
func (r Report) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode deployment report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, replacing any existing file.
func (r Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create deployment report: %w", err)
	}
	if err := r.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadReport decodes a report previously written by WriteFile.
func ReadReport(path string) (Report, error) {
	var rep Report
	data, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("read deployment report: %w", err)
	}
	if err := toml.Unmarshal(data, &rep); err != nil {
		return rep, fmt.Errorf("decode deployment report: %w", err)
	}
	return rep, nil
}

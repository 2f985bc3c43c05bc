package sealbackup

import (
	"fmt"
	"runtime"
	"sync"
)

// VerifyReport is the outcome of verifying one backup during VerifyAll
type VerifyReport struct {
	Name   string
	Result *VerifyResult
	Err    error
}

// verifyJob represents a backup verification job
type verifyJob struct {
	index int
	meta  BackupMeta
}

// VerifyAll verifies every listed backup against password using a bounded
// pool of workers. Reports are returned newest first, one per backup. A
// panic inside a worker is reported as that backup's error.
func (s *BackupStore) VerifyAll(password []byte) ([]VerifyReport, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	reports := make([]VerifyReport, len(metas))
	if len(metas) == 0 {
		return reports, nil
	}

	// Determine number of workers
	numWorkers := s.config.Parallel.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(metas) {
		numWorkers = len(metas)
	}

	var wg sync.WaitGroup
	jobChan := make(chan verifyJob, len(metas))

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				reports[job.index] = s.verifyOne(job.meta, password)
			}
		}()
	}

	for i, m := range metas {
		jobChan <- verifyJob{index: i, meta: m}
	}
	close(jobChan)

	wg.Wait()
	return reports, nil
}

func (s *BackupStore) verifyOne(m BackupMeta, password []byte) (report VerifyReport) {
	report.Name = m.Name
	defer func() {
		if r := recover(); r != nil {
			// Convert panic to error
			report.Result = nil
			report.Err = fmt.Errorf("panic in verification worker: %v", r)
		}
	}()
	report.Result, report.Err = s.Verify(m.Name, password)
	return report
}

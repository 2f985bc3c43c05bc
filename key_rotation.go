package sealbackup

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RekeyOptions contains options for re-encrypting backups under a new password
type RekeyOptions struct {
	// RemoveOriginals deletes each source backup once its replacement is written
	RemoveOriginals bool

	// DryRun verifies that every backup opens with the old password without
	// writing anything
	DryRun bool
}

// RekeyReport summarizes a RekeyAll run
type RekeyReport struct {
	Rekeyed []string         // new backup names, oldest source first
	Failed  map[string]error // source name to failure
	Removed []string         // originals deleted after rekeying
}

// Rekey restores a backup with oldPassword and writes its payload as a new
// backup under newPassword. Backups are immutable, so the original is left
// in place and ages out through retention. Compression and payload codec
// carry over from the original.
func (s *BackupStore) Rekey(name string, oldPassword, newPassword []byte) (*BackupResult, error) {
	result, err := s.rekey(name, oldPassword, newPassword)
	if err != nil {
		return nil, err
	}

	pruned, err := s.Cleanup()
	if err != nil {
		s.logger.WithError(err).Warn("retention cleanup after rekey failed")
	}
	result.Pruned = pruned
	return result, nil
}

// RekeyAll re-encrypts every listed backup under newPassword. Backups are
// processed oldest first so the new backups keep their relative order.
// Failures are collected per backup; retention runs once at the end.
func (s *BackupStore) RekeyAll(oldPassword, newPassword []byte, opts RekeyOptions) (*RekeyReport, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	metas, err := s.List()
	if err != nil {
		return nil, err
	}

	report := &RekeyReport{Failed: make(map[string]error)}
	for i := len(metas) - 1; i >= 0; i-- {
		m := metas[i]

		if opts.DryRun {
			res, err := s.Verify(m.Name, oldPassword)
			switch {
			case err != nil:
				report.Failed[m.Name] = err
			case !res.Valid:
				report.Failed[m.Name] = fmt.Errorf("%s", res.Reason)
			}
			continue
		}

		res, err := s.rekey(m.Name, oldPassword, newPassword)
		if err != nil {
			report.Failed[m.Name] = err
			continue
		}
		report.Rekeyed = append(report.Rekeyed, res.BackupName)

		if opts.RemoveOriginals {
			if err := s.fs.Remove(m.Path); err != nil {
				s.logger.WithFields(logrus.Fields{
					"event":  "backup_remove_failed",
					"backup": m.Name,
				}).WithError(err).Warn("failed to remove rekeyed original")
				continue
			}
			report.Removed = append(report.Removed, m.Name)
		}
	}

	if !opts.DryRun {
		if _, err := s.Cleanup(); err != nil {
			s.logger.WithError(err).Warn("retention cleanup after rekey failed")
		}
	}

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("rekey completed with %d errors (rekeyed %d backups)", len(report.Failed), len(report.Rekeyed))
	}
	return report, nil
}

func (s *BackupStore) rekey(name string, oldPassword, newPassword []byte) (*BackupResult, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	plaintext, rec, err := s.open(name, oldPassword)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	result, err := s.write(plaintext, rec.codec, rec.envelope.Compressed, newPassword)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"event":  "backup_rekeyed",
		"source": name,
		"backup": result.BackupName,
	}).Info("backup re-encrypted under new password")
	return result, nil
}

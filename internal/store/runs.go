package store

import (
	"context"
	"time"

	"laundryonline/internal/model"
	"laundryonline/internal/status"
)

// AppendRun archives a finished run.
func (s *gormStore) AppendRun(ctx context.Context, run model.RunHistory) error {
	err := s.db.WithContext(ctx).Create(&run).Error
	return classify("store.append_run", err)
}

// Runs returns the most recent archived runs of a machine, newest first.
func (s *gormStore) Runs(ctx context.Context, machineID string, limit int) ([]model.RunHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.RunHistory
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, classify("store.runs", err)
	}
	return runs, nil
}

// RunRecord builds the history row for a run that ended when prev was
// replaced. It returns false when prev was not in a run.
func RunRecord(prev model.Machine, endedAt time.Time, endedBy string) (model.RunHistory, bool) {
	if !status.Status(prev.Status).IsRun() || prev.StartTime == nil {
		return model.RunHistory{}, false
	}
	startTime := *prev.StartTime
	// Calculate the PREDICTED end time.
	var predictedEnd time.Time
	if prev.EstimatedDuration != nil && *prev.EstimatedDuration > 0 {
		predictedEnd = startTime.Add(time.Duration(*prev.EstimatedDuration) * time.Minute)
	} else {
		// Without an estimate the run is predicted to end when it was observed to end.
		predictedEnd = endedAt
	}
	return model.RunHistory{
		MachineID:         prev.ID,
		StartedAt:         startTime,
		EndedAt:           endedAt,
		PredictedEnd:      predictedEnd,
		EstimatedDuration: prev.EstimatedDuration,
		FinalStatus:       prev.Status,
		EndedBy:           endedBy,
	}, true
}
